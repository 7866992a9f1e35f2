// Package report keeps the last run report, persisted to a JSON state file.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"HealthSentinel/internal/model"
)

// LoadReport reads a run report from a JSON file. Returns nil if the file doesn't exist.
func LoadReport(filePath string) (*model.RunReport, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var rep model.RunReport
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filePath, err)
	}
	return &rep, nil
}

// SaveReport writes the run report to a JSON file.
func SaveReport(filePath string, rep *model.RunReport) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(filePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(filePath, data, 0644)
}

// Keeper holds the most recent report with concurrency safety.
type Keeper struct {
	mu       sync.RWMutex
	last     *model.RunReport
	filePath string
}

// NewKeeper loads the previous report from disk, if any. An empty path keeps it in memory only.
func NewKeeper(filePath string) (*Keeper, error) {
	k := &Keeper{filePath: filePath}
	if filePath == "" {
		return k, nil
	}
	rep, err := LoadReport(filePath)
	if err != nil {
		return nil, err
	}
	k.last = rep
	return k, nil
}

// Last returns the most recent report or nil.
func (k *Keeper) Last() *model.RunReport {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.last
}

// Record replaces the last report and persists it.
func (k *Keeper) Record(rep *model.RunReport) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.last = rep
	if k.filePath == "" {
		return nil
	}
	return SaveReport(k.filePath, rep)
}
