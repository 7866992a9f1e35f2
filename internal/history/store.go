// Package history keeps the append-only per-customer snapshot log and the raised alerts.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"HealthSentinel/internal/config"
	"HealthSentinel/internal/model"

	"go.uber.org/zap"
)

var (
	ErrNotFound   = errors.New("history: not found")
	ErrOutOfOrder = errors.New("history: snapshot not newer than latest")
)

// Store persists snapshots and alerts. Snapshots of one customer are kept
// in ComputedAt order; Append rejects anything older than the latest.
type Store interface {
	Append(ctx context.Context, snap *model.HealthSnapshot) error
	// History returns snapshots computed at or after since, oldest first.
	History(ctx context.Context, customerID string, since time.Time) ([]model.HealthSnapshot, error)
	Latest(ctx context.Context, customerID string) (*model.HealthSnapshot, error)
	SaveAlerts(ctx context.Context, alerts []model.Alert) error
	// RecentAlerts returns alerts created at or after since, oldest first.
	RecentAlerts(ctx context.Context, customerID string, since time.Time) ([]model.Alert, error)
	// Prune drops snapshots and alerts older than before and reports how many rows went.
	Prune(ctx context.Context, before time.Time) (int, error)
	Close() error
}

// Open builds the configured backend.
func Open(hc config.HistoryConfig, dc config.DatabaseConfig, logger *zap.Logger) (Store, error) {
	switch hc.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(dc.SQLitePath, logger)
	}
	return nil, fmt.Errorf("unknown history backend %q", hc.Backend)
}

// RetentionCutoff is the prune boundary for a retention window ending at now.
func RetentionCutoff(now time.Time, retentionDays int) time.Time {
	return now.AddDate(0, 0, -retentionDays)
}
