package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"HealthSentinel/internal/model"
)

// feedFile is the on-disk shape of a JSON feed export.
type feedFile struct {
	Customers []model.MetricBundle `json:"customers"`
}

// FileSource reads bundles from a JSON feed file. The file is re-read on
// every ListCustomers so each run sees the latest export.
type FileSource struct {
	path string

	mu      sync.RWMutex
	bundles map[string]*model.MetricBundle
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (f *FileSource) Name() string { return "file" }

func (f *FileSource) load() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("read feed %s: %w", f.path, err)
	}
	var ff feedFile
	if err := json.Unmarshal(data, &ff); err != nil {
		return fmt.Errorf("parse feed %s: %w", f.path, err)
	}
	bundles := make(map[string]*model.MetricBundle, len(ff.Customers))
	for i := range ff.Customers {
		b := &ff.Customers[i]
		if b.Customer.ID == "" {
			return fmt.Errorf("parse feed %s: customer %d has no id", f.path, i)
		}
		sortEvents(b.Events)
		bundles[b.Customer.ID] = b
	}

	f.mu.Lock()
	f.bundles = bundles
	f.mu.Unlock()
	return nil
}

func (f *FileSource) ListCustomers(_ context.Context) ([]string, error) {
	if err := f.load(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	ids := make([]string, 0, len(f.bundles))
	for id := range f.bundles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *FileSource) FetchBundle(ctx context.Context, customerID string) (*model.MetricBundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	loaded := f.bundles != nil
	f.mu.RUnlock()
	if !loaded {
		if err := f.load(); err != nil {
			return nil, err
		}
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	b, ok := f.bundles[customerID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", customerID, ErrUnknownCustomer)
	}
	cp := *b
	return &cp, nil
}

// sortEvents ensures chronological order.
func sortEvents(events []model.Event) {
	sort.SliceStable(events, func(i, j int) bool { return events[i].At.Before(events[j].At) })
}
