package collector

import (
	"context"
	"sort"
	"sync"
	"time"

	"HealthSentinel/internal/model"
)

// MockSource returns controllable fixed bundles for development and testing.
type MockSource struct {
	mu      sync.Mutex
	bundles map[string]*model.MetricBundle
	errs    map[string]error
	// Delay is applied to every FetchBundle call.
	Delay time.Duration
}

func NewMockSource(bundles ...*model.MetricBundle) *MockSource {
	m := &MockSource{bundles: make(map[string]*model.MetricBundle), errs: make(map[string]error)}
	for _, b := range bundles {
		m.Put(b)
	}
	return m
}

func (m *MockSource) Name() string { return "mock" }

// Put adds or replaces the bundle for its customer.
func (m *MockSource) Put(b *model.MetricBundle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bundles[b.Customer.ID] = b
}

// Fail makes FetchBundle return err for the customer.
func (m *MockSource) Fail(customerID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[customerID] = err
}

func (m *MockSource) ListCustomers(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.bundles))
	for id := range m.bundles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MockSource) FetchBundle(ctx context.Context, customerID string) (*model.MetricBundle, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs[customerID]; err != nil {
		return nil, err
	}
	b, ok := m.bundles[customerID]
	if !ok {
		return nil, ErrUnknownCustomer
	}
	cp := *b
	return &cp, nil
}
