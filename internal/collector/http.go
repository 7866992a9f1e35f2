package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"HealthSentinel/internal/config"
	"HealthSentinel/internal/model"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HTTPSource implements Source against the customer data REST API.
// Requests are rate limited and go through a circuit breaker.
type HTTPSource struct {
	BaseURL string
	APIKey  string
	Client  *http.Client

	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewHTTPSource creates a new source with optional proxy support.
func NewHTTPSource(cfg config.SourceConfig, proxyURL string, logger *zap.Logger) *HTTPSource {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}

	s := &HTTPSource{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		logger:  logger,
	}

	bc := cfg.Breaker
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "customer-source",
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bc.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= bc.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
		// an unknown customer is an answer, not an outage
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrUnknownCustomer)
		},
	})
	return s
}

func (s *HTTPSource) Name() string { return "http" }

type customerRef struct {
	ID string `json:"id"`
}

func (s *HTTPSource) ListCustomers(ctx context.Context) ([]string, error) {
	var refs []customerRef
	if err := s.get(ctx, s.BaseURL+"/api/v1/customers", &refs); err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	ids := make([]string, 0, len(refs))
	for _, r := range refs {
		if r.ID != "" {
			ids = append(ids, r.ID)
		}
	}
	return ids, nil
}

func (s *HTTPSource) FetchBundle(ctx context.Context, customerID string) (*model.MetricBundle, error) {
	endpoint := fmt.Sprintf("%s/api/v1/customers/%s/bundle", s.BaseURL, url.PathEscape(customerID))
	var b model.MetricBundle
	if err := s.get(ctx, endpoint, &b); err != nil {
		return nil, fmt.Errorf("fetch bundle %s: %w", customerID, err)
	}
	if b.Customer.ID == "" {
		b.Customer.ID = customerID
	}
	sortEvents(b.Events)
	return &b, nil
}

func (s *HTTPSource) get(ctx context.Context, endpoint string, out any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.do(ctx, endpoint, out)
	})
	return err
}

func (s *HTTPSource) do(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrUnknownCustomer
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
