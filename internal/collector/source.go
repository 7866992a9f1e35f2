// Package collector fetches customer records and raw activity from the ingestion side.
package collector

import (
	"context"
	"errors"
	"fmt"

	"HealthSentinel/internal/config"
	"HealthSentinel/internal/model"

	"go.uber.org/zap"
)

var ErrUnknownCustomer = errors.New("collector: unknown customer")

// Source defines where metric bundles come from.
type Source interface {
	ListCustomers(ctx context.Context) ([]string, error)
	FetchBundle(ctx context.Context, customerID string) (*model.MetricBundle, error)
	Name() string
}

// New builds the configured source.
func New(cfg config.SourceConfig, proxyURL string, logger *zap.Logger) (Source, error) {
	switch cfg.Kind {
	case "file":
		return NewFileSource(cfg.Path), nil
	case "http":
		return NewHTTPSource(cfg, proxyURL, logger), nil
	case "mock":
		return NewMockSource(), nil
	}
	return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
}
