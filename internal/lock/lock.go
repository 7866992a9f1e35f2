// Package lock serializes work on a single customer across concurrent runs.
package lock

import (
	"context"
	"sync"

	"HealthSentinel/internal/config"

	"go.uber.org/zap"
)

// Locker hands out exclusive per-key locks. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
	Close() error
}

// New returns a Redis-backed locker when an address is configured, an in-process one otherwise.
func New(cfg config.RedisConfig, logger *zap.Logger) Locker {
	if cfg.Addr == "" {
		return NewLocal()
	}
	return NewRedis(cfg, logger)
}

// Local is an in-process keyed lock.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.release(key, s)
		})
	}, nil
}

func (l *Local) release(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

func (l *Local) Close() error { return nil }
