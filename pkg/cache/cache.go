package cache

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Cache stores short-lived string values, such as bonus ceilings fetched from the rank service.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type cachedValue struct {
	Value     string
	ExpiresAt time.Time
}

// Memory is a process-local Cache. Expired values are dropped on read.
type Memory struct {
	mu     sync.Mutex
	values map[string]cachedValue
	now    func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		values: make(map[string]cachedValue),
		now:    time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.values[key]
	if !ok {
		return "", false, nil
	}
	if !m.now().Before(v.ExpiresAt) {
		delete(m.values, key)
		return "", false, nil
	}

	logrus.WithField("key", key).Debug("value taken from memory cache")
	return v.Value, true, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = cachedValue{
		Value:     value,
		ExpiresAt: m.now().Add(ttl),
	}
	return nil
}
