// Package cache holds short-lived derived data such as dashboard snapshots.
package cache

import (
	"context"
	"time"
)

const (
	// KeyDashboardStats prefixes the serialized dashboard snapshot keys.
	KeyDashboardStats = "dashboard:stats"
	// KeyDashboardGeneration changes on every invalidation.
	KeyDashboardGeneration = "dashboard:gen"
)

// DashboardStatsKey names the snapshot computed under generation gen.
// A snapshot started before an invalidation lands under a key no reader uses.
func DashboardStatsKey(gen string) string {
	return KeyDashboardStats + ":" + gen
}

// DashboardGeneration returns the current generation, "0" before the first
// invalidation.
func DashboardGeneration(ctx context.Context, s Store) (string, error) {
	raw, ok, err := s.Get(ctx, KeyDashboardGeneration)
	if err != nil {
		return "", err
	}
	if !ok {
		return "0", nil
	}
	return string(raw), nil
}

type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// NoopStore never holds anything; used when Redis is not configured.
type NoopStore struct{}

func (NoopStore) Get(_ context.Context, _ string) ([]byte, bool, error) {
	return nil, false, nil
}

func (NoopStore) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	return nil
}

func (NoopStore) Delete(_ context.Context, _ ...string) error {
	return nil
}
