package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// HealthState classifies a provider's current availability
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthDegraded  HealthState = "degraded"
	HealthUnhealthy HealthState = "unhealthy"
)

// HealthStatus is the per-provider health snapshot, overwritten on every
// health-check tick and after every load-affecting event.
type HealthStatus struct {
	Status      HealthState   `json:"status"`
	Latency     time.Duration `json:"latency"`
	SuccessRate float64       `json:"successRate"`
	ErrorRate   float64       `json:"errorRate"`
	LastChecked time.Time     `json:"lastChecked"`
}

// LoadMetrics are per-provider live load counters. RequestsPerMinute and
// ErrorRate decay once per minute to approximate a sliding window.
type LoadMetrics struct {
	CurrentRequests       int     `json:"currentRequests"`
	RequestsPerMinute     int     `json:"requestsPerMinute"`
	AverageResponseTimeMs float64 `json:"averageResponseTimeMs"`
	ErrorRate             float64 `json:"errorRate"`
	HealthScore           float64 `json:"healthScore"` // 0..1, nudged on success/error
}

// HealthStore shares provider health snapshots across instances. The registry
// writes its snapshot after every check; readers on other instances can route
// around providers a peer already marked unhealthy.
type HealthStore interface {
	Save(ctx context.Context, providerName string, status HealthStatus) error
	Load(ctx context.Context, providerName string) (*HealthStatus, error)
}

// RedisHealthStore keeps health snapshots in Redis under health:<provider>.
type RedisHealthStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisHealthStore creates a Redis-backed health store. A zero ttl keeps
// snapshots until overwritten.
func NewRedisHealthStore(client *redis.Client, ttl time.Duration) *RedisHealthStore {
	return &RedisHealthStore{client: client, ttl: ttl}
}

func healthKey(providerName string) string {
	return fmt.Sprintf("health:%s", providerName)
}

// Save stores the health snapshot
func (s *RedisHealthStore) Save(ctx context.Context, providerName string, status HealthStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal health status: %w", err)
	}
	if err := s.client.Set(ctx, healthKey(providerName), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save health status for %s: %w", providerName, err)
	}
	return nil
}

// Load retrieves the health snapshot; redis.Nil maps to a not-found error
func (s *RedisHealthStore) Load(ctx context.Context, providerName string) (*HealthStatus, error) {
	data, err := s.client.Get(ctx, healthKey(providerName)).Bytes()
	if err == redis.Nil {
		return nil, NewProviderError(providerName, ErrProviderNotFound, "no health snapshot stored")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load health status for %s: %w", providerName, err)
	}
	var status HealthStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal health status: %w", err)
	}
	return &status, nil
}
