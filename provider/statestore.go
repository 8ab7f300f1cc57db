package provider

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// PaymentState is the orchestrator's tracked lifecycle record for one
// payment intent, keyed by the intent id.
type PaymentState struct {
	PaymentIntentID string            `json:"paymentIntentId"`
	Provider        string            `json:"provider"`
	Status          PaymentStatus     `json:"status"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
	RetryCount      int               `json:"retryCount"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// StateStore persists payment states. Upsert must be idempotent by intent id:
// re-tracking an existing id increments RetryCount instead of duplicating.
type StateStore interface {
	Upsert(ctx context.Context, state PaymentState) (PaymentState, error)
	Get(ctx context.Context, paymentIntentID string) (*PaymentState, error)
	Delete(ctx context.Context, paymentIntentID string) error
	Len(ctx context.Context) (int, error)
}

// DefaultStateCap bounds the in-memory store; oldest records are evicted
const DefaultStateCap = 10000

// MemoryStateStore is a size-bounded in-memory store with drop-oldest
// eviction.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]*PaymentState
	order  []string // insertion order for eviction
	cap    int
	clock  Clock
}

// NewMemoryStateStore creates a bounded in-memory state store
func NewMemoryStateStore(capacity int, clock Clock) *MemoryStateStore {
	if capacity <= 0 {
		capacity = DefaultStateCap
	}
	if clock == nil {
		clock = NewClock()
	}
	return &MemoryStateStore{
		states: make(map[string]*PaymentState),
		cap:    capacity,
		clock:  clock,
	}
}

// Upsert creates the state or updates it in place; an existing id gets its
// RetryCount incremented and status/provider refreshed.
func (s *MemoryStateStore) Upsert(ctx context.Context, state PaymentState) (PaymentState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if existing, ok := s.states[state.PaymentIntentID]; ok {
		existing.Provider = state.Provider
		existing.Status = state.Status
		existing.RetryCount++
		existing.UpdatedAt = now
		if state.Metadata != nil {
			existing.Metadata = state.Metadata
		}
		return *existing, nil
	}

	if len(s.states) >= s.cap {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.states, oldest)
	}

	state.CreatedAt = now
	state.UpdatedAt = now
	state.RetryCount = 0
	s.states[state.PaymentIntentID] = &state
	s.order = append(s.order, state.PaymentIntentID)
	return state, nil
}

// Get returns a copy of the state, or nil when absent
func (s *MemoryStateStore) Get(ctx context.Context, paymentIntentID string) (*PaymentState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[paymentIntentID]
	if !ok {
		return nil, nil
	}
	copied := *state
	return &copied, nil
}

// Delete removes a state if present
func (s *MemoryStateStore) Delete(ctx context.Context, paymentIntentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.states[paymentIntentID]; !ok {
		return nil
	}
	delete(s.states, paymentIntentID)
	for i, id := range s.order {
		if id == paymentIntentID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Len returns the current record count
func (s *MemoryStateStore) Len(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states), nil
}

// SQLiteStateStore persists payment states in SQLite for deployments that
// need durability across restarts. The schema is created on construction.
type SQLiteStateStore struct {
	db    *sql.DB
	clock Clock
}

// NewSQLiteStateStore creates the table if needed and returns the store
func NewSQLiteStateStore(db *sql.DB, clock Clock) (*SQLiteStateStore, error) {
	if clock == nil {
		clock = NewClock()
	}
	schema := `
		CREATE TABLE IF NOT EXISTS payment_states (
			payment_intent_id TEXT PRIMARY KEY,
			provider TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			metadata TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_payment_states_updated ON payment_states(updated_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create payment_states schema: %w", err)
	}
	return &SQLiteStateStore{db: db, clock: clock}, nil
}

// Upsert inserts or updates by intent id, incrementing retry_count on update
func (s *SQLiteStateStore) Upsert(ctx context.Context, state PaymentState) (PaymentState, error) {
	now := s.clock.Now().UTC()

	var metadata []byte
	if state.Metadata != nil {
		var err error
		metadata, err = json.Marshal(state.Metadata)
		if err != nil {
			return PaymentState{}, fmt.Errorf("failed to marshal state metadata: %w", err)
		}
	}

	query := `
		INSERT INTO payment_states (payment_intent_id, provider, status, created_at, updated_at, retry_count, metadata)
		VALUES (?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(payment_intent_id) DO UPDATE SET
			provider = excluded.provider,
			status = excluded.status,
			updated_at = excluded.updated_at,
			retry_count = payment_states.retry_count + 1,
			metadata = COALESCE(excluded.metadata, payment_states.metadata)
	`
	if _, err := s.db.ExecContext(ctx, query,
		state.PaymentIntentID, state.Provider, string(state.Status), now, now, metadata,
	); err != nil {
		return PaymentState{}, fmt.Errorf("failed to upsert payment state: %w", err)
	}

	stored, err := s.Get(ctx, state.PaymentIntentID)
	if err != nil {
		return PaymentState{}, err
	}
	return *stored, nil
}

// Get loads a state; returns nil without error when absent
func (s *SQLiteStateStore) Get(ctx context.Context, paymentIntentID string) (*PaymentState, error) {
	query := `
		SELECT payment_intent_id, provider, status, created_at, updated_at, retry_count, metadata
		FROM payment_states WHERE payment_intent_id = ?
	`
	var state PaymentState
	var status string
	var metadata sql.NullString
	err := s.db.QueryRowContext(ctx, query, paymentIntentID).Scan(
		&state.PaymentIntentID, &state.Provider, &status,
		&state.CreatedAt, &state.UpdatedAt, &state.RetryCount, &metadata,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment state: %w", err)
	}
	state.Status = PaymentStatus(status)
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &state.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal state metadata: %w", err)
		}
	}
	return &state, nil
}

// Delete removes a state row
func (s *SQLiteStateStore) Delete(ctx context.Context, paymentIntentID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM payment_states WHERE payment_intent_id = ?", paymentIntentID)
	if err != nil {
		return fmt.Errorf("failed to delete payment state: %w", err)
	}
	return nil
}

// Len counts stored states
func (s *SQLiteStateStore) Len(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM payment_states").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count payment states: %w", err)
	}
	return count, nil
}

// PruneOlderThan removes states not updated within the retention window;
// wired to the scheduler tick in the composition root.
func (s *SQLiteStateStore) PruneOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.clock.Now().UTC().Add(-retention)
	res, err := s.db.ExecContext(ctx, "DELETE FROM payment_states WHERE updated_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune payment states: %w", err)
	}
	return res.RowsAffected()
}
