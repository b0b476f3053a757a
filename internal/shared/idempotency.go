package shared

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrIdempotencyConflict indicates a duplicate key.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// IdempotencyStore persists processed keys. Keys are scoped per module so
// the same caller-supplied key can be reused across unrelated operations.
type IdempotencyStore interface {
	// CheckAndInsert records the key, failing with ErrIdempotencyConflict
	// when it was already recorded.
	CheckAndInsert(ctx context.Context, key, module string) error
	// Delete removes a key, typically used to roll back failed processing.
	Delete(ctx context.Context, key string) error
	// Cleanup removes entries older than retention.
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// PGIdempotencyStore is the PostgreSQL-backed store.
type PGIdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewPGIdempotencyStore constructs the store.
func NewPGIdempotencyStore(pool *pgxpool.Pool) *PGIdempotencyStore {
	return &PGIdempotencyStore{pool: pool}
}

// CheckAndInsert ensures key uniqueness per module.
func (s *PGIdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)`, key, module, time.Now())
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok {
			if pgErr.Code == "23505" {
				return ErrIdempotencyConflict
			}
		}
		return err
	}
	return nil
}

// Delete removes a key.
func (s *PGIdempotencyStore) Delete(ctx context.Context, key string) error {
	if s == nil {
		return nil
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key=$1`, key)
	return err
}

// Cleanup removes entries older than retention.
func (s *PGIdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if s == nil {
		return nil
	}
	cutoff := time.Now().Add(-olderThan)
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	return err
}

// MemoryIdempotencyStore keeps keys in process memory. Used by tests and
// single-node embedded deployments.
type MemoryIdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]time.Time
}

// NewMemoryIdempotencyStore constructs the in-memory store.
func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{keys: make(map[string]time.Time)}
}

// CheckAndInsert records the key once.
func (s *MemoryIdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	full := module + ":" + key
	if _, ok := s.keys[full]; ok {
		return ErrIdempotencyConflict
	}
	s.keys[full] = time.Now()
	return nil
}

// Delete removes a key across all modules.
func (s *MemoryIdempotencyStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for full := range s.keys {
		if len(full) > len(key) && full[len(full)-len(key):] == key && full[len(full)-len(key)-1] == ':' {
			delete(s.keys, full)
		}
	}
	return nil
}

// Cleanup removes entries older than retention.
func (s *MemoryIdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	s.mu.Lock()
	defer s.mu.Unlock()
	for full, at := range s.keys {
		if at.Before(cutoff) {
			delete(s.keys, full)
		}
	}
	return nil
}
