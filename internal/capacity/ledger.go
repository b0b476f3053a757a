// Package capacity is the single source of truth for whether a department
// can accept one more admission. Seats are claimed through a three-step
// reserve/commit/release protocol so that validation failures downstream
// never leave a department's capacity permanently consumed.
package capacity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oslo-kindergarten/placement-engine/internal/shared"
)

// Store supplies the persisted counts the ledger checks against. Enrolled
// is always derived by counting admissions in ACTIVE/FUTURE states, never
// read from a stored counter.
type Store interface {
	DepartmentCapacity(ctx context.Context, departmentID uuid.UUID) (int, error)
	CountEnrolled(ctx context.Context, departmentID uuid.UUID) (int, error)
}

// Reservation is a transient hold on department capacity.
type Reservation struct {
	Token        uuid.UUID `json:"token"`
	DepartmentID uuid.UUID `json:"department_id"`
	Count        int       `json:"count"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Report is a read-only capacity snapshot.
type Report struct {
	DepartmentID uuid.UUID `json:"department_id"`
	Capacity     int       `json:"capacity"`
	Enrolled     int       `json:"enrolled"`
	Reserved     int       `json:"reserved"`
	Available    int       `json:"available"`
}

// Ledger tracks reservations per department. Capacity changes for one
// department are serialized through a per-department critical section;
// different departments proceed fully in parallel.
type Ledger struct {
	store  Store
	locks  *shared.KeyedMutex
	logger *slog.Logger
	ttl    time.Duration
	cache  *ReportCache
	now    func() time.Time

	mu       sync.Mutex
	tokens   map[uuid.UUID]Reservation
	reserved map[uuid.UUID]int
}

// NewLedger constructs a Ledger. ttl bounds how long an uncommitted
// reservation may starve a department before the sweep reclaims it.
func NewLedger(store Store, ttl time.Duration, logger *slog.Logger) *Ledger {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Ledger{
		store:    store,
		locks:    shared.NewKeyedMutex(),
		logger:   logger,
		ttl:      ttl,
		now:      time.Now,
		tokens:   make(map[uuid.UUID]Reservation),
		reserved: make(map[uuid.UUID]int),
	}
}

// SetCache attaches the redis-backed report cache.
func (l *Ledger) SetCache(cache *ReportCache) {
	l.cache = cache
}

// SetClock overrides the time source. Used by tests.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// Reserve atomically checks enrolled + reserved + count <= capacity and,
// when satisfied, places a hold that expires after the configured TTL.
func (l *Ledger) Reserve(ctx context.Context, departmentID uuid.UUID, count int) (Reservation, error) {
	if count < 1 {
		return Reservation{}, fmt.Errorf("capacity: reserve count %d: %w", count, shared.ErrValidation)
	}

	key := shared.DepartmentLockKey(departmentID)
	l.locks.Lock(key)
	defer l.locks.Unlock(key)

	cap, err := l.store.DepartmentCapacity(ctx, departmentID)
	if err != nil {
		return Reservation{}, fmt.Errorf("capacity: department %s: %w", departmentID, err)
	}
	enrolled, err := l.store.CountEnrolled(ctx, departmentID)
	if err != nil {
		return Reservation{}, fmt.Errorf("capacity: count enrolled: %w", err)
	}

	l.mu.Lock()
	reserved := l.reserved[departmentID]
	if enrolled+reserved+count > cap {
		l.mu.Unlock()
		return Reservation{}, fmt.Errorf("capacity: department %s has %d enrolled, %d reserved of %d seats: %w",
			departmentID, enrolled, reserved, cap, shared.ErrCapacityExceeded)
	}
	res := Reservation{
		Token:        uuid.New(),
		DepartmentID: departmentID,
		Count:        count,
		ExpiresAt:    l.now().Add(l.ttl),
	}
	l.tokens[res.Token] = res
	l.reserved[departmentID] = reserved + count
	l.mu.Unlock()

	l.invalidate(ctx, departmentID)
	return res, nil
}

// Commit finalizes a reservation once the admission state change backing
// it has been persisted. The reserved counter is released; the seats are
// now visible through the derived enrolled count.
func (l *Ledger) Commit(ctx context.Context, token uuid.UUID) error {
	return l.settle(ctx, token, "commit")
}

// Release discards an unused reservation after a caller abort or a
// downstream validation failure.
func (l *Ledger) Release(ctx context.Context, token uuid.UUID) error {
	return l.settle(ctx, token, "release")
}

// CommitPortion consumes n seats from an aggregate reservation, leaving
// the remainder held. Bulk actions reserve their whole capacity window
// up front and draw it down one committed target at a time.
func (l *Ledger) CommitPortion(ctx context.Context, token uuid.UUID, n int) error {
	if n < 1 {
		return fmt.Errorf("capacity: commit portion %d: %w", n, shared.ErrValidation)
	}
	l.mu.Lock()
	res, ok := l.tokens[token]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("capacity: commit token %s: %w", token, shared.ErrNotFound)
	}
	if n > res.Count {
		l.mu.Unlock()
		return fmt.Errorf("capacity: commit %d of %d reserved: %w", n, res.Count, shared.ErrValidation)
	}
	res.Count -= n
	if res.Count == 0 {
		delete(l.tokens, token)
	} else {
		l.tokens[token] = res
	}
	l.reserved[res.DepartmentID] -= n
	if l.reserved[res.DepartmentID] <= 0 {
		delete(l.reserved, res.DepartmentID)
	}
	l.mu.Unlock()

	l.invalidate(ctx, res.DepartmentID)
	return nil
}

// InvalidateReport drops the cached report after the derived enrolled
// count changed outside the reservation protocol (a seat freed).
func (l *Ledger) InvalidateReport(ctx context.Context, departmentID uuid.UUID) {
	l.invalidate(ctx, departmentID)
}

func (l *Ledger) settle(ctx context.Context, token uuid.UUID, op string) error {
	l.mu.Lock()
	res, ok := l.tokens[token]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("capacity: %s token %s: %w", op, token, shared.ErrNotFound)
	}
	delete(l.tokens, token)
	l.reserved[res.DepartmentID] -= res.Count
	if l.reserved[res.DepartmentID] <= 0 {
		delete(l.reserved, res.DepartmentID)
	}
	l.mu.Unlock()

	l.invalidate(ctx, res.DepartmentID)
	return nil
}

// CapacityReport returns the current snapshot for one department.
func (l *Ledger) CapacityReport(ctx context.Context, departmentID uuid.UUID) (Report, error) {
	if l.cache != nil {
		if report, ok := l.cache.Get(ctx, departmentID); ok {
			return report, nil
		}
	}

	cap, err := l.store.DepartmentCapacity(ctx, departmentID)
	if err != nil {
		return Report{}, fmt.Errorf("capacity: department %s: %w", departmentID, err)
	}
	enrolled, err := l.store.CountEnrolled(ctx, departmentID)
	if err != nil {
		return Report{}, fmt.Errorf("capacity: count enrolled: %w", err)
	}

	l.mu.Lock()
	reserved := l.reserved[departmentID]
	l.mu.Unlock()

	report := Report{
		DepartmentID: departmentID,
		Capacity:     cap,
		Enrolled:     enrolled,
		Reserved:     reserved,
		Available:    cap - enrolled - reserved,
	}
	if l.cache != nil {
		l.cache.Put(ctx, report)
	}
	return report, nil
}

// SweepExpired reclaims reservations that were never committed or
// released within the TTL. Failures here are logged, never surfaced to
// the original caller, who has already timed out.
func (l *Ledger) SweepExpired(ctx context.Context) int {
	cutoff := l.now()

	l.mu.Lock()
	var expired []Reservation
	for token, res := range l.tokens {
		if res.ExpiresAt.Before(cutoff) {
			expired = append(expired, res)
			delete(l.tokens, token)
			l.reserved[res.DepartmentID] -= res.Count
			if l.reserved[res.DepartmentID] <= 0 {
				delete(l.reserved, res.DepartmentID)
			}
		}
	}
	l.mu.Unlock()

	for _, res := range expired {
		l.invalidate(ctx, res.DepartmentID)
		if l.logger != nil {
			l.logger.Warn("reclaimed expired reservation",
				slog.String("token", res.Token.String()),
				slog.String("department_id", res.DepartmentID.String()),
				slog.Int("count", res.Count))
		}
	}
	return len(expired)
}

func (l *Ledger) invalidate(ctx context.Context, departmentID uuid.UUID) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Invalidate(ctx, departmentID); err != nil && l.logger != nil {
		l.logger.Warn("invalidate capacity cache", slog.Any("error", err))
	}
}
