package capacity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oslo-kindergarten/placement-engine/internal/shared"
)

type mockStore struct {
	mu       sync.Mutex
	capacity map[uuid.UUID]int
	enrolled map[uuid.UUID]int
}

func newMockStore() *mockStore {
	return &mockStore{
		capacity: make(map[uuid.UUID]int),
		enrolled: make(map[uuid.UUID]int),
	}
}

func (m *mockStore) DepartmentCapacity(ctx context.Context, departmentID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capacity[departmentID], nil
}

func (m *mockStore) CountEnrolled(ctx context.Context, departmentID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enrolled[departmentID], nil
}

func (m *mockStore) setEnrolled(departmentID uuid.UUID, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enrolled[departmentID] = n
}

func TestReserveWithinCapacity(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	dept := uuid.New()
	store.capacity[dept] = 5
	store.enrolled[dept] = 3

	ledger := NewLedger(store, time.Minute, nil)

	res, err := ledger.Reserve(ctx, dept, 2)
	require.NoError(t, err)
	assert.Equal(t, dept, res.DepartmentID)
	assert.Equal(t, 2, res.Count)
	assert.NotEqual(t, uuid.Nil, res.Token)

	report, err := ledger.CapacityReport(ctx, dept)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Capacity)
	assert.Equal(t, 3, report.Enrolled)
	assert.Equal(t, 2, report.Reserved)
	assert.Equal(t, 0, report.Available)
}

func TestReserveDeniedWhenFull(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	dept := uuid.New()
	store.capacity[dept] = 5
	store.enrolled[dept] = 3

	ledger := NewLedger(store, time.Minute, nil)

	_, err := ledger.Reserve(ctx, dept, 2)
	require.NoError(t, err)

	_, err = ledger.Reserve(ctx, dept, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrCapacityExceeded)
}

func TestReserveRejectsInvalidCount(t *testing.T) {
	ledger := NewLedger(newMockStore(), time.Minute, nil)
	_, err := ledger.Reserve(context.Background(), uuid.New(), 0)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

// A denied reservation must succeed after a seat frees up. The freed seat
// flows through the derived enrolled count, not a stored counter.
func TestReserveAfterSeatFreed(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	dept := uuid.New()
	store.capacity[dept] = 2
	store.enrolled[dept] = 2

	ledger := NewLedger(store, time.Minute, nil)

	_, err := ledger.Reserve(ctx, dept, 1)
	require.ErrorIs(t, err, shared.ErrCapacityExceeded)

	// An admission terminates; the derived count drops.
	store.setEnrolled(dept, 1)

	res, err := ledger.Reserve(ctx, dept, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
}

func TestCommitReleasesReservedCounter(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	dept := uuid.New()
	store.capacity[dept] = 3

	ledger := NewLedger(store, time.Minute, nil)

	res, err := ledger.Reserve(ctx, dept, 1)
	require.NoError(t, err)

	// Persisting the transition bumps the derived count, then commit
	// drops the hold so the seat is not counted twice.
	store.setEnrolled(dept, 1)
	require.NoError(t, ledger.Commit(ctx, res.Token))

	report, err := ledger.CapacityReport(ctx, dept)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Enrolled)
	assert.Equal(t, 0, report.Reserved)
	assert.Equal(t, 2, report.Available)

	// Double settle of the same token fails.
	assert.ErrorIs(t, ledger.Commit(ctx, res.Token), shared.ErrNotFound)
}

func TestReleaseFreesSeat(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	dept := uuid.New()
	store.capacity[dept] = 1

	ledger := NewLedger(store, time.Minute, nil)

	res, err := ledger.Reserve(ctx, dept, 1)
	require.NoError(t, err)

	_, err = ledger.Reserve(ctx, dept, 1)
	require.ErrorIs(t, err, shared.ErrCapacityExceeded)

	require.NoError(t, ledger.Release(ctx, res.Token))

	_, err = ledger.Reserve(ctx, dept, 1)
	assert.NoError(t, err)
}

func TestCommitPortionDrawsDownAggregate(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	dept := uuid.New()
	store.capacity[dept] = 10

	ledger := NewLedger(store, time.Minute, nil)

	res, err := ledger.Reserve(ctx, dept, 3)
	require.NoError(t, err)

	require.NoError(t, ledger.CommitPortion(ctx, res.Token, 1))
	require.NoError(t, ledger.CommitPortion(ctx, res.Token, 1))

	report, err := ledger.CapacityReport(ctx, dept)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Reserved)

	// Consuming the remainder removes the token entirely.
	require.NoError(t, ledger.CommitPortion(ctx, res.Token, 1))
	assert.ErrorIs(t, ledger.CommitPortion(ctx, res.Token, 1), shared.ErrNotFound)

	report, err = ledger.CapacityReport(ctx, dept)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Reserved)
}

func TestCommitPortionOverdraw(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	dept := uuid.New()
	store.capacity[dept] = 10

	ledger := NewLedger(store, time.Minute, nil)

	res, err := ledger.Reserve(ctx, dept, 2)
	require.NoError(t, err)

	assert.ErrorIs(t, ledger.CommitPortion(ctx, res.Token, 3), shared.ErrValidation)
}

func TestSweepExpiredReclaimsSeats(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	dept := uuid.New()
	store.capacity[dept] = 1

	ledger := NewLedger(store, 30*time.Second, nil)
	base := time.Now()
	ledger.SetClock(func() time.Time { return base })

	res, err := ledger.Reserve(ctx, dept, 1)
	require.NoError(t, err)
	require.Equal(t, base.Add(30*time.Second), res.ExpiresAt)

	// Before the TTL nothing is reclaimed.
	assert.Equal(t, 0, ledger.SweepExpired(ctx))

	ledger.SetClock(func() time.Time { return base.Add(time.Minute) })
	assert.Equal(t, 1, ledger.SweepExpired(ctx))

	// The seat is free again and the stale token is dead.
	_, err = ledger.Reserve(ctx, dept, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, ledger.Commit(ctx, res.Token), shared.ErrNotFound)
}

func TestConcurrentReservesNeverExceedCapacity(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	dept := uuid.New()
	store.capacity[dept] = 5

	ledger := NewLedger(store, time.Minute, nil)

	var wg sync.WaitGroup
	granted := make(chan Reservation, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res, err := ledger.Reserve(ctx, dept, 1); err == nil {
				granted <- res
			}
		}()
	}
	wg.Wait()
	close(granted)

	count := 0
	for range granted {
		count++
	}
	assert.Equal(t, 5, count)
}

func TestReportsAreIndependentPerDepartment(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	a, b := uuid.New(), uuid.New()
	store.capacity[a] = 3
	store.capacity[b] = 3

	ledger := NewLedger(store, time.Minute, nil)

	_, err := ledger.Reserve(ctx, a, 2)
	require.NoError(t, err)

	reportB, err := ledger.CapacityReport(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, 0, reportB.Reserved)
	assert.Equal(t, 3, reportB.Available)
}
