package dualplacement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oslo-kindergarten/placement-engine/internal/admission"
	"github.com/oslo-kindergarten/placement-engine/internal/capacity"
	"github.com/oslo-kindergarten/placement-engine/internal/municipal"
	"github.com/oslo-kindergarten/placement-engine/internal/registry"
	"github.com/oslo-kindergarten/placement-engine/internal/shared"
)

type mockAdmissions struct {
	admissions   map[uuid.UUID]admission.Admission
	createErr    error
	timetableErr error
	created      []admission.Admission
	timetables   map[uuid.UUID]admission.Timetable
}

func newMockAdmissions() *mockAdmissions {
	return &mockAdmissions{
		admissions: make(map[uuid.UUID]admission.Admission),
		timetables: make(map[uuid.UUID]admission.Timetable),
	}
}

func (m *mockAdmissions) GetByID(ctx context.Context, id uuid.UUID) (admission.Admission, error) {
	a, ok := m.admissions[id]
	if !ok {
		return admission.Admission{}, shared.ErrNotFound
	}
	return a, nil
}

func (m *mockAdmissions) ListByChild(ctx context.Context, childID uuid.UUID) ([]admission.Admission, error) {
	var out []admission.Admission
	for _, a := range m.admissions {
		if a.ChildID == childID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockAdmissions) Create(ctx context.Context, a admission.Admission, event admission.Event) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.admissions[a.ID] = a
	m.created = append(m.created, a)
	return nil
}

func (m *mockAdmissions) UpdateTimetable(ctx context.Context, id uuid.UUID, expectedVersion int64, timetable admission.Timetable, event admission.Event) error {
	if m.timetableErr != nil {
		return m.timetableErr
	}
	a, ok := m.admissions[id]
	if !ok {
		return shared.ErrNotFound
	}
	if a.Version != expectedVersion {
		return shared.ErrConcurrentModification
	}
	a.Timetable = timetable
	a.Version++
	m.admissions[id] = a
	m.timetables[id] = timetable
	return nil
}

func (m *mockAdmissions) UpdateStatus(ctx context.Context, id uuid.UUID, expectedVersion int64, to admission.Status, endDate *time.Time, event admission.Event) error {
	a, ok := m.admissions[id]
	if !ok {
		return shared.ErrNotFound
	}
	if a.Version != expectedVersion {
		return shared.ErrConcurrentModification
	}
	a.Status = to
	a.Version++
	m.admissions[id] = a
	return nil
}

type mockLinkRepo struct {
	links     map[uuid.UUID]DualPlacement
	createErr error
}

func newMockLinkRepo() *mockLinkRepo {
	return &mockLinkRepo{links: make(map[uuid.UUID]DualPlacement)}
}

func (m *mockLinkRepo) Create(ctx context.Context, dp DualPlacement) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.links[dp.ID] = dp
	return nil
}

func (m *mockLinkRepo) GetByAdmission(ctx context.Context, admissionID uuid.UUID) (DualPlacement, error) {
	for _, dp := range m.links {
		if dp.PrimaryAdmissionID == admissionID || dp.SecondaryAdmissionID == admissionID {
			return dp, nil
		}
	}
	return DualPlacement{}, shared.ErrNotFound
}

type mockStore struct {
	capacity map[uuid.UUID]int
	enrolled map[uuid.UUID]int
}

func (m *mockStore) DepartmentCapacity(ctx context.Context, departmentID uuid.UUID) (int, error) {
	return m.capacity[departmentID], nil
}

func (m *mockStore) CountEnrolled(ctx context.Context, departmentID uuid.UUID) (int, error) {
	return m.enrolled[departmentID], nil
}

type mockChildren struct {
	children map[uuid.UUID]registry.Child
}

func (m *mockChildren) GetChild(ctx context.Context, id uuid.UUID) (registry.Child, error) {
	c, ok := m.children[id]
	if !ok {
		return registry.Child{}, shared.ErrNotFound
	}
	return c, nil
}

type fixture struct {
	coordinator *Coordinator
	admissions  *mockAdmissions
	links       *mockLinkRepo
	store       *mockStore
	ledger      *capacity.Ledger
	idempotency shared.IdempotencyStore
	child       registry.Child
	primary     admission.Admission
	primaryDept uuid.UUID
	secondDept  uuid.UUID
	now         time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	child := registry.Child{ID: uuid.New(), FirstName: "Emil", BirthDate: time.Date(2021, 11, 2, 0, 0, 0, 0, time.UTC)}
	primaryDept, secondDept := uuid.New(), uuid.New()

	admissions := newMockAdmissions()
	primary := admission.Admission{
		ID:           uuid.New(),
		ChildID:      child.ID,
		DepartmentID: primaryDept,
		Status:       admission.StatusActive,
		StartDate:    now.AddDate(0, -6, 0),
		Version:      1,
		Timetable:    admission.Timetable{admission.DayMonday: {{Start: 8 * 60, End: 16 * 60}}},
	}
	admissions.admissions[primary.ID] = primary

	store := &mockStore{
		capacity: map[uuid.UUID]int{primaryDept: 10, secondDept: 10},
		enrolled: map[uuid.UUID]int{},
	}
	ledger := capacity.NewLedger(store, time.Minute, nil)

	links := newMockLinkRepo()
	idempotency := shared.NewMemoryIdempotencyStore()
	c := NewCoordinator(
		admissions,
		links,
		ledger,
		&mockChildren{children: map[uuid.UUID]registry.Child{child.ID: child}},
		municipal.StaticPolicy{WeeklyHours: 45},
		idempotency,
		nil,
	)
	c.SetClock(func() time.Time { return now })

	f := &fixture{
		coordinator: c,
		admissions:  admissions,
		links:       links,
		store:       store,
		ledger:      ledger,
		idempotency: idempotency,
		child:       child,
		primary:     primary,
		primaryDept: primaryDept,
		secondDept:  secondDept,
		now:         now,
	}
	return f
}

func (f *fixture) params() Params {
	return Params{
		ChildID:            f.child.ID,
		PrimaryAdmissionID: f.primary.ID,
		SecondaryDepartmentID: f.secondDept,
		StartDate:          f.now.AddDate(0, 0, -1),
		RateCategory:       "FULL_TIME",
		PrimarySchedule: admission.Timetable{
			admission.DayMonday:  {{Start: 8 * 60, End: 16 * 60}},
			admission.DayTuesday: {{Start: 8 * 60, End: 16 * 60}},
		},
		SecondarySchedule: admission.Timetable{
			admission.DayThursday: {{Start: 8 * 60, End: 16 * 60}},
			admission.DayFriday:   {{Start: 8 * 60, End: 16 * 60}},
		},
		Actor: "caseworker-1",
	}
}

func TestSetupCreatesLinkedPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dp, err := f.coordinator.Setup(ctx, f.params())
	require.NoError(t, err)
	assert.Equal(t, f.primary.ID, dp.PrimaryAdmissionID)
	assert.NotEqual(t, uuid.Nil, dp.SecondaryAdmissionID)

	// The secondary admission is ACTIVE (start date in the past) in the
	// secondary department.
	require.Len(t, f.admissions.created, 1)
	secondary := f.admissions.created[0]
	assert.Equal(t, admission.StatusActive, secondary.Status)
	assert.Equal(t, f.secondDept, secondary.DepartmentID)

	// The primary's schedule was rewritten to its split.
	assert.Len(t, f.admissions.timetables[f.primary.ID], 2)

	// The reservation was committed, not leaked.
	report, err := f.ledger.CapacityReport(ctx, f.secondDept)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Reserved)
}

func TestSetupFutureStartDate(t *testing.T) {
	f := newFixture(t)
	params := f.params()
	params.StartDate = f.now.AddDate(0, 1, 0)

	_, err := f.coordinator.Setup(context.Background(), params)
	require.NoError(t, err)
	require.Len(t, f.admissions.created, 1)
	assert.Equal(t, admission.StatusFuture, f.admissions.created[0].Status)
}

func TestSetupRejectsOverlappingSchedules(t *testing.T) {
	f := newFixture(t)
	params := f.params()
	params.SecondarySchedule = admission.Timetable{
		admission.DayMonday: {{Start: 10 * 60, End: 14 * 60}},
	}

	_, err := f.coordinator.Setup(context.Background(), params)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrScheduleConflict)
	assert.Empty(t, f.admissions.created)
}

func TestSetupRejectsHoursAboveCeiling(t *testing.T) {
	f := newFixture(t)
	params := f.params()
	// 3 + 3 full days of 8h = 48h against a 45h ceiling.
	params.PrimarySchedule[admission.DayWednesday] = []admission.TimeWindow{{Start: 8 * 60, End: 16 * 60}}
	params.SecondarySchedule[admission.DayWednesday] = []admission.TimeWindow{{Start: 16 * 60, End: 24 * 60}}

	_, err := f.coordinator.Setup(context.Background(), params)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestSetupRejectsFullSecondaryDepartment(t *testing.T) {
	f := newFixture(t)
	f.store.enrolled[f.secondDept] = 10

	_, err := f.coordinator.Setup(context.Background(), f.params())
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrCapacityExceeded)
	assert.Empty(t, f.admissions.created)
}

func TestSetupRejectsInactivePrimary(t *testing.T) {
	f := newFixture(t)
	f.primary.Status = admission.StatusQueued
	f.admissions.admissions[f.primary.ID] = f.primary

	_, err := f.coordinator.Setup(context.Background(), f.params())
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestSetupRejectsWrongChild(t *testing.T) {
	f := newFixture(t)
	other := registry.Child{ID: uuid.New()}
	f.coordinator.children = &mockChildren{children: map[uuid.UUID]registry.Child{
		f.child.ID: f.child,
		other.ID:   other,
	}}
	params := f.params()
	params.ChildID = other.ID

	_, err := f.coordinator.Setup(context.Background(), params)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestSetupRejectsSameDepartment(t *testing.T) {
	f := newFixture(t)
	params := f.params()
	params.SecondaryDepartmentID = f.primaryDept

	_, err := f.coordinator.Setup(context.Background(), params)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestSetupRejectsThirdPlacement(t *testing.T) {
	f := newFixture(t)
	extra := admission.Admission{
		ID:           uuid.New(),
		ChildID:      f.child.ID,
		DepartmentID: uuid.New(),
		Status:       admission.StatusFuture,
		Version:      1,
	}
	f.admissions.admissions[extra.ID] = extra

	_, err := f.coordinator.Setup(context.Background(), f.params())
	assert.ErrorIs(t, err, shared.ErrValidation)
}

// A persistence failure after the reservation must release the held seat.
func TestSetupReleasesReservationOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.admissions.createErr = errors.New("db down")

	_, err := f.coordinator.Setup(ctx, f.params())
	require.Error(t, err)

	report, err := f.ledger.CapacityReport(ctx, f.secondDept)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Reserved)
	assert.Equal(t, 10, report.Available)
}

// When the primary's schedule rewrite fails, the secondary admission
// created just before must not survive as an unlinked seat holder.
func TestSetupDiscardsSecondaryOnTimetableFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.admissions.timetableErr = errors.New("db down")

	_, err := f.coordinator.Setup(ctx, f.params())
	require.Error(t, err)

	require.Len(t, f.admissions.created, 1)
	secondary := f.admissions.admissions[f.admissions.created[0].ID]
	assert.Equal(t, admission.StatusDeleted, secondary.Status)

	report, err := f.ledger.CapacityReport(ctx, f.secondDept)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Reserved)
}

func TestSetupDiscardsSecondaryOnLinkFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.links.createErr = errors.New("db down")

	_, err := f.coordinator.Setup(ctx, f.params())
	require.Error(t, err)

	require.Len(t, f.admissions.created, 1)
	secondary := f.admissions.admissions[f.admissions.created[0].ID]
	assert.Equal(t, admission.StatusDeleted, secondary.Status)
	assert.Empty(t, f.links.links)
}

// A retried setup with the same Idempotency-Key replays the existing
// link instead of creating a second secondary admission.
func TestSetupDuplicateKeyReplaysLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	params := f.params()
	params.IdempotencyKey = "setup-1"

	first, err := f.coordinator.Setup(ctx, params)
	require.NoError(t, err)

	second, err := f.coordinator.Setup(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.admissions.created, 1)
}

// A failed setup releases its idempotency key so the client can retry
// with the same one.
func TestSetupFailureReleasesKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	params := f.params()
	params.IdempotencyKey = "setup-retry"
	f.admissions.createErr = errors.New("db down")

	_, err := f.coordinator.Setup(ctx, params)
	require.Error(t, err)

	f.admissions.createErr = nil
	dp, err := f.coordinator.Setup(ctx, params)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, dp.SecondaryAdmissionID)
}
