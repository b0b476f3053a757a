package waitlist

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oslo-kindergarten/placement-engine/internal/admission"
	"github.com/oslo-kindergarten/placement-engine/internal/shared"
)

type mockQueue struct {
	queued []admission.Admission
	err    error
}

func (m *mockQueue) ListQueued(ctx context.Context, departmentID uuid.UUID) ([]admission.Admission, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.queued, nil
}

func queuedAt(t time.Time) *time.Time { return &t }

func TestRankGuaranteeFirst(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	early := admission.Admission{ID: uuid.New(), Guarantee: false, QueuedAt: queuedAt(base)}
	lateGuarantee := admission.Admission{ID: uuid.New(), Guarantee: true, QueuedAt: queuedAt(base.AddDate(0, 2, 0))}

	ranked := Rank([]admission.Admission{early, lateGuarantee})
	require.Len(t, ranked, 2)
	// The guarantee outranks an earlier queue date.
	assert.Equal(t, lateGuarantee.ID, ranked[0].ID)
	assert.Equal(t, early.ID, ranked[1].ID)
}

func TestRankByQueueDateWithinGroup(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	first := admission.Admission{ID: uuid.New(), QueuedAt: queuedAt(base)}
	second := admission.Admission{ID: uuid.New(), QueuedAt: queuedAt(base.Add(time.Hour))}

	ranked := Rank([]admission.Admission{second, first})
	assert.Equal(t, first.ID, ranked[0].ID)
	assert.Equal(t, second.ID, ranked[1].ID)
}

func TestRankTiebreakByID(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	a := admission.Admission{ID: uuid.MustParse("00000000-0000-4000-8000-000000000001"), QueuedAt: queuedAt(at)}
	b := admission.Admission{ID: uuid.MustParse("00000000-0000-4000-8000-000000000002"), QueuedAt: queuedAt(at)}

	ranked := Rank([]admission.Admission{b, a})
	assert.Equal(t, a.ID, ranked[0].ID)
}

func TestRankMissingQueueDateSortsLast(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	dated := admission.Admission{ID: uuid.New(), QueuedAt: queuedAt(at)}
	undated := admission.Admission{ID: uuid.New()}

	ranked := Rank([]admission.Admission{undated, dated})
	assert.Equal(t, dated.ID, ranked[0].ID)
	assert.Equal(t, undated.ID, ranked[1].ID)
}

// Two rankings of the same snapshot are identical, element for element.
func TestRankDeterministic(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	var snapshot []admission.Admission
	for i := 0; i < 50; i++ {
		snapshot = append(snapshot, admission.Admission{
			ID:        uuid.New(),
			Guarantee: i%3 == 0,
			QueuedAt:  queuedAt(base.AddDate(0, 0, i%7)),
		})
	}

	first := Rank(snapshot)
	second := Rank(snapshot)
	require.Equal(t, first, second)
	// The input snapshot is left untouched.
	assert.Len(t, snapshot, 50)
}

func TestPromoteCapsAtMaxSlots(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	queue := &mockQueue{}
	for i := 0; i < 5; i++ {
		queue.queued = append(queue.queued, admission.Admission{
			ID:       uuid.New(),
			Status:   admission.StatusQueued,
			QueuedAt: queuedAt(base.Add(time.Duration(i) * time.Hour)),
		})
	}

	p := NewPrioritizer(queue)
	ids, err := p.Promote(context.Background(), uuid.New(), 2)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, queue.queued[0].ID, ids[0])
	assert.Equal(t, queue.queued[1].ID, ids[1])
}

func TestPromoteRejectsInvalidSlots(t *testing.T) {
	p := NewPrioritizer(&mockQueue{})
	_, err := p.Promote(context.Background(), uuid.New(), 0)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestPromoteEmptyQueue(t *testing.T) {
	p := NewPrioritizer(&mockQueue{})
	ids, err := p.Promote(context.Background(), uuid.New(), 3)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
