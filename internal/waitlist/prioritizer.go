// Package waitlist selects which queued admissions to promote when a
// department frees capacity, in a deterministic total order.
package waitlist

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/oslo-kindergarten/placement-engine/internal/admission"
	"github.com/oslo-kindergarten/placement-engine/internal/shared"
)

// Queue supplies the queued-admission snapshot.
type Queue interface {
	ListQueued(ctx context.Context, departmentID uuid.UUID) ([]admission.Admission, error)
}

// Rank orders a snapshot of queued admissions: statutory guarantee
// children first, then queue-entry date ascending, then admission id as
// the stable tiebreak. Pure function of the snapshot; two calls on an
// unchanged snapshot return identical orderings.
func Rank(snapshot []admission.Admission) []admission.Admission {
	ranked := append([]admission.Admission(nil), snapshot...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Guarantee != b.Guarantee {
			return a.Guarantee
		}
		at, bt := a.QueuedAt, b.QueuedAt
		switch {
		case at == nil && bt != nil:
			return false
		case at != nil && bt == nil:
			return true
		case at != nil && bt != nil && !at.Equal(*bt):
			return at.Before(*bt)
		}
		return a.ID.String() < b.ID.String()
	})
	return ranked
}

// Prioritizer reads the queue and produces promotion candidates. It holds
// no state of its own; the caller invokes the state machine for each
// selected id so capacity reservation and promotion stay coupled.
type Prioritizer struct {
	queue Queue
}

// NewPrioritizer constructs a Prioritizer.
func NewPrioritizer(queue Queue) *Prioritizer {
	return &Prioritizer{queue: queue}
}

// Promote returns up to maxSlots admission ids in promotion order.
func (p *Prioritizer) Promote(ctx context.Context, departmentID uuid.UUID, maxSlots int) ([]uuid.UUID, error) {
	if maxSlots < 1 {
		return nil, fmt.Errorf("waitlist: max slots %d: %w", maxSlots, shared.ErrValidation)
	}
	snapshot, err := p.queue.ListQueued(ctx, departmentID)
	if err != nil {
		return nil, fmt.Errorf("waitlist: list queued: %w", err)
	}
	ranked := Rank(snapshot)
	if len(ranked) > maxSlots {
		ranked = ranked[:maxSlots]
	}
	ids := make([]uuid.UUID, 0, len(ranked))
	for _, a := range ranked {
		ids = append(ids, a.ID)
	}
	return ids, nil
}
