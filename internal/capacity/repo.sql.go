package capacity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oslo-kindergarten/placement-engine/internal/shared"
)

// PGStore reads department capacity and the derived enrolled count.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// DepartmentCapacity returns the configured seat capacity.
func (s *PGStore) DepartmentCapacity(ctx context.Context, departmentID uuid.UUID) (int, error) {
	var cap int
	err := s.pool.QueryRow(ctx, `SELECT capacity FROM departments WHERE id=$1`, departmentID).Scan(&cap)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("department %s: %w", departmentID, shared.ErrNotFound)
		}
		return 0, err
	}
	return cap, nil
}

// CountEnrolled derives the enrolled count from admissions in qualifying
// states. FUTURE admissions consume capacity from creation.
func (s *PGStore) CountEnrolled(ctx context.Context, departmentID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM admissions WHERE department_id=$1 AND status IN ('ACTIVE','FUTURE')`,
		departmentID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
