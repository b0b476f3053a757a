package dualplacement

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oslo-kindergarten/placement-engine/internal/shared"
)

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Create inserts a dual placement link.
func (r *PGRepository) Create(ctx context.Context, dp DualPlacement) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO dual_placements
(id, child_id, primary_admission_id, secondary_admission_id, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		dp.ID, dp.ChildID, dp.PrimaryAdmissionID, dp.SecondaryAdmissionID, dp.CreatedBy, dp.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert dual placement: %w", err)
	}
	return nil
}

// GetByAdmission returns the link an admission participates in.
func (r *PGRepository) GetByAdmission(ctx context.Context, admissionID uuid.UUID) (DualPlacement, error) {
	var dp DualPlacement
	err := r.pool.QueryRow(ctx, `SELECT id, child_id, primary_admission_id, secondary_admission_id, created_by, created_at
FROM dual_placements WHERE primary_admission_id=$1 OR secondary_admission_id=$1`, admissionID).
		Scan(&dp.ID, &dp.ChildID, &dp.PrimaryAdmissionID, &dp.SecondaryAdmissionID, &dp.CreatedBy, &dp.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DualPlacement{}, fmt.Errorf("dual placement for admission %s: %w", admissionID, shared.ErrNotFound)
		}
		return DualPlacement{}, err
	}
	return dp, nil
}
