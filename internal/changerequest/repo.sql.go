package changerequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

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

// Create inserts a pending request.
func (r *PGRepository) Create(ctx context.Context, cr ChangeRequest) error {
	payload, err := json.Marshal(cr.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO change_requests
(id, admission_id, type, status, payload, note, requested_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		cr.ID, cr.AdmissionID, cr.Type, cr.Status, payload, cr.Note, cr.RequestedBy, cr.CreatedAt, cr.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert change request: %w", err)
	}
	return nil
}

func scanRequest(row pgx.Row) (ChangeRequest, error) {
	var cr ChangeRequest
	var payload []byte
	err := row.Scan(&cr.ID, &cr.AdmissionID, &cr.Type, &cr.Status, &payload, &cr.Note,
		&cr.RequestedBy, &cr.ResolvedBy, &cr.ResolvedAt, &cr.CreatedAt, &cr.UpdatedAt)
	if err != nil {
		return ChangeRequest{}, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &cr.Payload); err != nil {
			return ChangeRequest{}, fmt.Errorf("decode payload: %w", err)
		}
	}
	return cr, nil
}

const requestColumns = `id, admission_id, type, status, payload, note, requested_by, resolved_by, resolved_at, created_at, updated_at`

// GetByID returns one request.
func (r *PGRepository) GetByID(ctx context.Context, id uuid.UUID) (ChangeRequest, error) {
	cr, err := scanRequest(r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM change_requests WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ChangeRequest{}, fmt.Errorf("change request %s: %w", id, shared.ErrNotFound)
		}
		return ChangeRequest{}, err
	}
	return cr, nil
}

// List returns requests, optionally filtered by status, oldest first.
func (r *PGRepository) List(ctx context.Context, status *Status) ([]ChangeRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM change_requests`
	args := []any{}
	if status != nil {
		query += ` WHERE status=$1`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at, id`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var requests []ChangeRequest
	for rows.Next() {
		cr, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, cr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return requests, nil
}

// Resolve moves a PENDING request to a resolved status. A request that
// already left PENDING yields shared.ErrAlreadyResolved.
func (r *PGRepository) Resolve(ctx context.Context, id uuid.UUID, to Status, resolvedBy string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE change_requests
SET status=$1, resolved_by=$2, resolved_at=$3, updated_at=$3
WHERE id=$4 AND status='PENDING'`, to, resolvedBy, at, id)
	if err != nil {
		return fmt.Errorf("resolve change request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT true FROM change_requests WHERE id=$1`, id).Scan(&exists); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("change request %s: %w", id, shared.ErrNotFound)
			}
			return err
		}
		return fmt.Errorf("change request %s: %w", id, shared.ErrAlreadyResolved)
	}
	return nil
}

// MarkImplemented moves APPROVED to IMPLEMENTED.
func (r *PGRepository) MarkImplemented(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE change_requests SET status='IMPLEMENTED', updated_at=NOW()
WHERE id=$1 AND status='APPROVED'`, id)
	if err != nil {
		return fmt.Errorf("mark implemented: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("change request %s not in APPROVED: %w", id, shared.ErrValidation)
	}
	return nil
}
