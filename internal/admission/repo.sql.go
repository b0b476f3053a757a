package admission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oslo-kindergarten/placement-engine/internal/platform/db"
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

const admissionColumns = `a.id, a.child_id, a.department_id, a.status, a.start_date, a.end_date,
a.rate_category, a.timetable, a.guarantee, a.queued_at, a.version, a.created_by, a.created_at, a.updated_at`

func scanAdmission(row pgx.Row) (Admission, error) {
	var a Admission
	var timetable []byte
	err := row.Scan(&a.ID, &a.ChildID, &a.DepartmentID, &a.Status, &a.StartDate, &a.EndDate,
		&a.RateCategory, &timetable, &a.Guarantee, &a.QueuedAt, &a.Version, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Admission{}, err
	}
	if len(timetable) > 0 {
		if err := json.Unmarshal(timetable, &a.Timetable); err != nil {
			return Admission{}, fmt.Errorf("decode timetable: %w", err)
		}
	}
	return a, nil
}

// Create inserts the admission together with its creation event.
func (r *PGRepository) Create(ctx context.Context, a Admission, event Event) error {
	timetable, err := json.Marshal(a.Timetable)
	if err != nil {
		return fmt.Errorf("encode timetable: %w", err)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO admissions
(id, child_id, department_id, status, start_date, end_date, rate_category, timetable, guarantee, queued_at, version, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			a.ID, a.ChildID, a.DepartmentID, a.Status, a.StartDate, a.EndDate, a.RateCategory,
			timetable, a.Guarantee, a.QueuedAt, a.Version, a.CreatedBy, a.CreatedAt, a.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert admission: %w", err)
		}
		return insertEvent(ctx, tx, event)
	})
}

// GetByID returns one admission.
func (r *PGRepository) GetByID(ctx context.Context, id uuid.UUID) (Admission, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+admissionColumns+` FROM admissions a WHERE a.id=$1`, id)
	a, err := scanAdmission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Admission{}, fmt.Errorf("admission %s: %w", id, shared.ErrNotFound)
		}
		return Admission{}, err
	}
	return a, nil
}

// List returns admissions matching the filter plus the total count.
// Soft-deleted admissions are excluded unless explicitly requested.
func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Admission, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	idx := 1
	if filter.Status != nil {
		where += fmt.Sprintf(" AND a.status=$%d", idx)
		args = append(args, *filter.Status)
		idx++
	} else {
		where += " AND a.status <> 'DELETED'"
	}
	if filter.DepartmentID != nil {
		where += fmt.Sprintf(" AND a.department_id=$%d", idx)
		args = append(args, *filter.DepartmentID)
		idx++
	}
	if filter.ChildID != nil {
		where += fmt.Sprintf(" AND a.child_id=$%d", idx)
		args = append(args, *filter.ChildID)
		idx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM admissions a`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + admissionColumns + `, COALESCE(c.first_name || ' ' || c.last_name, '')
FROM admissions a LEFT JOIN children c ON c.id = a.child_id` + where + ` ORDER BY a.created_at, a.id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", idx, idx+1)
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var admissions []Admission
	for rows.Next() {
		var a Admission
		var timetable []byte
		if err := rows.Scan(&a.ID, &a.ChildID, &a.DepartmentID, &a.Status, &a.StartDate, &a.EndDate,
			&a.RateCategory, &timetable, &a.Guarantee, &a.QueuedAt, &a.Version, &a.CreatedBy,
			&a.CreatedAt, &a.UpdatedAt, &a.ChildName); err != nil {
			return nil, 0, err
		}
		if len(timetable) > 0 {
			if err := json.Unmarshal(timetable, &a.Timetable); err != nil {
				return nil, 0, fmt.Errorf("decode timetable: %w", err)
			}
		}
		admissions = append(admissions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return admissions, total, nil
}

// ListQueued returns the queued admissions of a department.
func (r *PGRepository) ListQueued(ctx context.Context, departmentID uuid.UUID) ([]Admission, error) {
	status := StatusQueued
	admissions, _, err := r.List(ctx, ListFilter{DepartmentID: &departmentID, Status: &status})
	return admissions, err
}

// ListByChild returns all non-deleted admissions of a child.
func (r *PGRepository) ListByChild(ctx context.Context, childID uuid.UUID) ([]Admission, error) {
	admissions, _, err := r.List(ctx, ListFilter{ChildID: &childID})
	return admissions, err
}

// ListFutureDue returns FUTURE admissions whose start date has arrived.
func (r *PGRepository) ListFutureDue(ctx context.Context, asOf time.Time) ([]Admission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+admissionColumns+` FROM admissions a
WHERE a.status='FUTURE' AND a.start_date <= $1 ORDER BY a.start_date, a.id`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var admissions []Admission
	for rows.Next() {
		a, err := scanAdmission(rows)
		if err != nil {
			return nil, err
		}
		admissions = append(admissions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return admissions, nil
}

// UpdateStatus applies a status edge with optimistic concurrency and
// appends the audit event in the same transaction.
func (r *PGRepository) UpdateStatus(ctx context.Context, id uuid.UUID, expectedVersion int64, to Status, endDate *time.Time, event Event) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		queuedAt := ""
		if to == StatusQueued {
			queuedAt = ", queued_at=NOW()"
		}
		tag, err := tx.Exec(ctx, `UPDATE admissions SET status=$1, end_date=COALESCE($2, end_date), version=version+1, updated_at=NOW()`+queuedAt+`
WHERE id=$3 AND version=$4`, to, endDate, id, expectedVersion)
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return r.versionConflict(ctx, tx, id)
		}
		return insertEvent(ctx, tx, event)
	})
}

// UpdateRateCategory changes the rate category and records an event.
func (r *PGRepository) UpdateRateCategory(ctx context.Context, id uuid.UUID, expectedVersion int64, rate string, event Event) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE admissions SET rate_category=$1, version=version+1, updated_at=NOW()
WHERE id=$2 AND version=$3`, rate, id, expectedVersion)
		if err != nil {
			return fmt.Errorf("update rate category: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return r.versionConflict(ctx, tx, id)
		}
		return insertEvent(ctx, tx, event)
	})
}

// UpdateTimetable changes the weekly schedule and records an event.
func (r *PGRepository) UpdateTimetable(ctx context.Context, id uuid.UUID, expectedVersion int64, timetable Timetable, event Event) error {
	raw, err := json.Marshal(timetable)
	if err != nil {
		return fmt.Errorf("encode timetable: %w", err)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE admissions SET timetable=$1, version=version+1, updated_at=NOW()
WHERE id=$2 AND version=$3`, raw, id, expectedVersion)
		if err != nil {
			return fmt.Errorf("update timetable: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return r.versionConflict(ctx, tx, id)
		}
		return insertEvent(ctx, tx, event)
	})
}

// ListEvents returns the audit trail, oldest first.
func (r *PGRepository) ListEvents(ctx context.Context, admissionID uuid.UUID) ([]Event, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, admission_id, from_status, to_status, actor, reason, at
FROM admission_events WHERE admission_id=$1 ORDER BY at, id`, admissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.AdmissionID, &e.FromStatus, &e.ToStatus, &e.Actor, &e.Reason, &e.At); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *PGRepository) versionConflict(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT true FROM admissions WHERE id=$1`, id).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("admission %s: %w", id, shared.ErrNotFound)
		}
		return err
	}
	return fmt.Errorf("admission %s: %w", id, shared.ErrConcurrentModification)
}

func insertEvent(ctx context.Context, tx pgx.Tx, event Event) error {
	_, err := tx.Exec(ctx, `INSERT INTO admission_events (admission_id, from_status, to_status, actor, reason, at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`,
		event.AdmissionID, event.FromStatus, event.ToStatus, event.Actor, event.Reason, event.At)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

