package department

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oslo-kindergarten/placement-engine/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID returns one department.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Department, error) {
	var d Department
	err := r.pool.QueryRow(ctx, `SELECT id, site_id, name, kind, capacity, age_min, age_max, created_at, updated_at
FROM departments WHERE id=$1`, id).
		Scan(&d.ID, &d.SiteID, &d.Name, &d.Kind, &d.Capacity, &d.AgeMin, &d.AgeMax, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Department{}, fmt.Errorf("department %s: %w", id, shared.ErrNotFound)
		}
		return Department{}, err
	}
	return d, nil
}

// List returns all departments ordered by name.
func (r *Repository) List(ctx context.Context) ([]Department, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, site_id, name, kind, capacity, age_min, age_max, created_at, updated_at
FROM departments ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var departments []Department
	for rows.Next() {
		var d Department
		if err := rows.Scan(&d.ID, &d.SiteID, &d.Name, &d.Kind, &d.Capacity, &d.AgeMin, &d.AgeMax, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		departments = append(departments, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return departments, nil
}
