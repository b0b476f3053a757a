// Package registry provides read-only access to the child/guardian
// registry. The engine holds child ids only and never mutates records.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oslo-kindergarten/placement-engine/internal/shared"
)

// Child is the registry view of a child.
type Child struct {
	ID           uuid.UUID `json:"id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	BirthDate    time.Time `json:"birth_date"`
	SpecialNeeds bool      `json:"special_needs"`
}

// AgeAt returns the child's age in whole years at the given date.
func (c Child) AgeAt(at time.Time) int {
	years := at.Year() - c.BirthDate.Year()
	anniversary := c.BirthDate.AddDate(years, 0, 0)
	if anniversary.After(at) {
		years--
	}
	return years
}

// Client fetches children by id.
type Client interface {
	GetChild(ctx context.Context, id uuid.UUID) (Child, error)
}

// PGClient reads the registry tables directly.
type PGClient struct {
	pool *pgxpool.Pool
}

// NewPGClient constructs a PGClient.
func NewPGClient(pool *pgxpool.Pool) *PGClient {
	return &PGClient{pool: pool}
}

// GetChild returns the child record.
func (c *PGClient) GetChild(ctx context.Context, id uuid.UUID) (Child, error) {
	var child Child
	err := c.pool.QueryRow(ctx, `SELECT id, first_name, last_name, birth_date, special_needs FROM children WHERE id=$1`,
		id).Scan(&child.ID, &child.FirstName, &child.LastName, &child.BirthDate, &child.SpecialNeeds)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Child{}, fmt.Errorf("registry: child %s: %w", id, shared.ErrNotFound)
		}
		return Child{}, err
	}
	return child, nil
}
