package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/volumerun/internal/domain"
	"github.com/sawpanic/volumerun/internal/persistence"
)

// creatorRepo implements CreatorRepo for PostgreSQL
type creatorRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewCreatorRepo creates a new PostgreSQL creator repository
func NewCreatorRepo(db *sqlx.DB, timeout time.Duration) persistence.CreatorRepo {
	return &creatorRepo{db: db, timeout: timeout}
}

const creatorColumns = `creator_id, page_type, current_active_fans, is_active`

// Get returns a creator profile, or nil when the id is unknown
func (r *creatorRepo) Get(ctx context.Context, creatorID string) (*persistence.Creator, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + creatorColumns + `
		FROM creators
		WHERE creator_id = $1`

	var c persistence.Creator
	if err := r.db.GetContext(ctx, &c, query, creatorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, domain.NewDatabaseError("get creator", err)
	}
	return &c, nil
}

// ListActive returns all active creators ordered by id
func (r *creatorRepo) ListActive(ctx context.Context) ([]persistence.Creator, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + creatorColumns + `
		FROM creators
		WHERE is_active = TRUE
		ORDER BY creator_id`

	var out []persistence.Creator
	if err := r.db.SelectContext(ctx, &out, query); err != nil {
		return nil, domain.NewDatabaseError("list active creators", err)
	}
	return out, nil
}
