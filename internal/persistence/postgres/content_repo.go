package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/volumerun/internal/domain"
	"github.com/sawpanic/volumerun/internal/persistence"
)

// contentTypeRepo implements ContentTypeRepo for PostgreSQL
type contentTypeRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewContentTypeRepo creates a new PostgreSQL content ranking repository
func NewContentTypeRepo(db *sqlx.DB, timeout time.Duration) persistence.ContentTypeRepo {
	return &contentTypeRepo{db: db, timeout: timeout}
}

// ListByCreator returns ranked content types, best RPS first
func (r *contentTypeRepo) ListByCreator(ctx context.Context, creatorID string) ([]persistence.ContentTypePerformance, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT creator_id, content_type, performance_tier, avg_rps, send_count, updated_at
		FROM top_content_types
		WHERE creator_id = $1
		ORDER BY avg_rps DESC, content_type ASC`

	var out []persistence.ContentTypePerformance
	if err := r.db.SelectContext(ctx, &out, query, creatorID); err != nil {
		return nil, domain.NewDatabaseError("list content types", err)
	}
	return out, nil
}

// captionRepo implements CaptionRepo for PostgreSQL
type captionRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewCaptionRepo creates a new PostgreSQL caption bank repository
func NewCaptionRepo(db *sqlx.DB, timeout time.Duration) persistence.CaptionRepo {
	return &captionRepo{db: db, timeout: timeout}
}

// ListByCreator returns the creator's whole caption bank with resolved send types
func (r *captionRepo) ListByCreator(ctx context.Context, creatorID string) ([]persistence.Caption, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT cb.caption_id, cb.creator_id, st.send_type_key AS send_type, cb.is_active,
		       COALESCE(cb.freshness_score, 0) AS freshness_score,
		       COALESCE(cb.performance_score, 0) AS performance_score
		FROM caption_bank cb
		JOIN send_types st ON st.send_type_id = cb.send_type_id
		WHERE cb.creator_id = $1
		ORDER BY cb.caption_id`

	var out []persistence.Caption
	if err := r.db.SelectContext(ctx, &out, query, creatorID); err != nil {
		return nil, domain.NewDatabaseError("list captions", err)
	}
	return out, nil
}
