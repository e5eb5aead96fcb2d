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

// scoreRepo implements ScoreRepo over volume_performance_tracking
type scoreRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewScoreRepo creates a new PostgreSQL precomputed score repository
func NewScoreRepo(db *sqlx.DB, timeout time.Duration) persistence.ScoreRepo {
	return &scoreRepo{db: db, timeout: timeout}
}

// Latest returns the newest tracked score for the period, or nil when none
// was tracked since the given time
func (r *scoreRepo) Latest(ctx context.Context, creatorID string, periodDays int, since time.Time) (*persistence.PrecomputedScore, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT creator_id, tracking_date, period_days, saturation_score,
		       opportunity_score, revenue_trend, message_count
		FROM volume_performance_tracking
		WHERE creator_id = $1 AND period_days = $2 AND tracking_date >= $3
		ORDER BY tracking_date DESC
		LIMIT 1`

	var s persistence.PrecomputedScore
	if err := r.db.GetContext(ctx, &s, query, creatorID, periodDays, since); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, domain.NewDatabaseError("get precomputed score", err)
	}
	return &s, nil
}
