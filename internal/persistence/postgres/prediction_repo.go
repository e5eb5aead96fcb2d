package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/volumerun/internal/domain"
	"github.com/sawpanic/volumerun/internal/persistence"
)

// predictionRepo implements PredictionRepo for PostgreSQL. Rows are append-only
// except for the one-time outcome update.
type predictionRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPredictionRepo creates a new PostgreSQL prediction repository
func NewPredictionRepo(db *sqlx.DB, timeout time.Duration) persistence.PredictionRepo {
	return &predictionRepo{db: db, timeout: timeout}
}

const predictionColumns = `id, creator_id, run_id, prediction_date, week_start,
		input_fan_count, input_page_type, input_saturation, input_opportunity,
		predicted_tier, predicted_revenue_per_day, predicted_engagement_per_day,
		predicted_retention_per_day, predicted_weekly_revenue, predicted_weekly_messages,
		algorithm_version, outcome_measured, actual_total_revenue, actual_messages_sent,
		revenue_prediction_error_pct, volume_prediction_error_pct, measured_at`

// Insert stores a prediction in one statement and returns the new id
func (r *predictionRepo) Insert(ctx context.Context, p persistence.VolumePrediction) (int64, error) {
	if p.CreatorID == "" {
		return 0, domain.Invalid("creator_id", "must not be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO volume_predictions
		(creator_id, run_id, prediction_date, week_start, input_fan_count, input_page_type,
		 input_saturation, input_opportunity, predicted_tier, predicted_revenue_per_day,
		 predicted_engagement_per_day, predicted_retention_per_day, predicted_weekly_revenue,
		 predicted_weekly_messages, algorithm_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id`

	var id int64
	err := r.db.QueryRowxContext(ctx, query,
		p.CreatorID, p.RunID, p.PredictionDate, p.WeekStart, p.InputFanCount, p.InputPageType,
		p.InputSaturation, p.InputOpportunity, p.PredictedTier, p.PredictedRevenuePerDay,
		p.PredictedEngagementPerDay, p.PredictedRetentionPerDay, p.PredictedWeeklyRevenue,
		p.PredictedWeeklyMessages, p.AlgorithmVersion).
		Scan(&id)
	if err != nil {
		return 0, domain.NewDatabaseError("insert prediction", err)
	}
	return id, nil
}

// Get returns one prediction, or nil when the id is unknown
func (r *predictionRepo) Get(ctx context.Context, id int64) (*persistence.VolumePrediction, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + predictionColumns + `
		FROM volume_predictions
		WHERE id = $1`

	var p persistence.VolumePrediction
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, domain.NewDatabaseError("get prediction", err)
	}
	return &p, nil
}

// MarkMeasured writes the outcome only if the row has not been measured yet
func (r *predictionRepo) MarkMeasured(ctx context.Context, id int64, o persistence.MeasuredOutcome) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		UPDATE volume_predictions SET
			outcome_measured = TRUE,
			actual_total_revenue = $2,
			actual_messages_sent = $3,
			revenue_prediction_error_pct = $4,
			volume_prediction_error_pct = $5,
			measured_at = $6
		WHERE id = $1 AND outcome_measured = FALSE`

	res, err := r.db.ExecContext(ctx, query, id,
		o.ActualTotalRevenue, o.ActualMessagesSent,
		o.RevenuePredictionError, o.VolumePredictionError, o.MeasuredAt)
	if err != nil {
		return false, domain.NewDatabaseError("mark prediction measured", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, domain.NewDatabaseError("mark prediction measured", fmt.Errorf("failed to read rows affected: %w", err))
	}
	return n == 1, nil
}

// ListUnmeasured returns up to limit unmeasured predictions whose week started
// at or before cutoff, oldest first
func (r *predictionRepo) ListUnmeasured(ctx context.Context, cutoff time.Time, limit int) ([]persistence.VolumePrediction, error) {
	if limit <= 0 {
		return nil, domain.Invalid("limit", "must be positive, got %d", limit)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + predictionColumns + `
		FROM volume_predictions
		WHERE outcome_measured = FALSE AND week_start <= $1
		ORDER BY week_start ASC, id ASC
		LIMIT $2`

	var out []persistence.VolumePrediction
	if err := r.db.SelectContext(ctx, &out, query, cutoff, limit); err != nil {
		return nil, domain.NewDatabaseError("list unmeasured predictions", err)
	}
	return out, nil
}

// ListMeasured returns a creator's measured predictions by week start
func (r *predictionRepo) ListMeasured(ctx context.Context, creatorID string) ([]persistence.VolumePrediction, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + predictionColumns + `
		FROM volume_predictions
		WHERE creator_id = $1 AND outcome_measured = TRUE
		ORDER BY week_start ASC, id ASC`

	var out []persistence.VolumePrediction
	if err := r.db.SelectContext(ctx, &out, query, creatorID); err != nil {
		return nil, domain.NewDatabaseError("list measured predictions", err)
	}
	return out, nil
}

// CountByCreator counts all of a creator's predictions
func (r *predictionRepo) CountByCreator(ctx context.Context, creatorID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM volume_predictions WHERE creator_id = $1`, creatorID); err != nil {
		return 0, domain.NewDatabaseError("count predictions", err)
	}
	return n, nil
}
