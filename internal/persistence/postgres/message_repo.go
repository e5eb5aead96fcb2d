package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/volumerun/internal/domain"
	"github.com/sawpanic/volumerun/internal/persistence"
)

// messageRepo implements MessageRepo for PostgreSQL
type messageRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewMessageRepo creates a new PostgreSQL mass message repository
func NewMessageRepo(db *sqlx.DB, timeout time.Duration) persistence.MessageRepo {
	return &messageRepo{db: db, timeout: timeout}
}

// messageRow scans the metric columns, any of which may be NULL on sends
// that were never reconciled
type messageRow struct {
	MessageID      int64           `db:"message_id"`
	CreatorID      string          `db:"creator_id"`
	MessageType    string          `db:"message_type"`
	SendingTime    time.Time       `db:"sending_time"`
	SentCount      sql.NullInt64   `db:"sent_count"`
	Earnings       sql.NullFloat64 `db:"earnings"`
	ViewRate       sql.NullFloat64 `db:"view_rate"`
	PurchaseRate   sql.NullFloat64 `db:"purchase_rate"`
	RevenuePerSend sql.NullFloat64 `db:"revenue_per_send"`
}

// toMessage maps NULL metrics to zero
func (r messageRow) toMessage() persistence.MassMessage {
	return persistence.MassMessage{
		MessageID:      r.MessageID,
		CreatorID:      r.CreatorID,
		MessageType:    r.MessageType,
		SendingTime:    r.SendingTime,
		SentCount:      int(r.SentCount.Int64),
		Earnings:       r.Earnings.Float64,
		ViewRate:       r.ViewRate.Float64,
		PurchaseRate:   r.PurchaseRate.Float64,
		RevenuePerSend: r.RevenuePerSend.Float64,
	}
}

// ListRange returns a creator's sends in [From, To), oldest first
func (r *messageRepo) ListRange(ctx context.Context, creatorID string, tr persistence.TimeRange) ([]persistence.MassMessage, error) {
	if !tr.Valid() {
		return nil, domain.Invalid("time_range", "to %s is before from %s", tr.To, tr.From)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT message_id, creator_id, message_type, sending_time, sent_count,
		       earnings, view_rate, purchase_rate, revenue_per_send
		FROM mass_messages
		WHERE creator_id = $1 AND sending_time >= $2 AND sending_time < $3
		ORDER BY sending_time ASC, message_id ASC`

	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, query, creatorID, tr.From, tr.To); err != nil {
		return nil, domain.NewDatabaseError("list mass messages", err)
	}
	out := make([]persistence.MassMessage, len(rows))
	for i, row := range rows {
		out[i] = row.toMessage()
	}
	return out, nil
}

// DailyVolumes groups a creator's sends by UTC calendar day
func (r *messageRepo) DailyVolumes(ctx context.Context, creatorID string, tr persistence.TimeRange) ([]persistence.DailyVolume, error) {
	if !tr.Valid() {
		return nil, domain.Invalid("time_range", "to %s is before from %s", tr.To, tr.From)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT date_trunc('day', sending_time AT TIME ZONE 'UTC') AS day,
		       COUNT(*) AS sends,
		       COALESCE(SUM(earnings), 0) AS earnings,
		       COALESCE(AVG(revenue_per_send), 0) AS avg_rps
		FROM mass_messages
		WHERE creator_id = $1 AND sending_time >= $2 AND sending_time < $3
		GROUP BY 1
		ORDER BY 1`

	var out []persistence.DailyVolume
	if err := r.db.SelectContext(ctx, &out, query, creatorID, tr.From, tr.To); err != nil {
		return nil, domain.NewDatabaseError("aggregate daily volumes", err)
	}
	return out, nil
}

// Totals sums a creator's sends and earnings in [From, To)
func (r *messageRepo) Totals(ctx context.Context, creatorID string, tr persistence.TimeRange) (persistence.MessageTotals, error) {
	if !tr.Valid() {
		return persistence.MessageTotals{}, domain.Invalid("time_range", "to %s is before from %s", tr.To, tr.From)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT COUNT(*) AS messages,
		       COALESCE(SUM(earnings), 0) AS revenue,
		       COALESCE(AVG(revenue_per_send), 0) AS avg_rps
		FROM mass_messages
		WHERE creator_id = $1 AND sending_time >= $2 AND sending_time < $3`

	var totals persistence.MessageTotals
	if err := r.db.GetContext(ctx, &totals, query, creatorID, tr.From, tr.To); err != nil {
		return persistence.MessageTotals{}, domain.NewDatabaseError("sum mass messages", err)
	}
	return totals, nil
}
