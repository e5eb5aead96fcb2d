package persistence

import (
	"context"
	"time"
)

// TimeRange is a half-open [From, To) query window
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Valid reports whether the range is non-inverted
func (tr TimeRange) Valid() bool {
	return !tr.To.Before(tr.From)
}

// Creator is a row of the creators table
type Creator struct {
	CreatorID         string `json:"creator_id" db:"creator_id"`
	PageType          string `json:"page_type" db:"page_type"`
	CurrentActiveFans int    `json:"current_active_fans" db:"current_active_fans"`
	IsActive          bool   `json:"is_active" db:"is_active"`
}

// MassMessage is one historical send with its realized performance
type MassMessage struct {
	MessageID      int64     `json:"message_id" db:"message_id"`
	CreatorID      string    `json:"creator_id" db:"creator_id"`
	MessageType    string    `json:"message_type" db:"message_type"`
	SendingTime    time.Time `json:"sending_time" db:"sending_time"`
	SentCount      int       `json:"sent_count" db:"sent_count"`
	Earnings       float64   `json:"earnings" db:"earnings"`
	ViewRate       float64   `json:"view_rate" db:"view_rate"`         // 0.0-1.0
	PurchaseRate   float64   `json:"purchase_rate" db:"purchase_rate"` // 0.0-1.0
	RevenuePerSend float64   `json:"revenue_per_send" db:"revenue_per_send"`
}

// RPS prefers the stored revenue per send and derives it from earnings when
// it is missing
func (m MassMessage) RPS() float64 {
	if m.RevenuePerSend > 0 {
		return m.RevenuePerSend
	}
	if m.SentCount > 0 {
		return m.Earnings / float64(m.SentCount)
	}
	return 0
}

// DailyVolume aggregates one creator's sends for a single calendar day
type DailyVolume struct {
	Day      time.Time `json:"day" db:"day"`
	Sends    int       `json:"sends" db:"sends"`
	Earnings float64   `json:"earnings" db:"earnings"`
	AvgRPS   float64   `json:"avg_rps" db:"avg_rps"`
}

// MessageTotals summarizes sends inside a window
type MessageTotals struct {
	Messages int     `json:"messages" db:"messages"`
	Revenue  float64 `json:"revenue" db:"revenue"`
	AvgRPS   float64 `json:"avg_rps" db:"avg_rps"`
}

// ContentTypePerformance is a row of top_content_types
type ContentTypePerformance struct {
	CreatorID       string    `json:"creator_id" db:"creator_id"`
	ContentType     string    `json:"content_type" db:"content_type"`
	PerformanceTier string    `json:"performance_tier" db:"performance_tier"` // TOP, MID, LOW, AVOID
	AvgRPS          float64   `json:"avg_rps" db:"avg_rps"`
	SendCount       int       `json:"send_count" db:"send_count"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// Caption is a reusable text template from caption_bank joined with its send type
type Caption struct {
	CaptionID        int64   `json:"caption_id" db:"caption_id"`
	CreatorID        string  `json:"creator_id" db:"creator_id"`
	SendType         string  `json:"send_type" db:"send_type"`
	IsActive         bool    `json:"is_active" db:"is_active"`
	FreshnessScore   float64 `json:"freshness_score" db:"freshness_score"`
	PerformanceScore float64 `json:"performance_score" db:"performance_score"`
}

// PrecomputedScore is a row of volume_performance_tracking
type PrecomputedScore struct {
	CreatorID        string    `json:"creator_id" db:"creator_id"`
	TrackingDate     time.Time `json:"tracking_date" db:"tracking_date"`
	PeriodDays       int       `json:"period_days" db:"period_days"`
	SaturationScore  float64   `json:"saturation_score" db:"saturation_score"`
	OpportunityScore float64   `json:"opportunity_score" db:"opportunity_score"`
	RevenueTrend     float64   `json:"revenue_trend" db:"revenue_trend"`
	MessageCount     int       `json:"message_count" db:"message_count"`
}

// VolumePrediction is a computed weekly target awaiting, or carrying, its outcome
type VolumePrediction struct {
	ID                        int64      `json:"id" db:"id"`
	CreatorID                 string     `json:"creator_id" db:"creator_id"`
	RunID                     string     `json:"run_id" db:"run_id"`
	PredictionDate            time.Time  `json:"prediction_date" db:"prediction_date"`
	WeekStart                 time.Time  `json:"week_start" db:"week_start"`
	InputFanCount             int        `json:"input_fan_count" db:"input_fan_count"`
	InputPageType             string     `json:"input_page_type" db:"input_page_type"`
	InputSaturation           float64    `json:"input_saturation" db:"input_saturation"`
	InputOpportunity          float64    `json:"input_opportunity" db:"input_opportunity"`
	PredictedTier             string     `json:"predicted_tier" db:"predicted_tier"`
	PredictedRevenuePerDay    int        `json:"predicted_revenue_per_day" db:"predicted_revenue_per_day"`
	PredictedEngagementPerDay int        `json:"predicted_engagement_per_day" db:"predicted_engagement_per_day"`
	PredictedRetentionPerDay  int        `json:"predicted_retention_per_day" db:"predicted_retention_per_day"`
	PredictedWeeklyRevenue    float64    `json:"predicted_weekly_revenue" db:"predicted_weekly_revenue"`
	PredictedWeeklyMessages   int        `json:"predicted_weekly_messages" db:"predicted_weekly_messages"`
	AlgorithmVersion          string     `json:"algorithm_version" db:"algorithm_version"`
	OutcomeMeasured           bool       `json:"outcome_measured" db:"outcome_measured"`
	ActualTotalRevenue        *float64   `json:"actual_total_revenue,omitempty" db:"actual_total_revenue"`
	ActualMessagesSent        *int       `json:"actual_messages_sent,omitempty" db:"actual_messages_sent"`
	RevenuePredictionError    *float64   `json:"revenue_prediction_error_pct,omitempty" db:"revenue_prediction_error_pct"`
	VolumePredictionError     *float64   `json:"volume_prediction_error_pct,omitempty" db:"volume_prediction_error_pct"`
	MeasuredAt                *time.Time `json:"measured_at,omitempty" db:"measured_at"`
}

// MeasuredOutcome carries the values written when a prediction is measured
type MeasuredOutcome struct {
	ActualTotalRevenue     float64
	ActualMessagesSent     int
	RevenuePredictionError *float64
	VolumePredictionError  *float64
	MeasuredAt             time.Time
}

// CreatorRepo reads creator profiles
type CreatorRepo interface {
	// Get returns the creator or nil when it does not exist
	Get(ctx context.Context, creatorID string) (*Creator, error)

	// ListActive returns all creators flagged active
	ListActive(ctx context.Context) ([]Creator, error)
}

// MessageRepo reads send history from mass_messages
type MessageRepo interface {
	// ListRange returns messages sent inside the range, oldest first
	ListRange(ctx context.Context, creatorID string, tr TimeRange) ([]MassMessage, error)

	// DailyVolumes aggregates messages per calendar day inside the range
	DailyVolumes(ctx context.Context, creatorID string, tr TimeRange) ([]DailyVolume, error)

	// Totals sums messages and earnings inside the range
	Totals(ctx context.Context, creatorID string, tr TimeRange) (MessageTotals, error)
}

// ContentTypeRepo reads content-type rankings
type ContentTypeRepo interface {
	// ListByCreator returns all ranked content types for a creator
	ListByCreator(ctx context.Context, creatorID string) ([]ContentTypePerformance, error)
}

// CaptionRepo reads the caption bank
type CaptionRepo interface {
	// ListByCreator returns every caption for a creator, active or not
	ListByCreator(ctx context.Context, creatorID string) ([]Caption, error)
}

// ScoreRepo reads precomputed saturation/opportunity scores
type ScoreRepo interface {
	// Latest returns the newest score for the period tracked on or after since,
	// or nil when none exists
	Latest(ctx context.Context, creatorID string, periodDays int, since time.Time) (*PrecomputedScore, error)
}

// PredictionRepo persists volume predictions. Rows are never deleted.
type PredictionRepo interface {
	// Insert stores a new prediction and returns its id
	Insert(ctx context.Context, p VolumePrediction) (int64, error)

	// Get returns a prediction or nil when it does not exist
	Get(ctx context.Context, id int64) (*VolumePrediction, error)

	// MarkMeasured writes the outcome once; it returns false when the row was
	// already measured
	MarkMeasured(ctx context.Context, id int64, outcome MeasuredOutcome) (bool, error)

	// ListUnmeasured returns unmeasured predictions whose week started before cutoff
	ListUnmeasured(ctx context.Context, cutoff time.Time, limit int) ([]VolumePrediction, error)

	// ListMeasured returns a creator's measured predictions ordered by week start
	ListMeasured(ctx context.Context, creatorID string) ([]VolumePrediction, error)

	// CountByCreator returns how many predictions a creator has, measured or not
	CountByCreator(ctx context.Context, creatorID string) (int, error)
}

// Repository aggregates all persistence interfaces
type Repository struct {
	Creators     CreatorRepo
	Messages     MessageRepo
	ContentTypes ContentTypeRepo
	Captions     CaptionRepo
	Scores       ScoreRepo
	Predictions  PredictionRepo
}

// HealthCheck represents repository health status
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth provides health monitoring for persistence layer
type RepositoryHealth interface {
	// Health returns current repository health status
	Health(ctx context.Context) HealthCheck

	// Ping tests basic connectivity to database
	Ping(ctx context.Context) error

	// Stats returns connection pool and query statistics
	Stats(ctx context.Context) map[string]interface{}
}
