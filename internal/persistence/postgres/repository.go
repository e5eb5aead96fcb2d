package postgres

import (
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/volumerun/internal/persistence"
)

// NewRepository wires every PostgreSQL repository onto one pool
func NewRepository(db *sqlx.DB, timeout time.Duration) *persistence.Repository {
	return &persistence.Repository{
		Creators:     NewCreatorRepo(db, timeout),
		Messages:     NewMessageRepo(db, timeout),
		ContentTypes: NewContentTypeRepo(db, timeout),
		Captions:     NewCaptionRepo(db, timeout),
		Scores:       NewScoreRepo(db, timeout),
		Predictions:  NewPredictionRepo(db, timeout),
	}
}
