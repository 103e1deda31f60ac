package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AttributionStats aggregates audit events over a window.
type AttributionStats struct {
	Since               time.Time `json:"since"`
	Organic             int64     `json:"organic"`
	CPC                 int64     `json:"cpc"`
	ConversionsUploaded int64     `json:"conversions_uploaded"`
}

// StatsRepository serves read-only aggregates over attribution events. It
// runs raw SQL on the pgx pool rather than going through GORM; the query is a
// single grouped scan and does not need the ORM.
type StatsRepository interface {
	AttributionCounts(ctx context.Context, since time.Time) (*AttributionStats, error)
}

type statsRepository struct {
	pool *pgxpool.Pool
}

// NewStatsRepository returns a pgx-backed StatsRepository.
func NewStatsRepository(pool *pgxpool.Pool) StatsRepository {
	return &statsRepository{pool: pool}
}

func (r *statsRepository) AttributionCounts(ctx context.Context, since time.Time) (*AttributionStats, error) {
	const query = `
		SELECT
			COUNT(*) FILTER (WHERE source = 'organic'),
			COUNT(*) FILTER (WHERE source = 'cpc'),
			COUNT(*) FILTER (WHERE conversion_uploaded)
		FROM attribution_events
		WHERE timestamp >= $1`

	stats := &AttributionStats{Since: since}
	err := r.pool.QueryRow(ctx, query, since).
		Scan(&stats.Organic, &stats.CPC, &stats.ConversionsUploaded)
	if err != nil {
		return nil, &ReadError{Op: "attribution counts", Err: fmt.Errorf("query: %w", err)}
	}
	return stats, nil
}
