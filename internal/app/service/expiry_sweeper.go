package service

import (
	"context"
	"time"

	"github.com/clickwise/attributor/internal/app/repository"
	"github.com/clickwise/attributor/internal/infra/metrics"
	"go.uber.org/zap"
)

// ExpirySweeper periodically evicts click records whose window has elapsed.
// Postgres has no native row TTL, so store-side eviction is a background
// sweep; the matcher additionally guards reads against not-yet-swept records.
type ExpirySweeper struct {
	logger   *zap.Logger
	repo     repository.ClickRecordRepository
	interval time.Duration
	stopChan chan struct{}
}

// NewExpirySweeper creates a sweeper over the click store.
func NewExpirySweeper(logger *zap.Logger, repo repository.ClickRecordRepository) *ExpirySweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpirySweeper{
		logger:   logger,
		repo:     repo,
		interval: 30 * time.Second,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic sweep.
func (s *ExpirySweeper) Start() {
	go s.run()
}

// Stop stops the periodic sweep.
func (s *ExpirySweeper) Stop() {
	close(s.stopChan)
}

func (s *ExpirySweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopChan:
			s.logger.Info("expiry sweeper stopped")
			return
		}
	}
}

func (s *ExpirySweeper) sweep() {
	ctx := context.Background()

	deleted, err := s.repo.DeleteExpired(ctx, time.Now())
	if err != nil {
		s.logger.Error("failed to delete expired click records", zap.Error(err))
		return
	}

	if deleted > 0 {
		metrics.ExpiredClicksSwept.Add(float64(deleted))
		s.logger.Info("evicted expired click records", zap.Int64("count", deleted))
	}
}
