package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clickwise/attributor/internal/app/model"
	"github.com/clickwise/attributor/internal/app/repository"
	"go.uber.org/zap"
)

// Matcher decides the attribution source for one lead event by binding it to
// the most recent unmatched, unexpired click — or classifying it organic.
type Matcher struct {
	logger *zap.Logger
	repo   repository.ClickRecordRepository
	now    func() time.Time
}

// NewMatcher returns a matcher backed by the given click store.
func NewMatcher(logger *zap.Logger, repo repository.ClickRecordRepository) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{
		logger: logger,
		repo:   repo,
		now:    time.Now,
	}
}

var organic = &model.AttributionResult{Source: model.SourceOrganic}

// Match runs one attribution decision.
//
// The single-slot design means attribution capacity is exactly one pending
// click system-wide: a second lead event arriving after the slot was consumed
// is always organic. A cpc result is only reported when the conditional
// matched-flag update actually won; a concurrent matcher that lost the race
// falls back to organic instead of double-consuming the click.
//
// Store failures propagate to the caller; retry policy, if any, belongs to
// the orchestrator.
func (m *Matcher) Match(ctx context.Context) (*model.AttributionResult, error) {
	click, err := m.repo.LatestUnmatched(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNoUnmatchedClick) {
			return organic, nil
		}
		return nil, fmt.Errorf("matcher: %w", err)
	}

	// Staleness guard for the window between expiry and the next sweep:
	// an expired click is not reusable and must not be mutated here, the
	// sweeper will evict it.
	if click.Expired(m.now()) {
		m.logger.Debug("latest unmatched click already expired",
			zap.Uint("click_id", click.ID),
			zap.Int64("expires_at", click.ExpiresAt))
		return organic, nil
	}

	won, err := m.repo.MarkMatched(ctx, click.ID)
	if err != nil {
		return nil, fmt.Errorf("matcher: %w", err)
	}
	if !won {
		m.logger.Info("lost match race, falling back to organic",
			zap.Uint("click_id", click.ID))
		return organic, nil
	}

	kind, value := click.Identifier()
	return &model.AttributionResult{
		Source:          model.SourceCPC,
		ClickIDKind:     kind,
		ClickID:         value,
		LandingPagePath: click.LandingPagePath,
	}, nil
}
