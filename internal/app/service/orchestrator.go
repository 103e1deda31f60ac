package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/clickwise/attributor/internal/ads/googleads"
	"github.com/clickwise/attributor/internal/app/model"
	"github.com/clickwise/attributor/internal/app/repository"
	"github.com/clickwise/attributor/internal/crm/kommo"
	"github.com/clickwise/attributor/internal/infra/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrMissingClickIdentifier rejects click submissions carrying neither gclid
// nor gbraid. It short-circuits before any store access.
var ErrMissingClickIdentifier = errors.New("missing required click identifier")

// Follow-up reminder windows for the scheduled salesbot fan-out, as offsets
// from now.
const (
	shortWindowFrom = 12 * time.Hour
	shortWindowTo   = 36 * time.Hour
	longWindowFrom  = 156 * time.Hour
	longWindowTo    = 180 * time.Hour
)

const (
	// Sizing for the duplicate-identifier bloom filter: enough capacity for
	// a day of clicks at a low false positive rate. Duplicates are only
	// flagged, never rejected.
	bloomExpectedItems     = 100_000
	bloomFalsePositiveRate = 0.01

	conversionGuardTTL = 24 * time.Hour
)

// ClickSubmission is the payload of one ad-network redirect callback.
type ClickSubmission struct {
	GCLID           string `json:"gclid"`
	GBRAID          string `json:"gbraid"`
	LandingPagePath string `json:"page_path"`
}

// OrchestratorDeps bundles the collaborators the orchestrator sequences.
type OrchestratorDeps struct {
	Logger    *zap.Logger
	Clicks    repository.ClickRecordRepository
	Matcher   *Matcher
	CRM       kommo.Service
	Ads       googleads.Uploader
	Publisher *AttributionPublisher
	Redis     *redis.Client

	ClickTTL         time.Duration
	AdsEnabled       bool
	TargetPipelineID int
	TargetStageID    int

	ShortWindowSalesbotID int
	LongWindowSalesbotID  int
}

// Orchestrator sequences click ingestion, lead matching, the CRM write-back
// and conversion reporting for each inbound event. Every pass is one
// synchronous sequence; a step's fatal error aborts the remaining steps.
type Orchestrator struct {
	logger *zap.Logger
	deps   OrchestratorDeps
	now    func() time.Time

	seenMu sync.Mutex
	seen   *bloom.BloomFilter
}

// NewOrchestrator wires the orchestrator from its dependencies.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		logger: logger,
		deps:   deps,
		now:    time.Now,
		seen:   bloom.NewWithEstimates(bloomExpectedItems, bloomFalsePositiveRate),
	}
}

// LogClick validates and persists one observed ad click. Click logging is
// best-effort downstream, but a storage failure is still surfaced to the
// caller as an explicit error.
func (o *Orchestrator) LogClick(ctx context.Context, submission ClickSubmission) error {
	if submission.GCLID == "" && submission.GBRAID == "" {
		return ErrMissingClickIdentifier
	}

	o.flagDuplicate(submission)

	record := model.NewClickRecord(
		submission.GCLID,
		submission.GBRAID,
		submission.LandingPagePath,
		o.now(),
		o.deps.ClickTTL,
	)

	if err := o.deps.Clicks.Create(ctx, record); err != nil {
		o.logger.Error("failed to persist click log",
			zap.String("gclid", submission.GCLID),
			zap.String("gbraid", submission.GBRAID),
			zap.Error(err))
		return err
	}

	metrics.ClicksStored.Inc()
	o.logger.Info("click log persisted",
		zap.String("gclid", submission.GCLID),
		zap.String("page_path", submission.LandingPagePath),
		zap.Int64("expires_at", record.ExpiresAt))
	return nil
}

// flagDuplicate warns when a click identifier was already seen recently. The
// bloom filter admits false positives, so this never influences matching.
func (o *Orchestrator) flagDuplicate(submission ClickSubmission) {
	key := submission.GCLID
	if key == "" {
		key = submission.GBRAID
	}

	o.seenMu.Lock()
	dup := o.seen.TestAndAddString(key)
	o.seenMu.Unlock()

	if dup {
		metrics.DuplicateClicks.Inc()
		o.logger.Warn("click identifier seen before", zap.String("identifier", key))
	}
}

// ProcessLead runs the full attribution pass for one lead event:
// match -> CRM update -> conversion upload (iff matched). No intermediate
// state is persisted between steps; the click-match flag may already be set
// when a later step fails. That at-most-once-match, best-effort-downstream
// tradeoff is deliberate.
func (o *Orchestrator) ProcessLead(ctx context.Context, event model.LeadEvent) (*model.AttributionResult, error) {
	result, err := o.deps.Matcher.Match(ctx)
	if err != nil {
		return nil, err
	}

	leadID := event.LeadID
	if leadID == 0 {
		leadID, err = o.deps.CRM.LatestIncomingLeadID(ctx)
		if err != nil {
			return nil, err
		}
	}

	update := kommo.UpdateLeadInput{
		Source:          result.Source,
		LandingPagePath: result.LandingPagePath,
		Flags:           event.CustomFieldFlags,
	}
	switch result.ClickIDKind {
	case "gclid":
		update.GCLID = result.ClickID
	case "gbraid":
		update.GBRAID = result.ClickID
	}

	if err := o.deps.CRM.UpdateLead(ctx, leadID, update); err != nil {
		return nil, err
	}

	metrics.LeadsMatched.WithLabelValues(string(result.Source)).Inc()
	o.logger.Info("lead updated",
		zap.Int("lead_id", leadID),
		zap.String("source", string(result.Source)),
		zap.String("click_id", result.ClickID))

	uploaded := false
	if result.Source == model.SourceCPC {
		uploaded, err = o.reportConversion(ctx, leadID, event.ConversionType)
		if err != nil {
			o.publish(leadID, result, false)
			return nil, err
		}
	}

	o.publish(leadID, result, uploaded)
	return result, nil
}

// reportConversion constructs the raw lead and submits the offline
// conversion, guarded against double submission of the same order id.
func (o *Orchestrator) reportConversion(ctx context.Context, leadID int, conversionType model.ConversionType) (bool, error) {
	if !o.deps.AdsEnabled {
		return false, nil
	}
	if _, ok := conversionType.Action(); !ok {
		return false, nil
	}

	raw, err := o.deps.CRM.ConstructRawLead(ctx, leadID)
	if err != nil {
		return false, err
	}

	if !o.acquireConversionGuard(ctx, raw.OrderID) {
		metrics.ConversionUploads.WithLabelValues("duplicate").Inc()
		o.logger.Warn("conversion already submitted for order, skipping",
			zap.String("order_id", raw.OrderID))
		return false, nil
	}

	if _, err := o.deps.Ads.UploadOfflineConversion(ctx, raw, conversionType); err != nil {
		metrics.ConversionUploads.WithLabelValues("failed").Inc()
		return false, err
	}

	metrics.ConversionUploads.WithLabelValues("ok").Inc()
	return true, nil
}

// acquireConversionGuard claims the order id via SETNX. Fails open when Redis
// is unavailable: a missed guard means a possible duplicate warning upstream,
// which the partial-failure upload policy already tolerates.
func (o *Orchestrator) acquireConversionGuard(ctx context.Context, orderID string) bool {
	if o.deps.Redis == nil {
		return true
	}

	ok, err := o.deps.Redis.SetNX(ctx, "conversion:"+orderID, 1, conversionGuardTTL).Result()
	if err != nil {
		o.logger.Error("conversion guard unavailable", zap.Error(err))
		return true
	}
	return ok
}

func (o *Orchestrator) publish(leadID int, result *model.AttributionResult, uploaded bool) {
	if o.deps.Publisher == nil {
		return
	}
	if err := o.deps.Publisher.Publish(leadID, result, uploaded); err != nil {
		o.logger.Error("failed to publish attribution event",
			zap.Int("lead_id", leadID),
			zap.Error(err))
	}
}

// RunSalesbots triggers the follow-up automation for leads whose next task
// falls inside either reminder window. This is a bulk batch pass, detached
// from the attribution core, sharing only the orchestrator's sequencing role.
func (o *Orchestrator) RunSalesbots(ctx context.Context) error {
	windows := []struct {
		salesbotID int
		from, to   time.Duration
	}{
		{o.deps.ShortWindowSalesbotID, shortWindowFrom, shortWindowTo},
		{o.deps.LongWindowSalesbotID, longWindowFrom, longWindowTo},
	}

	now := o.now()
	for _, w := range windows {
		leadIDs, err := o.deps.CRM.LeadIDsWithDueTasks(ctx,
			o.deps.TargetPipelineID, o.deps.TargetStageID,
			now.Add(w.from), now.Add(w.to))
		if err != nil {
			return err
		}
		if len(leadIDs) == 0 {
			continue
		}

		if err := o.deps.CRM.RunSalesbot(ctx, w.salesbotID, leadIDs); err != nil {
			return err
		}
		o.logger.Info("salesbot triggered",
			zap.Int("salesbot_id", w.salesbotID),
			zap.Int("lead_count", len(leadIDs)))
	}
	return nil
}

// Describe returns a short human description of the orchestrated flow, used
// by the health endpoint.
func (o *Orchestrator) Describe() string {
	return fmt.Sprintf("click TTL %s, ads enabled %t", o.deps.ClickTTL, o.deps.AdsEnabled)
}
