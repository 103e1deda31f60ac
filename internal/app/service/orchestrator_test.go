package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clickwise/attributor/internal/ads/googleads"
	"github.com/clickwise/attributor/internal/app/model"
	"github.com/clickwise/attributor/internal/crm/kommo"
)

type mockCRM struct {
	latestIncomingFn func(ctx context.Context) (int, error)
	updateLeadFn     func(ctx context.Context, leadID int, input kommo.UpdateLeadInput) error
	constructRawFn   func(ctx context.Context, leadID int) (*model.RawLead, error)
	dueTasksFn       func(ctx context.Context, pipelineID, stageID int, from, to time.Time) ([]int, error)
	runSalesbotFn    func(ctx context.Context, salesbotID int, leadIDs []int) error
}

func (m *mockCRM) LatestIncomingLeadID(ctx context.Context) (int, error) {
	if m.latestIncomingFn != nil {
		return m.latestIncomingFn(ctx)
	}
	return 42, nil
}

func (m *mockCRM) LeadByID(ctx context.Context, leadID int) (*kommo.Lead, error) {
	return nil, errors.New("not implemented")
}

func (m *mockCRM) ContactData(ctx context.Context, contactID int) (*kommo.ContactData, error) {
	return nil, errors.New("not implemented")
}

func (m *mockCRM) UpdateLead(ctx context.Context, leadID int, input kommo.UpdateLeadInput) error {
	if m.updateLeadFn != nil {
		return m.updateLeadFn(ctx, leadID, input)
	}
	return nil
}

func (m *mockCRM) ConstructRawLead(ctx context.Context, leadID int) (*model.RawLead, error) {
	if m.constructRawFn != nil {
		return m.constructRawFn(ctx, leadID)
	}
	return &model.RawLead{LeadID: leadID, OrderID: "order_42", GCLID: "abc"}, nil
}

func (m *mockCRM) LeadIDsWithDueTasks(ctx context.Context, pipelineID, stageID int, from, to time.Time) ([]int, error) {
	if m.dueTasksFn != nil {
		return m.dueTasksFn(ctx, pipelineID, stageID, from, to)
	}
	return nil, nil
}

func (m *mockCRM) RunSalesbot(ctx context.Context, salesbotID int, leadIDs []int) error {
	if m.runSalesbotFn != nil {
		return m.runSalesbotFn(ctx, salesbotID, leadIDs)
	}
	return nil
}

type mockUploader struct {
	uploadFn func(ctx context.Context, raw *model.RawLead, conversionType model.ConversionType) (*googleads.UploadResponse, error)
	calls    int
}

func (m *mockUploader) UploadOfflineConversion(ctx context.Context, raw *model.RawLead, conversionType model.ConversionType) (*googleads.UploadResponse, error) {
	m.calls++
	if m.uploadFn != nil {
		return m.uploadFn(ctx, raw, conversionType)
	}
	return &googleads.UploadResponse{}, nil
}

func newTestOrchestrator(clicks *mockClickRepository, crm *mockCRM, ads *mockUploader) *Orchestrator {
	return NewOrchestrator(OrchestratorDeps{
		Clicks:                clicks,
		Matcher:               NewMatcher(nil, clicks),
		CRM:                   crm,
		Ads:                   ads,
		ClickTTL:              15 * time.Minute,
		AdsEnabled:            ads != nil,
		TargetPipelineID:      1,
		TargetStageID:         2,
		ShortWindowSalesbotID: 100,
		LongWindowSalesbotID:  200,
	})
}

func TestOrchestrator_LogClickRequiresIdentifier(t *testing.T) {
	o := newTestOrchestrator(&mockClickRepository{
		createFn: func(ctx context.Context, record *model.ClickRecord) error {
			t.Fatal("store must not be touched for invalid submissions")
			return nil
		},
	}, &mockCRM{}, nil)

	err := o.LogClick(context.Background(), ClickSubmission{LandingPagePath: "/"})
	if !errors.Is(err, ErrMissingClickIdentifier) {
		t.Fatalf("expected ErrMissingClickIdentifier, got %v", err)
	}
}

func TestOrchestrator_LogClickPersistsWithTTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	var stored *model.ClickRecord
	o := newTestOrchestrator(&mockClickRepository{
		createFn: func(ctx context.Context, record *model.ClickRecord) error {
			stored = record
			return nil
		},
	}, &mockCRM{}, nil)
	o.now = func() time.Time { return now }

	err := o.LogClick(context.Background(), ClickSubmission{GCLID: "abc", LandingPagePath: "/landing"})
	if err != nil {
		t.Fatalf("LogClick returned error: %v", err)
	}
	if stored == nil {
		t.Fatal("expected a stored record")
	}
	if stored.Matched {
		t.Fatal("new records must start unmatched")
	}
	if stored.ExpiresAt != stored.CreatedAt+15*60 {
		t.Fatalf("expiry must be creation plus TTL, got created=%d expires=%d", stored.CreatedAt, stored.ExpiresAt)
	}
}

func TestOrchestrator_ProcessLeadOrganic(t *testing.T) {
	var update kommo.UpdateLeadInput
	crm := &mockCRM{
		updateLeadFn: func(ctx context.Context, leadID int, input kommo.UpdateLeadInput) error {
			if leadID != 42 {
				t.Fatalf("expected latest incoming lead 42, got %d", leadID)
			}
			update = input
			return nil
		},
	}
	ads := &mockUploader{}
	o := newTestOrchestrator(&mockClickRepository{}, crm, ads)

	result, err := o.ProcessLead(context.Background(), model.LeadEvent{})
	if err != nil {
		t.Fatalf("ProcessLead returned error: %v", err)
	}
	if result.Source != model.SourceOrganic {
		t.Fatalf("expected organic, got %s", result.Source)
	}
	if update.Source != model.SourceOrganic {
		t.Fatalf("expected CRM update with organic source, got %s", update.Source)
	}
	if ads.calls != 0 {
		t.Fatal("organic leads must not trigger conversion uploads")
	}
}

func TestOrchestrator_ProcessLeadMatchedUploadsConversion(t *testing.T) {
	now := time.Now()
	clicks := &mockClickRepository{
		latestUnmatchedFn: func(ctx context.Context) (*model.ClickRecord, error) {
			return freshClick(now), nil
		},
	}
	var update kommo.UpdateLeadInput
	crm := &mockCRM{
		updateLeadFn: func(ctx context.Context, leadID int, input kommo.UpdateLeadInput) error {
			update = input
			return nil
		},
	}
	ads := &mockUploader{
		uploadFn: func(ctx context.Context, raw *model.RawLead, conversionType model.ConversionType) (*googleads.UploadResponse, error) {
			if conversionType != model.ConversionConvertedLead {
				t.Fatalf("unexpected conversion type %v", conversionType)
			}
			return &googleads.UploadResponse{}, nil
		},
	}
	o := newTestOrchestrator(clicks, crm, ads)

	result, err := o.ProcessLead(context.Background(), model.LeadEvent{
		LeadID:         9,
		ConversionType: model.ConversionConvertedLead,
	})
	if err != nil {
		t.Fatalf("ProcessLead returned error: %v", err)
	}
	if result.Source != model.SourceCPC {
		t.Fatalf("expected cpc, got %s", result.Source)
	}
	if update.GCLID != "abc" || update.GBRAID != "" {
		t.Fatalf("expected gclid only on CRM update, got gclid=%q gbraid=%q", update.GCLID, update.GBRAID)
	}
	if ads.calls != 1 {
		t.Fatalf("expected one conversion upload, got %d", ads.calls)
	}
}

func TestOrchestrator_ProcessLeadDisabledConversionSkipsUpload(t *testing.T) {
	now := time.Now()
	clicks := &mockClickRepository{
		latestUnmatchedFn: func(ctx context.Context) (*model.ClickRecord, error) {
			return freshClick(now), nil
		},
	}
	ads := &mockUploader{}
	o := newTestOrchestrator(clicks, &mockCRM{}, ads)

	_, err := o.ProcessLead(context.Background(), model.LeadEvent{
		LeadID:         9,
		ConversionType: model.ConversionDisabled,
	})
	if err != nil {
		t.Fatalf("ProcessLead returned error: %v", err)
	}
	if ads.calls != 0 {
		t.Fatal("disabled conversion type must not upload")
	}
}

func TestOrchestrator_ProcessLeadCRMFailureAborts(t *testing.T) {
	crm := &mockCRM{
		updateLeadFn: func(ctx context.Context, leadID int, input kommo.UpdateLeadInput) error {
			return &kommo.RequestError{Method: "PATCH", Endpoint: "/leads/42", Err: errors.New("boom")}
		},
	}
	ads := &mockUploader{}
	o := newTestOrchestrator(&mockClickRepository{}, crm, ads)

	_, err := o.ProcessLead(context.Background(), model.LeadEvent{})
	var reqErr *kommo.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if ads.calls != 0 {
		t.Fatal("no upload may happen after a CRM failure")
	}
}

func TestOrchestrator_RunSalesbotsUsesBothWindows(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	type run struct {
		salesbotID int
		leadIDs    []int
	}
	var queried []time.Duration
	var runs []run

	crm := &mockCRM{
		dueTasksFn: func(ctx context.Context, pipelineID, stageID int, from, to time.Time) ([]int, error) {
			if pipelineID != 1 || stageID != 2 {
				t.Fatalf("unexpected pipeline/stage %d/%d", pipelineID, stageID)
			}
			queried = append(queried, from.Sub(now), to.Sub(now))
			return []int{5, 6}, nil
		},
		runSalesbotFn: func(ctx context.Context, salesbotID int, leadIDs []int) error {
			runs = append(runs, run{salesbotID, leadIDs})
			return nil
		},
	}
	o := newTestOrchestrator(&mockClickRepository{}, crm, nil)
	o.now = func() time.Time { return now }

	if err := o.RunSalesbots(context.Background()); err != nil {
		t.Fatalf("RunSalesbots returned error: %v", err)
	}

	want := []time.Duration{12 * time.Hour, 36 * time.Hour, 156 * time.Hour, 180 * time.Hour}
	if len(queried) != len(want) {
		t.Fatalf("expected %d window bounds, got %d", len(want), len(queried))
	}
	for i := range want {
		if queried[i] != want[i] {
			t.Fatalf("window bound %d: expected %s, got %s", i, want[i], queried[i])
		}
	}
	if len(runs) != 2 || runs[0].salesbotID != 100 || runs[1].salesbotID != 200 {
		t.Fatalf("expected salesbots 100 and 200 to run, got %+v", runs)
	}
}
