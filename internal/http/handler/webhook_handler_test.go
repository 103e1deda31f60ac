package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/clickwise/attributor/internal/app/model"
	"github.com/clickwise/attributor/internal/app/repository"
	appserver "github.com/clickwise/attributor/internal/app/server"
	"github.com/clickwise/attributor/internal/app/service"
	"github.com/clickwise/attributor/internal/crm/kommo"
)

type stubClickRepository struct {
	records []*model.ClickRecord
}

func (s *stubClickRepository) Create(ctx context.Context, record *model.ClickRecord) error {
	s.records = append(s.records, record)
	return nil
}

func (s *stubClickRepository) LatestUnmatched(ctx context.Context) (*model.ClickRecord, error) {
	return nil, repository.ErrNoUnmatchedClick
}

func (s *stubClickRepository) MarkMatched(ctx context.Context, id uint) (bool, error) {
	return true, nil
}

func (s *stubClickRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

type stubCRM struct{}

func (stubCRM) LatestIncomingLeadID(ctx context.Context) (int, error) { return 42, nil }

func (stubCRM) LeadByID(ctx context.Context, leadID int) (*kommo.Lead, error) { return nil, nil }

func (stubCRM) ContactData(ctx context.Context, contactID int) (*kommo.ContactData, error) {
	return &kommo.ContactData{}, nil
}

func (stubCRM) UpdateLead(ctx context.Context, leadID int, input kommo.UpdateLeadInput) error {
	return nil
}

func (stubCRM) ConstructRawLead(ctx context.Context, leadID int) (*model.RawLead, error) {
	return &model.RawLead{LeadID: leadID}, nil
}

func (stubCRM) LeadIDsWithDueTasks(ctx context.Context, pipelineID, stageID int, from, to time.Time) ([]int, error) {
	return nil, nil
}

func (stubCRM) RunSalesbot(ctx context.Context, salesbotID int, leadIDs []int) error { return nil }

type stubStats struct{}

func (stubStats) AttributionCounts(ctx context.Context, since time.Time) (*repository.AttributionStats, error) {
	return &repository.AttributionStats{Since: since, Organic: 3, CPC: 1}, nil
}

func newTestServer(clicks repository.ClickRecordRepository) *appserver.Server {
	orchestrator := service.NewOrchestrator(service.OrchestratorDeps{
		Clicks:   clicks,
		Matcher:  service.NewMatcher(nil, clicks),
		CRM:      stubCRM{},
		ClickTTL: 15 * time.Minute,
	})

	return appserver.New(appserver.Dependencies{
		Orchestrator: orchestrator,
		Stats:        stubStats{},
	})
}

type statusResponse struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

func postJSON(t *testing.T, srv *appserver.Server, path string, body any) (*http.Response, statusResponse) {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}

	req, _ := http.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.App().Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	var out statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, out
}

func TestLogClick_MissingIdentifierIsRejected(t *testing.T) {
	clicks := &stubClickRepository{}
	srv := newTestServer(clicks)

	resp, out := postJSON(t, srv, "/outbound-click-logs", map[string]string{"page_path": "/landing"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if out.StatusCode != http.StatusBadRequest {
		t.Fatalf("body statusCode must mirror the HTTP status, got %d", out.StatusCode)
	}
	if len(clicks.records) != 0 {
		t.Fatal("invalid submissions must not reach the store")
	}
}

func TestLogClick_PersistsClick(t *testing.T) {
	clicks := &stubClickRepository{}
	srv := newTestServer(clicks)

	resp, _ := postJSON(t, srv, "/outbound-click-logs", map[string]string{
		"gclid":     "abc",
		"page_path": "/landing",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(clicks.records) != 1 {
		t.Fatalf("expected one stored click, got %d", len(clicks.records))
	}
	if clicks.records[0].GCLID != "abc" {
		t.Fatalf("expected gclid abc, got %q", clicks.records[0].GCLID)
	}
}

func TestUpdateLead_OrganicWithoutClicks(t *testing.T) {
	srv := newTestServer(&stubClickRepository{})

	resp, out := postJSON(t, srv, "/update-lead", map[string]any{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if out.Message != "Lead updated with organic source" {
		t.Fatalf("unexpected message %q", out.Message)
	}
}

func TestUnknownPathReturns404(t *testing.T) {
	srv := newTestServer(&stubClickRepository{})

	req, _ := http.NewRequest(http.MethodGet, "/nope", nil)
	resp, err := srv.App().Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	var out statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Message != "Invalid path" {
		t.Fatalf("unexpected message %q", out.Message)
	}
}

func TestStats_ReturnsAggregates(t *testing.T) {
	srv := newTestServer(&stubClickRepository{})

	req, _ := http.NewRequest(http.MethodGet, "/stats?since_hours=48", nil)
	resp, err := srv.App().Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var stats repository.AttributionStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if stats.Organic != 3 || stats.CPC != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
