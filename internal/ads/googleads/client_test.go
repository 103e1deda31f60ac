package googleads

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clickwise/attributor/config"
	"github.com/clickwise/attributor/internal/app/model"
	"golang.org/x/oauth2"
)

func testAdsConfig() config.GoogleAdsConfig {
	return config.GoogleAdsConfig{
		Enabled:          true,
		DeveloperToken:   "dev-token",
		LoginCustomerID:  "456",
		ClientCustomerID: "123",
		ConversionActionIDs: map[string]string{
			"converted_lead": "789",
		},
	}
}

func testUploadClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	tokens := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "access-token"})
	c := newClient(testAdsConfig(), tokens, nil)
	c.http.SetBaseURL(serverURL)
	return c
}

func TestClient_UploadOfflineConversion(t *testing.T) {
	var body struct {
		Conversions    []ClickConversion `json:"conversions"`
		PartialFailure bool              `json:"partialFailure"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/customers/123:uploadClickConversions" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("developer-token"); got != "dev-token" {
			t.Fatalf("expected developer token header, got %q", got)
		}
		if got := r.Header.Get("login-customer-id"); got != "456" {
			t.Fatalf("expected login customer id header, got %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer access-token" {
			t.Fatalf("expected bearer auth, got %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("invalid request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[{"gclid":"abc"}]}`))
	}))
	defer server.Close()

	c := testUploadClient(t, server.URL)
	c.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	raw := &model.RawLead{LeadID: 42, OrderID: "order_42", GCLID: "abc"}
	resp, err := c.UploadOfflineConversion(context.Background(), raw, model.ConversionConvertedLead)
	if err != nil {
		t.Fatalf("UploadOfflineConversion returned error: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].GCLID != "abc" {
		t.Fatalf("unexpected response %+v", resp)
	}

	if !body.PartialFailure {
		t.Fatal("uploads must be tagged partial failure tolerant")
	}
	if len(body.Conversions) != 1 {
		t.Fatalf("expected exactly one conversion per upload, got %d", len(body.Conversions))
	}
	conv := body.Conversions[0]
	if conv.ConversionAction != "customers/123/conversionActions/789" {
		t.Fatalf("unexpected conversion action %q", conv.ConversionAction)
	}
	if conv.GCLID != "abc" || conv.OrderID != "order_42" {
		t.Fatalf("unexpected conversion identifiers %+v", conv)
	}
}

func TestClient_UploadOfflineConversion_ErrorStatusNoRetry(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	c := testUploadClient(t, server.URL)

	raw := &model.RawLead{LeadID: 42, OrderID: "order_42", GCLID: "abc"}
	_, err := c.UploadOfflineConversion(context.Background(), raw, model.ConversionConvertedLead)

	var uploadErr *UploadError
	if !errors.As(err, &uploadErr) {
		t.Fatalf("expected UploadError, got %v", err)
	}
	if uploadErr.OrderID != "order_42" {
		t.Fatalf("error must carry the order id, got %q", uploadErr.OrderID)
	}
	if requests != 1 {
		t.Fatalf("rejected uploads must not be retried, got %d requests", requests)
	}
}

func TestClient_UploadOfflineConversion_UnknownActionID(t *testing.T) {
	tokens := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "access-token"})
	c := newClient(config.GoogleAdsConfig{ClientCustomerID: "123"}, tokens, nil)

	raw := &model.RawLead{LeadID: 42, OrderID: "order_42", GCLID: "abc"}
	_, err := c.UploadOfflineConversion(context.Background(), raw, model.ConversionConvertedLead)

	var uploadErr *UploadError
	if !errors.As(err, &uploadErr) {
		t.Fatalf("expected UploadError for missing action id, got %v", err)
	}
}
