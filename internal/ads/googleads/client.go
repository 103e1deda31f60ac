package googleads

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/clickwise/attributor/config"
	"github.com/clickwise/attributor/internal/app/model"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	defaultEndpoint = "https://googleads.googleapis.com/v17"
	adsScope        = "https://www.googleapis.com/auth/adwords"
	requestTimeout  = 10 * time.Second
)

// UploadError describes a failed conversion upload. Uploads are never
// retried automatically: the Ads API rejects duplicate conversions, so a
// blind retry risks double counting.
type UploadError struct {
	OrderID string
	Err     error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("googleads: conversion upload for %s failed: %v", e.OrderID, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// UploadResponse is the per-record result the Ads API reports. With partial
// failure enabled a rejected record surfaces here instead of failing the
// whole batch.
type UploadResponse struct {
	PartialFailureError *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"partialFailureError,omitempty"`
	Results []struct {
		GCLID              string `json:"gclid,omitempty"`
		GBRAID             string `json:"gbraid,omitempty"`
		ConversionAction   string `json:"conversionAction,omitempty"`
		ConversionDateTime string `json:"conversionDateTime,omitempty"`
	} `json:"results,omitempty"`
}

// Uploader is the ad-platform surface the orchestrator depends on.
type Uploader interface {
	UploadOfflineConversion(ctx context.Context, raw *model.RawLead, conversionType model.ConversionType) (*UploadResponse, error)
}

// Client uploads offline conversions through the Google Ads REST API. It is
// constructed once at startup and injected; the token source refreshes the
// service-account credential under the hood.
type Client struct {
	cfg    config.GoogleAdsConfig
	http   *resty.Client
	tokens oauth2.TokenSource
	logger *zap.Logger
	now    func() time.Time
}

// NewClient builds an authenticated Ads API client from the service-account
// JSON key referenced by config.
func NewClient(cfg config.GoogleAdsConfig, logger *zap.Logger) (*Client, error) {
	keyJSON, err := os.ReadFile(cfg.JSONKeyFilePath)
	if err != nil {
		return nil, fmt.Errorf("googleads: read key file: %w", err)
	}

	jwtCfg, err := google.JWTConfigFromJSON(keyJSON, adsScope)
	if err != nil {
		return nil, fmt.Errorf("googleads: parse key file: %w", err)
	}

	return newClient(cfg, jwtCfg.TokenSource(context.Background()), logger), nil
}

// newClient wires the HTTP layer around an existing token source.
func newClient(cfg config.GoogleAdsConfig, tokens oauth2.TokenSource, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	http := resty.New().
		SetBaseURL(defaultEndpoint).
		SetTimeout(requestTimeout).
		SetHeader("developer-token", cfg.DeveloperToken).
		SetHeader("login-customer-id", cfg.LoginCustomerID)

	return &Client{
		cfg:    cfg,
		http:   http,
		tokens: tokens,
		logger: logger,
		now:    time.Now,
	}
}

// UploadOfflineConversion builds and submits a single click conversion for
// the given lead. The request is tagged partial-failure-tolerant so a
// rejected record is reported per-record by the API instead of failing the
// call.
func (c *Client) UploadOfflineConversion(ctx context.Context, raw *model.RawLead, conversionType model.ConversionType) (*UploadResponse, error) {
	action, ok := conversionType.Action()
	if !ok {
		return nil, &UploadError{OrderID: raw.OrderID, Err: fmt.Errorf("conversion type %d has no action", conversionType)}
	}

	actionID := c.cfg.ConversionActionIDs[action.Name]
	if actionID == "" {
		return nil, &UploadError{OrderID: raw.OrderID, Err: fmt.Errorf("no conversion action id configured for %s", action.Name)}
	}

	conversion := BuildClickConversion(raw, action,
		ConversionActionPath(c.cfg.ClientCustomerID, actionID), c.now().UTC())

	token, err := c.tokens.Token()
	if err != nil {
		return nil, &UploadError{OrderID: raw.OrderID, Err: fmt.Errorf("token: %w", err)}
	}

	var out UploadResponse
	endpoint := fmt.Sprintf("/customers/%s:uploadClickConversions", c.cfg.ClientCustomerID)
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token.AccessToken).
		SetBody(map[string]any{
			"conversions":    []ClickConversion{conversion},
			"partialFailure": true,
		}).
		SetResult(&out).
		Post(endpoint)
	if err != nil {
		return nil, &UploadError{OrderID: raw.OrderID, Err: err}
	}
	if resp.IsError() {
		return nil, &UploadError{
			OrderID: raw.OrderID,
			Err:     fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()),
		}
	}

	if out.PartialFailureError != nil {
		c.logger.Warn("conversion rejected by partial failure policy",
			zap.String("order_id", raw.OrderID),
			zap.String("message", out.PartialFailureError.Message))
	} else {
		c.logger.Info("conversion uploaded",
			zap.String("order_id", raw.OrderID),
			zap.String("conversion_action", action.Name))
	}

	return &out, nil
}
