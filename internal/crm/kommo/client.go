package kommo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/clickwise/attributor/config"
	"github.com/clickwise/attributor/internal/app/model"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const requestTimeout = 10 * time.Second

// RequestError describes a failed CRM call with enough context to replay it
// manually.
type RequestError struct {
	Method   string
	Endpoint string
	Err      error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("kommo: %s %s failed: %v", e.Method, e.Endpoint, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

var errUnexpectedStatus = errors.New("unexpected response status")

// UpdateLeadInput carries the attribution fields written back onto a lead.
type UpdateLeadInput struct {
	Source          model.Source
	GCLID           string
	GBRAID          string
	LandingPagePath string

	// Flags names boolean marker custom fields to set to true, resolved
	// through the configured field ID mapping.
	Flags []string
}

// Service is the CRM surface the orchestrator depends on.
type Service interface {
	LatestIncomingLeadID(ctx context.Context) (int, error)
	LeadByID(ctx context.Context, leadID int) (*Lead, error)
	ContactData(ctx context.Context, contactID int) (*ContactData, error)
	UpdateLead(ctx context.Context, leadID int, input UpdateLeadInput) error
	ConstructRawLead(ctx context.Context, leadID int) (*model.RawLead, error)
	LeadIDsWithDueTasks(ctx context.Context, pipelineID, stageID int, from, to time.Time) ([]int, error)
	RunSalesbot(ctx context.Context, salesbotID int, leadIDs []int) error
}

// Client talks to the Kommo REST API (v4, with a v2 fallback for salesbots).
type Client struct {
	cfg    config.KommoConfig
	http   *resty.Client
	logger *zap.Logger
}

// NewClient builds a Kommo API client from config.
func NewClient(cfg config.KommoConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	http := resty.New().
		SetBaseURL(baseURL(cfg, "v4")).
		SetTimeout(requestTimeout).
		SetAuthToken(cfg.AccessToken).
		SetHeader("Accept", "application/json")

	return &Client{
		cfg:    cfg,
		http:   http,
		logger: logger,
	}
}

func baseURL(cfg config.KommoConfig, apiVersion string) string {
	url := strings.ReplaceAll(cfg.BaseURL, "{subdomain}", cfg.Subdomain)
	return strings.ReplaceAll(url, "v4", apiVersion)
}

// customField mirrors the Kommo custom_fields_values wire entry.
type customField struct {
	FieldID   int                `json:"field_id,omitempty"`
	FieldName string             `json:"field_name,omitempty"`
	Values    []customFieldValue `json:"values"`
}

type customFieldValue struct {
	Value any `json:"value"`
}

// Lead is the subset of a Kommo lead the attribution flow reads.
type Lead struct {
	ID                int           `json:"id"`
	CustomFieldValues []customField `json:"custom_fields_values"`
	Embedded          struct {
		Contacts []struct {
			ID int `json:"id"`
		} `json:"contacts"`
	} `json:"_embedded"`
}

// ContactData holds the PII fields read off the lead's primary contact.
type ContactData struct {
	Email string
	Phone string
}

// LatestIncomingLeadID returns the id of the newest lead in the unsorted
// inbox of the configured pipeline.
func (c *Client) LatestIncomingLeadID(ctx context.Context) (int, error) {
	var out struct {
		Embedded struct {
			Unsorted []struct {
				Embedded struct {
					Leads []struct {
						ID int `json:"id"`
					} `json:"leads"`
				} `json:"_embedded"`
			} `json:"unsorted"`
		} `json:"_embedded"`
	}

	endpoint := "/leads/unsorted"
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"limit":               "10",
			"page":                "1",
			"order[created_at]":   "desc",
			"filter[pipeline_id]": strconv.Itoa(c.cfg.TargetPipelineID),
		}).
		SetResult(&out).
		Get(endpoint)
	if err := c.check("GET", endpoint, resp, err); err != nil {
		return 0, err
	}

	if len(out.Embedded.Unsorted) == 0 || len(out.Embedded.Unsorted[0].Embedded.Leads) == 0 {
		return 0, &RequestError{Method: "GET", Endpoint: endpoint, Err: errors.New("no incoming leads")}
	}
	return out.Embedded.Unsorted[0].Embedded.Leads[0].ID, nil
}

// LeadByID fetches a lead with its linked contacts embedded.
func (c *Client) LeadByID(ctx context.Context, leadID int) (*Lead, error) {
	var lead Lead

	endpoint := fmt.Sprintf("/leads/%d", leadID)
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("with", "contacts").
		SetResult(&lead).
		Get(endpoint)
	if err := c.check("GET", endpoint, resp, err); err != nil {
		return nil, err
	}
	return &lead, nil
}

// ContactData reads email and phone off the contact's custom fields using the
// configured field IDs.
func (c *Client) ContactData(ctx context.Context, contactID int) (*ContactData, error) {
	var contact struct {
		CustomFieldValues []customField `json:"custom_fields_values"`
	}

	endpoint := fmt.Sprintf("/contacts/%d", contactID)
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&contact).
		Get(endpoint)
	if err := c.check("GET", endpoint, resp, err); err != nil {
		return nil, err
	}

	data := &ContactData{}
	for _, field := range contact.CustomFieldValues {
		value := firstString(field)
		switch field.FieldID {
		case c.cfg.FieldIDs["email"]:
			data.Email = value
		case c.cfg.FieldIDs["phone"]:
			data.Phone = value
		}
	}
	return data, nil
}

// UpdateLead writes the attribution outcome onto the lead's custom fields.
func (c *Client) UpdateLead(ctx context.Context, leadID int, input UpdateLeadInput) error {
	fields := []customField{
		{FieldID: c.cfg.FieldIDs["source"], Values: []customFieldValue{{Value: string(input.Source)}}},
		{FieldID: c.cfg.FieldIDs["gclid"], Values: []customFieldValue{{Value: input.GCLID}}},
		{FieldID: c.cfg.FieldIDs["gbraid"], Values: []customFieldValue{{Value: input.GBRAID}}},
		{FieldID: c.cfg.FieldIDs["page_path"], Values: []customFieldValue{{Value: input.LandingPagePath}}},
	}

	for _, flag := range input.Flags {
		id, ok := c.cfg.FieldIDs[flag]
		if !ok {
			c.logger.Warn("unknown custom field flag, skipping", zap.String("flag", flag))
			continue
		}
		fields = append(fields, customField{FieldID: id, Values: []customFieldValue{{Value: true}}})
	}

	endpoint := fmt.Sprintf("/leads/%d", leadID)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"custom_fields_values": fields}).
		Patch(endpoint)
	return c.check("PATCH", endpoint, resp, err)
}

// ConstructRawLead assembles the conversion upload input for a lead: its
// attribution custom fields, the primary contact's email/phone, and a
// deterministic order id.
func (c *Client) ConstructRawLead(ctx context.Context, leadID int) (*model.RawLead, error) {
	lead, err := c.LeadByID(ctx, leadID)
	if err != nil {
		return nil, err
	}

	raw := &model.RawLead{
		LeadID:  leadID,
		OrderID: fmt.Sprintf("order_%d", leadID),
	}

	for _, field := range lead.CustomFieldValues {
		value := firstString(field)
		switch field.FieldID {
		case c.cfg.FieldIDs["gclid"]:
			raw.GCLID = value
		case c.cfg.FieldIDs["gbraid"]:
			raw.GBRAID = value
		case c.cfg.FieldIDs["currency_code"]:
			raw.CurrencyCode = value
		case c.cfg.FieldIDs["conversion_value"]:
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				raw.ConversionValue = &v
			}
		case c.cfg.FieldIDs["conversion_time"]:
			if ts, err := strconv.ParseInt(value, 10, 64); err == nil {
				raw.ConversionTime = time.Unix(ts, 0).UTC()
			}
		}
	}

	if len(lead.Embedded.Contacts) > 0 {
		contact, err := c.ContactData(ctx, lead.Embedded.Contacts[0].ID)
		if err != nil {
			return nil, err
		}
		raw.Email = contact.Email
		raw.Phone = contact.Phone
	}

	return raw, nil
}

// LeadIDsWithDueTasks lists leads in the given pipeline stage whose closest
// task falls inside [from, to].
func (c *Client) LeadIDsWithDueTasks(ctx context.Context, pipelineID, stageID int, from, to time.Time) ([]int, error) {
	var out struct {
		Embedded struct {
			Leads []struct {
				ID int `json:"id"`
			} `json:"leads"`
		} `json:"_embedded"`
	}

	endpoint := "/leads"
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"filter[statuses][0][pipeline_id]": strconv.Itoa(pipelineID),
			"filter[statuses][0][status_id]":   strconv.Itoa(stageID),
			"filter[closest_task_at][from]":    strconv.FormatInt(from.Unix(), 10),
			"filter[closest_task_at][to]":      strconv.FormatInt(to.Unix(), 10),
		}).
		SetResult(&out).
		Get(endpoint)
	if err := c.check("GET", endpoint, resp, err); err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(out.Embedded.Leads))
	for _, lead := range out.Embedded.Leads {
		ids = append(ids, lead.ID)
	}
	return ids, nil
}

// salesbotEntityTypeLead denotes the lead entity type in Kommo.
const salesbotEntityTypeLead = 2

// RunSalesbot triggers the given salesbot once per lead. The salesbot
// endpoint only exists on the v2 API.
func (c *Client) RunSalesbot(ctx context.Context, salesbotID int, leadIDs []int) error {
	body := make([]map[string]any, 0, len(leadIDs))
	for _, id := range leadIDs {
		body = append(body, map[string]any{
			"bot_id":      salesbotID,
			"entity_id":   id,
			"entity_type": salesbotEntityTypeLead,
		})
	}

	endpoint := "/salesbot/run"
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(baseURL(c.cfg, "v2") + endpoint)
	return c.check("POST", endpoint, resp, err)
}

func (c *Client) check(method, endpoint string, resp *resty.Response, err error) error {
	if err != nil {
		c.logger.Error("kommo request failed",
			zap.String("method", method),
			zap.String("endpoint", endpoint),
			zap.Error(err))
		return &RequestError{Method: method, Endpoint: endpoint, Err: err}
	}
	if resp.IsError() {
		c.logger.Error("kommo request rejected",
			zap.String("method", method),
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode()))
		return &RequestError{
			Method:   method,
			Endpoint: endpoint,
			Err:      fmt.Errorf("%w: %d", errUnexpectedStatus, resp.StatusCode()),
		}
	}
	return nil
}

func firstString(field customField) string {
	if len(field.Values) == 0 {
		return ""
	}
	s, _ := field.Values[0].Value.(string)
	return s
}
