package handler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/clickwise/attributor/internal/app/model"
	"github.com/clickwise/attributor/internal/app/repository"
	"github.com/clickwise/attributor/internal/app/service"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// WebhookDeps groups dependencies required by the webhook handlers.
type WebhookDeps struct {
	Logger       *zap.Logger
	Orchestrator *service.Orchestrator
	Stats        repository.StatsRepository
}

// WebhookHandler implements the inbound endpoints: ad-network click
// callbacks, CRM lead webhooks and the scheduled salesbot trigger.
type WebhookHandler struct {
	logger       *zap.Logger
	orchestrator *service.Orchestrator
	stats        repository.StatsRepository
}

// NewWebhookHandler creates a webhook handler with the provided dependencies.
func NewWebhookHandler(deps WebhookDeps) *WebhookHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{
		logger:       logger,
		orchestrator: deps.Orchestrator,
		stats:        deps.Stats,
	}
}

// Register wires webhook routes onto the provided router.
func (h *WebhookHandler) Register(router fiber.Router) {
	router.Get("/health", h.Health)
	router.Post("/outbound-click-logs", h.LogClick)
	router.Post("/update-lead", h.UpdateLead)
	router.Post("/run-salesbots", h.RunSalesbots)
	router.Get("/stats", h.Stats)
}

func respond(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"statusCode": status,
		"message":    message,
	})
}

// Health is a simple liveness endpoint.
func (h *WebhookHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "attributor",
		"status":  "ok",
		"detail":  h.orchestrator.Describe(),
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// LogClick handles POST /outbound-click-logs
func (h *WebhookHandler) LogClick(c *fiber.Ctx) error {
	var submission service.ClickSubmission
	if err := c.BodyParser(&submission); err != nil {
		return respond(c, fiber.StatusBadRequest, "Invalid request body")
	}

	err := h.orchestrator.LogClick(h.userContext(c), submission)
	if err != nil {
		if errors.Is(err, service.ErrMissingClickIdentifier) {
			return respond(c, fiber.StatusBadRequest, "Missing required parameter gclid or gbraid")
		}
		h.logger.Error("failed to persist click log", zap.Error(err))
		return respond(c, fiber.StatusInternalServerError, "Something went wrong while persisting the click log")
	}

	return respond(c, fiber.StatusOK, "Click log persisted successfully")
}

// UpdateLeadRequest is the body of the CRM lead webhook. Every field is
// optional: an empty body attributes the newest incoming lead with no
// conversion upload.
type UpdateLeadRequest struct {
	LeadID           int      `json:"lead_id,omitempty"`
	ConversionType   string   `json:"conversion_type,omitempty"`
	CustomFieldFlags []string `json:"custom_field_flags,omitempty"`
}

// UpdateLead handles POST /update-lead
func (h *WebhookHandler) UpdateLead(c *fiber.Ctx) error {
	var req UpdateLeadRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return respond(c, fiber.StatusBadRequest, "Invalid request body")
		}
	}

	event := model.LeadEvent{
		LeadID:           req.LeadID,
		CustomFieldFlags: req.CustomFieldFlags,
		ConversionType:   model.ParseConversionType(req.ConversionType),
	}

	result, err := h.orchestrator.ProcessLead(h.userContext(c), event)
	if err != nil {
		h.logger.Error("lead processing failed", zap.Int("lead_id", req.LeadID), zap.Error(err))
		return respond(c, fiber.StatusInternalServerError, "Lead could not be updated")
	}

	if result.Source == model.SourceCPC {
		return respond(c, fiber.StatusOK, "Lead updated with matched click")
	}
	return respond(c, fiber.StatusOK, "Lead updated with organic source")
}

// RunSalesbots handles POST /run-salesbots
func (h *WebhookHandler) RunSalesbots(c *fiber.Ctx) error {
	if err := h.orchestrator.RunSalesbots(h.userContext(c)); err != nil {
		h.logger.Error("salesbot run failed", zap.Error(err))
		return respond(c, fiber.StatusInternalServerError, "Salesbots could not be triggered")
	}
	return respond(c, fiber.StatusOK, "Salesbots triggered")
}

// Stats handles GET /stats
func (h *WebhookHandler) Stats(c *fiber.Ctx) error {
	hours := 24
	if raw := c.Query("since_hours"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			hours = parsed
		}
	}

	stats, err := h.stats.AttributionCounts(h.userContext(c),
		time.Now().UTC().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		h.logger.Error("failed to aggregate attribution stats", zap.Error(err))
		return respond(c, fiber.StatusInternalServerError, "Stats unavailable")
	}

	return c.JSON(stats)
}

func (h *WebhookHandler) userContext(c *fiber.Ctx) context.Context {
	if ctx := c.UserContext(); ctx != nil {
		return ctx
	}
	return context.Background()
}
