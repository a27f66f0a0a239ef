// Package rest provides the HTTP surface for webhook callbacks.
package rest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"agent-relay/domain"
	"agent-relay/metrics"
)

// Signature and bot identification headers sent by the messaging platform.
const (
	headerSignature = "X-WORKS-Signature"
	headerBotID     = "X-WORKS-BotId"
)

// Relay handles one inbound user text message end to end.
type Relay interface {
	HandleTextMessage(ctx context.Context, userID, text string)
}

// HandlerConfig configures the webhook handler.
type HandlerConfig struct {
	// BotSecret keys the callback signature.
	BotSecret string
	// BotID is the expected bot identifier; a mismatch is logged.
	BotID string
	// SignatureMode is one of strict, warn or skip.
	SignatureMode string
}

// Handler receives platform webhook callbacks and dispatches text messages
// to the relay. The platform retries on non-2xx, so the handler acknowledges
// every structurally valid callback.
type Handler struct {
	relay  Relay
	cfg    HandlerConfig
	logger *slog.Logger
}

// NewHandler creates a new webhook handler.
func NewHandler(relay Relay, cfg HandlerConfig, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SignatureMode == "" {
		cfg.SignatureMode = SignatureModeStrict
	}
	return &Handler{relay: relay, cfg: cfg, logger: logger}
}

// Register registers the handler's routes.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/", h.Health)
	e.POST("/callback", h.Callback)
}

// Health returns service liveness.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Callback processes one webhook callback from the messaging platform.
func (h *Handler) Callback(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable body"})
	}

	if !h.checkSignature(c, body) {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
	}

	if botID := c.Request().Header.Get(headerBotID); botID != "" && h.cfg.BotID != "" && botID != h.cfg.BotID {
		h.logger.Warn("callback for unexpected bot", "bot_id", botID)
	}

	var event domain.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Warn("malformed callback payload", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed payload"})
	}

	if event.IsTextMessage() {
		h.relay.HandleTextMessage(c.Request().Context(), event.Source.UserID, event.Content.Text)
	} else {
		h.logger.Debug("ignoring callback event", "type", event.Type, "content_type", event.Content.Type)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// checkSignature applies the configured verification mode. Only strict mode
// can reject a callback.
func (h *Handler) checkSignature(c echo.Context, body []byte) bool {
	if h.cfg.SignatureMode == SignatureModeSkip {
		metrics.RecordSignature("skipped")
		return true
	}

	if verifySignature(h.cfg.BotSecret, body, c.Request().Header.Get(headerSignature)) {
		metrics.RecordSignature("valid")
		return true
	}

	if h.cfg.SignatureMode == SignatureModeWarn {
		metrics.RecordSignature("warned")
		h.logger.Warn("callback signature verification failed, processing anyway")
		return true
	}

	metrics.RecordSignature("rejected")
	h.logger.Warn("callback signature verification failed, rejecting")
	return false
}
