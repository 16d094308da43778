package feishu

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/keepmind9/feishubot/internal/logger"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// Handler processes one inbound event. Handlers run on background goroutines
// after the webhook response has been sent; panics are recovered, logged and
// discarded, and never reach the HTTP layer.
type Handler func(*Event)

// WebhookOption configures a WebhookHandler.
type WebhookOption func(*WebhookHandler)

// WithEndpoint overrides the path Attach registers the webhook on.
func WithEndpoint(endpoint string) WebhookOption {
	return func(h *WebhookHandler) {
		if endpoint != "" {
			h.endpoint = endpoint
		}
	}
}

// WebhookHandler receives Feishu callback requests, answers URL verification
// challenges, and routes events to registered handlers. It keeps two
// independent registries: one keyed by message type for im.message.receive_v1
// events, one keyed by event type for everything else. The last registration
// for a key wins.
//
// Registration is not synchronized against dispatch; register all handlers
// before serving traffic.
type WebhookHandler struct {
	endpoint        string
	messageHandlers map[string]Handler
	eventHandlers   map[string]Handler
}

// NewWebhookHandler creates a webhook handler bound to /webhook unless
// WithEndpoint says otherwise.
func NewWebhookHandler(opts ...WebhookOption) *WebhookHandler {
	h := &WebhookHandler{
		endpoint:        DefaultWebhookEndpoint,
		messageHandlers: make(map[string]Handler),
		eventHandlers:   make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Endpoint returns the path Attach registers the webhook on.
func (h *WebhookHandler) Endpoint() string {
	return h.endpoint
}

// OnMessage registers a handler for im.message.receive_v1 events carrying the
// given message type (e.g. MsgTypeText). A later registration for the same
// type replaces the earlier one.
func (h *WebhookHandler) OnMessage(messageType string, fn Handler) {
	h.messageHandlers[messageType] = fn
}

// OnEvent registers a handler for the given non-message event type. A later
// registration for the same type replaces the earlier one.
func (h *WebhookHandler) OnEvent(eventType string, fn Handler) {
	h.eventHandlers[eventType] = fn
}

// Attach registers the webhook route on an echo instance.
func (h *WebhookHandler) Attach(e *echo.Echo) {
	e.POST(h.endpoint, h.Handle)
}

// HTTPHandler wraps the webhook in a standalone http.Handler for use with a
// standard mux.
func (h *WebhookHandler) HTTPHandler() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	h.Attach(e)
	return e
}

// Handle is the echo handler for callback requests. URL verification is
// answered inline; events are acknowledged with 200 immediately and processed
// on a background goroutine, so the response never waits on handler
// completion. Unroutable events are acknowledged and dropped.
func (h *WebhookHandler) Handle(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid event"})
	}

	var probe struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
	}
	if err := json.Unmarshal(body, &probe); err == nil && probe.Type == "url_verification" {
		return c.JSON(http.StatusOK, echo.Map{"challenge": probe.Challenge})
	}

	event, err := ParseEvent(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid event"})
	}

	if event.Header.EventType == EventTypeMessageReceive {
		h.spawn(event, h.processMessage)
	} else if _, ok := h.eventHandlers[event.Header.EventType]; ok {
		h.spawn(event, h.processEvent)
	}

	return c.NoContent(http.StatusOK)
}

// spawn runs one dispatch on its own goroutine behind a recover boundary.
// The HTTP response has already been decided; whatever the handler does stays
// in the logs.
func (h *WebhookHandler) spawn(event *Event, process func(*Event)) {
	dispatchID := uuid.NewString()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(logrus.Fields{
					"dispatch_id": dispatchID,
					"event_id":    event.Header.EventID,
					"event_type":  event.Header.EventType,
					"panic":       r,
				}).Error("webhook-handler-panicked")
			}
		}()

		logger.WithFields(logrus.Fields{
			"dispatch_id": dispatchID,
			"event_id":    event.Header.EventID,
			"event_type":  event.Header.EventType,
		}).Debug("dispatching-webhook-event")

		process(event)
	}()
}

func (h *WebhookHandler) processMessage(event *Event) {
	if event.Message == nil {
		logger.WithField("event_id", event.Header.EventID).Warn("message-event-without-message-body")
		return
	}
	if fn, ok := h.messageHandlers[event.Message.MessageType]; ok {
		fn(event)
	}
}

func (h *WebhookHandler) processEvent(event *Event) {
	if fn, ok := h.eventHandlers[event.Header.EventType]; ok {
		fn(event)
	}
}
