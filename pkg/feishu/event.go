package feishu

import "encoding/json"

// EventHeader is the schema 2.0 callback header.
type EventHeader struct {
	EventID    string `json:"event_id"`
	EventType  string `json:"event_type"`
	CreateTime string `json:"create_time"`
	Token      string `json:"token"`
	AppID      string `json:"app_id"`
	TenantKey  string `json:"tenant_key"`
}

// EventMessage is the message payload of an im.message.receive_v1 event.
// Content is the raw JSON content envelope, e.g. {"text":"hello"} for text
// messages.
type EventMessage struct {
	MessageID   string `json:"message_id"`
	RootID      string `json:"root_id"`
	ParentID    string `json:"parent_id"`
	ChatID      string `json:"chat_id"`
	ChatType    string `json:"chat_type"`
	MessageType string `json:"message_type"`
	Content     string `json:"content"`
	CreateTime  string `json:"create_time"`
}

// SenderID carries the identifiers Feishu knows the sender by.
type SenderID struct {
	OpenID  string `json:"open_id"`
	UserID  string `json:"user_id"`
	UnionID string `json:"union_id"`
}

// EventSender identifies who triggered a message event.
type EventSender struct {
	SenderID   SenderID `json:"sender_id"`
	SenderType string   `json:"sender_type"`
	TenantKey  string   `json:"tenant_key"`
}

// Event is one inbound callback event. Header is always populated; Message
// and Sender are typed views populated when the event body carries them.
// Fields outside the known shapes are reachable through Field and Body.
// Events are constructed fresh per request and not retained by the SDK.
type Event struct {
	Header  EventHeader
	Message *EventMessage
	Sender  *EventSender

	body map[string]any
}

type eventEnvelope struct {
	Schema string          `json:"schema"`
	Header *EventHeader    `json:"header"`
	Event  json.RawMessage `json:"event"`
}

// ParseEvent validates and normalizes a raw callback payload. The payload
// must carry non-null top-level "header" and "event" keys; anything else
// fails with *InvalidEventError. No schema validation happens beyond that —
// fields absent from the payload are simply zero or missing at the point of
// access.
func ParseEvent(data []byte) (*Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &InvalidEventError{Reason: "request body is not a JSON object"}
	}
	if env.Header == nil || len(env.Event) == 0 || string(env.Event) == "null" {
		return nil, &InvalidEventError{Reason: "request is not a callback event (v2)"}
	}

	var body map[string]any
	if err := json.Unmarshal(env.Event, &body); err != nil {
		return nil, &InvalidEventError{Reason: "event body is not a JSON object"}
	}

	event := &Event{
		Header: *env.Header,
		body:   body,
	}

	// Typed views are best effort; the raw body stays authoritative.
	var detail struct {
		Message *EventMessage `json:"message"`
		Sender  *EventSender  `json:"sender"`
	}
	if err := json.Unmarshal(env.Event, &detail); err == nil {
		event.Message = detail.Message
		event.Sender = detail.Sender
	}

	return event, nil
}

// Body returns the decoded event body. Callers must treat it as read-only.
func (e *Event) Body() map[string]any {
	return e.body
}

// Field walks the event body along the given key path and returns the value
// found there. The second return is false when any segment is absent or not
// an object.
func (e *Event) Field(path ...string) (any, bool) {
	var cur any = e.body
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// TextContent decodes the {"text":...} content envelope of a text message.
// The second return is false for non-text messages or undecodable content.
func (e *Event) TextContent() (string, bool) {
	if e.Message == nil || e.Message.MessageType != MsgTypeText {
		return "", false
	}
	var content struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(e.Message.Content), &content); err != nil {
		return "", false
	}
	return content.Text, true
}
