// Package feishu implements a client and webhook SDK for Feishu (Lark) bots.
//
// The package covers the two halves of a bot integration:
//
//   - Outbound: Client exchanges app credentials for a tenant access token
//     and sends or updates messages through the Feishu open API.
//   - Inbound: WebhookHandler receives event callbacks (schema 2.0), answers
//     URL verification challenges, and dispatches events to registered
//     handlers on background goroutines so the HTTP response is never
//     blocked on handler execution.
//
// # Usage
//
//	client, err := feishu.FromEnv("https://open.feishu.cn")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	hook := feishu.NewWebhookHandler()
//	hook.OnMessage(feishu.MsgTypeText, func(event *feishu.Event) {
//	    text, _ := event.TextContent()
//	    client.SendText(context.Background(), event.Sender.SenderID.OpenID, text)
//	})
//
//	e := echo.New()
//	hook.Attach(e)
//	e.Start(":8080")
//
// # Thread Safety
//
// Client is safe for concurrent use. Handler registration on WebhookHandler
// is not synchronized against dispatch; register all handlers before serving
// traffic. Handlers may be invoked concurrently from multiple goroutines and
// no ordering is guaranteed between events.
package feishu

// Feishu open API paths.
const (
	tenantAccessTokenPath = "/open-apis/auth/v3/tenant_access_token/internal"
	messagePath           = "/open-apis/im/v1/messages"
)

// Receive ID types accepted by the send API.
const (
	ReceiveIDTypeOpenID  = "open_id"
	ReceiveIDTypeUserID  = "user_id"
	ReceiveIDTypeUnionID = "union_id"
	ReceiveIDTypeEmail   = "email"
	ReceiveIDTypeChatID  = "chat_id"
)

// Message types.
const (
	MsgTypeText        = "text"
	MsgTypeInteractive = "interactive"
	MsgTypePost        = "post"
	MsgTypeImage       = "image"
)

// EventTypeMessageReceive is the schema 2.0 event type for inbound IM messages.
const EventTypeMessageReceive = "im.message.receive_v1"

// DefaultWebhookEndpoint is the path the webhook handler binds to unless
// overridden with WithEndpoint.
const DefaultWebhookEndpoint = "/webhook"

// Default environment variable names for FromEnv.
const (
	DefaultAppIDEnv     = "APP_ID"
	DefaultAppSecretEnv = "APP_SECRET"
)
