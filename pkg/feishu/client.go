package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jonboulle/clockwork"
	"github.com/keepmind9/feishubot/internal/logger"
	"github.com/sirupsen/logrus"
)

// tokenExpiryMargin is how much remaining lifetime a cached token must have
// to be reused without re-authorizing.
const tokenExpiryMargin = 60 * time.Second

// Sender is the messaging surface of the SDK. Client is the provided
// implementation; tests and alternate transports can substitute their own.
type Sender interface {
	Authorize(ctx context.Context) error
	Send(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error)
	SendText(ctx context.Context, openID, text string) (string, error)
	SendCard(ctx context.Context, openID, card string) (string, error)
	UpdateCard(ctx context.Context, messageID, card string) error
}

// Client calls the Feishu messaging API. Credentials are immutable after
// construction. By default every outbound call fetches a fresh tenant access
// token first; WithTokenCache enables expiry-aware reuse instead.
type Client struct {
	appID     string
	appSecret string
	host      string

	http       *resty.Client
	clock      clockwork.Clock
	tokenCache bool

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

var _ Sender = (*Client)(nil)

// NewClient creates a client for the given app credentials and API host
// (e.g. "https://open.feishu.cn").
func NewClient(appID, appSecret, host string, opts ...Option) *Client {
	options := newClientOptions()
	for _, opt := range opts {
		opt(options)
	}

	hc := options.httpClient
	if hc == nil {
		hc = resty.New().
			SetTimeout(options.timeout).
			SetHeader("Content-Type", "application/json")
		if options.retryCount > 0 {
			hc.SetRetryCount(options.retryCount).
				SetRetryWaitTime(options.retryWaitTime).
				SetRetryMaxWaitTime(options.retryMaxWaitTime)
		}
	}

	return &Client{
		appID:      appID,
		appSecret:  appSecret,
		host:       host,
		http:       hc,
		clock:      options.clock,
		tokenCache: options.tokenCache,
	}
}

// FromEnv creates a client reading the app credentials from environment
// variables (APP_ID and APP_SECRET unless overridden with WithEnvVars).
func FromEnv(host string, opts ...Option) (*Client, error) {
	options := newClientOptions()
	for _, opt := range opts {
		opt(options)
	}

	appID := os.Getenv(options.appIDEnv)
	appSecret := os.Getenv(options.appSecretEnv)

	var missing []string
	if appID == "" {
		missing = append(missing, options.appIDEnv)
	}
	if appSecret == "" {
		missing = append(missing, options.appSecretEnv)
	}
	if len(missing) > 0 {
		return nil, &ConfigError{Missing: missing}
	}

	return NewClient(appID, appSecret, host, opts...), nil
}

// TenantAccessToken returns the token obtained by the most recent authorize.
func (c *Client) TenantAccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Close releases idle connections held by the underlying HTTP client.
func (c *Client) Close() {
	c.http.GetClient().CloseIdleConnections()
}

// apiResponse is the envelope every Feishu API response carries.
type apiResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type tokenResponse struct {
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int    `json:"expire"`
}

type sendResponse struct {
	Data struct {
		MessageID string `json:"message_id"`
	} `json:"data"`
}

// Authorize fetches a tenant access token and stores it on the client.
func (c *Client) Authorize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.ensureTokenLocked(ctx)
	return err
}

func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureTokenLocked(ctx)
}

func (c *Client) ensureTokenLocked(ctx context.Context) (string, error) {
	if c.tokenCache && c.token != "" && c.clock.Now().Add(tokenExpiryMargin).Before(c.tokenExpiry) {
		return c.token, nil
	}

	var body tokenResponse
	reqBody := map[string]string{"app_id": c.appID, "app_secret": c.appSecret}
	if err := c.do(ctx, http.MethodPost, c.host+tenantAccessTokenPath, "", reqBody, &body); err != nil {
		return "", err
	}

	c.token = body.TenantAccessToken
	c.tokenExpiry = c.clock.Now().Add(time.Duration(body.Expire) * time.Second)

	logger.WithFields(logrus.Fields{
		"app_id": maskAppID(c.appID),
		"expire": body.Expire,
	}).Debug("tenant-access-token-refreshed")

	return c.token, nil
}

// Send authorizes, then sends a message and returns the created message ID.
// Content must be the JSON content envelope the Feishu API expects for the
// given message type.
func (c *Client) Send(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return "", err
	}

	reqBody := map[string]string{
		"receive_id": receiveID,
		"content":    content,
		"msg_type":   msgType,
	}
	url := fmt.Sprintf("%s%s?receive_id_type=%s", c.host, messagePath, receiveIDType)

	var out sendResponse
	if err := c.do(ctx, http.MethodPost, url, token, reqBody, &out); err != nil {
		return "", err
	}
	return out.Data.MessageID, nil
}

// SendText sends a plain text message to a user by open_id. The text is
// wrapped into the {"text":...} content envelope.
func (c *Client) SendText(ctx context.Context, openID, text string) (string, error) {
	content, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", err
	}
	return c.Send(ctx, ReceiveIDTypeOpenID, openID, MsgTypeText, string(content))
}

// SendCard sends an interactive card to a user by open_id. Card must be the
// card's JSON payload.
func (c *Client) SendCard(ctx context.Context, openID, card string) (string, error) {
	return c.Send(ctx, ReceiveIDTypeOpenID, openID, MsgTypeInteractive, card)
}

// UpdateCard authorizes, then patches a previously sent message card.
func (c *Client) UpdateCard(ctx context.Context, messageID, card string) error {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s%s/%s", c.host, messagePath, messageID)
	reqBody := map[string]string{"content": card}
	return c.do(ctx, http.MethodPatch, url, token, reqBody, nil)
}

// do executes one API call and applies the shared error mapping: request
// failure or non-200 status maps to TransportError, a non-zero body code maps
// to APIError. On success the body is decoded into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, url, token string, reqBody, out any) error {
	req := c.http.R().SetContext(ctx)
	if token != "" {
		req.SetAuthToken(token)
	}
	if reqBody != nil {
		req.SetBody(reqBody)
	}

	resp, err := req.Execute(method, url)
	if err != nil {
		return &TransportError{Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return &TransportError{StatusCode: resp.StatusCode(), Status: resp.Status()}
	}

	var env apiResponse
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return &TransportError{Err: fmt.Errorf("decoding response body: %w", err)}
	}
	if env.Code != 0 {
		logger.WithFields(logrus.Fields{
			"code": env.Code,
			"msg":  env.Msg,
			"url":  url,
		}).Error("feishu-api-error")
		return &APIError{Code: env.Code, Msg: env.Msg}
	}

	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return &TransportError{Err: fmt.Errorf("decoding response body: %w", err)}
		}
	}
	return nil
}

// maskAppID masks sensitive app ID information for logging.
func maskAppID(appID string) string {
	if len(appID) <= 8 {
		return "***"
	}
	return appID[:4] + "***" + appID[len(appID)-4:]
}
