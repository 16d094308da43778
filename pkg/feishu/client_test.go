package feishu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordedCall captures one request the fake API saw.
type recordedCall struct {
	Method        string
	Path          string
	ReceiveIDType string
	AuthHeader    string
	Body          map[string]any
}

// fakeFeishu is an httptest-backed stand-in for the Feishu open API. Tokens
// are numbered per authorize call (t-1, t-2, ...) so tests can tie a bearer
// header to the authorize call that produced it.
type fakeFeishu struct {
	srv *httptest.Server

	mu        sync.Mutex
	calls     []recordedCall
	authCount int

	authCode int
	authMsg  string
	sendCode int
	sendMsg  string
	httpErr  int // non-zero: answer every request with this HTTP status
}

func newFakeFeishu(t *testing.T) *fakeFeishu {
	t.Helper()
	f := &fakeFeishu{}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeFeishu) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.calls = append(f.calls, recordedCall{
		Method:        r.Method,
		Path:          r.URL.Path,
		ReceiveIDType: r.URL.Query().Get("receive_id_type"),
		AuthHeader:    r.Header.Get("Authorization"),
		Body:          body,
	})

	if f.httpErr != 0 {
		w.WriteHeader(f.httpErr)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == tenantAccessTokenPath:
		if f.authCode != 0 {
			fmt.Fprintf(w, `{"code":%d,"msg":%q}`, f.authCode, f.authMsg)
			return
		}
		f.authCount++
		fmt.Fprintf(w, `{"code":0,"msg":"ok","tenant_access_token":"t-%d","expire":7200}`, f.authCount)
	case r.URL.Path == messagePath:
		if f.sendCode != 0 {
			fmt.Fprintf(w, `{"code":%d,"msg":%q}`, f.sendCode, f.sendMsg)
			return
		}
		fmt.Fprint(w, `{"code":0,"msg":"ok","data":{"message_id":"om_123"}}`)
	case strings.HasPrefix(r.URL.Path, messagePath+"/"):
		fmt.Fprint(w, `{"code":0,"msg":"ok"}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeFeishu) recorded() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...)
}

func TestClient_SendAuthorizesFirst(t *testing.T) {
	api := newFakeFeishu(t)
	client := NewClient("test_app_id", "test_app_secret", api.srv.URL)

	messageID, err := client.Send(context.Background(), ReceiveIDTypeOpenID, "ou_abc", MsgTypeText, `{"text":"hello"}`)
	require.NoError(t, err)
	assert.Equal(t, "om_123", messageID)

	calls := api.recorded()
	require.Len(t, calls, 2)

	assert.Equal(t, tenantAccessTokenPath, calls[0].Path)
	assert.Equal(t, "test_app_id", calls[0].Body["app_id"])
	assert.Equal(t, "test_app_secret", calls[0].Body["app_secret"])

	assert.Equal(t, messagePath, calls[1].Path)
	assert.Equal(t, "Bearer t-1", calls[1].AuthHeader)
	assert.Equal(t, "open_id", calls[1].ReceiveIDType)
	assert.Equal(t, "ou_abc", calls[1].Body["receive_id"])
	assert.Equal(t, `{"text":"hello"}`, calls[1].Body["content"])
	assert.Equal(t, "text", calls[1].Body["msg_type"])
}

func TestClient_EverySendReauthorizes(t *testing.T) {
	api := newFakeFeishu(t)
	client := NewClient("test_app_id", "test_app_secret", api.srv.URL)

	_, err := client.Send(context.Background(), ReceiveIDTypeOpenID, "ou_abc", MsgTypeText, `{"text":"one"}`)
	require.NoError(t, err)
	_, err = client.Send(context.Background(), ReceiveIDTypeOpenID, "ou_abc", MsgTypeText, `{"text":"two"}`)
	require.NoError(t, err)

	calls := api.recorded()
	require.Len(t, calls, 4)
	assert.Equal(t, tenantAccessTokenPath, calls[0].Path)
	assert.Equal(t, tenantAccessTokenPath, calls[2].Path)
	assert.Equal(t, "Bearer t-2", calls[3].AuthHeader)
}

func TestClient_APIErrorPassthrough(t *testing.T) {
	api := newFakeFeishu(t)
	api.sendCode = 99991
	api.sendMsg = "invalid app_id"
	client := NewClient("test_app_id", "test_app_secret", api.srv.URL)

	_, err := client.Send(context.Background(), ReceiveIDTypeOpenID, "ou_abc", MsgTypeText, `{"text":"hello"}`)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 99991, apiErr.Code)
	assert.Equal(t, "invalid app_id", apiErr.Msg)
	assert.Equal(t, "99991:invalid app_id", apiErr.Error())
}

func TestClient_AuthorizeAPIErrorStopsSend(t *testing.T) {
	api := newFakeFeishu(t)
	api.authCode = 10003
	api.authMsg = "invalid app_secret"
	client := NewClient("test_app_id", "bad_secret", api.srv.URL)

	_, err := client.Send(context.Background(), ReceiveIDTypeOpenID, "ou_abc", MsgTypeText, `{"text":"hello"}`)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 10003, apiErr.Code)

	// the message endpoint was never reached
	for _, call := range api.recorded() {
		assert.Equal(t, tenantAccessTokenPath, call.Path)
	}
}

func TestClient_TransportErrorOnBadStatus(t *testing.T) {
	api := newFakeFeishu(t)
	api.httpErr = http.StatusInternalServerError
	client := NewClient("test_app_id", "test_app_secret", api.srv.URL)

	err := client.Authorize(context.Background())
	require.Error(t, err)

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.StatusInternalServerError, transportErr.StatusCode)
}

func TestClient_TransportErrorOnConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	srv.Close()

	client := NewClient("test_app_id", "test_app_secret", srv.URL)
	err := client.Authorize(context.Background())
	require.Error(t, err)

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Error(t, transportErr.Err)
	assert.Error(t, errors.Unwrap(transportErr))
}

func TestClient_SendText(t *testing.T) {
	api := newFakeFeishu(t)
	client := NewClient("test_app_id", "test_app_secret", api.srv.URL)

	messageID, err := client.SendText(context.Background(), "ou_abc", "hello world")
	require.NoError(t, err)
	assert.Equal(t, "om_123", messageID)

	calls := api.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, "open_id", calls[1].ReceiveIDType)
	assert.Equal(t, "text", calls[1].Body["msg_type"])
	assert.JSONEq(t, `{"text":"hello world"}`, calls[1].Body["content"].(string))
}

func TestClient_SendCard(t *testing.T) {
	api := newFakeFeishu(t)
	client := NewClient("test_app_id", "test_app_secret", api.srv.URL)

	card := `{"config":{"wide_screen_mode":true},"elements":[]}`
	messageID, err := client.SendCard(context.Background(), "ou_abc", card)
	require.NoError(t, err)
	assert.Equal(t, "om_123", messageID)

	calls := api.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, "interactive", calls[1].Body["msg_type"])
	assert.Equal(t, card, calls[1].Body["content"])
}

func TestClient_UpdateCard(t *testing.T) {
	api := newFakeFeishu(t)
	client := NewClient("test_app_id", "test_app_secret", api.srv.URL)

	card := `{"elements":[{"tag":"div"}]}`
	err := client.UpdateCard(context.Background(), "om_456", card)
	require.NoError(t, err)

	calls := api.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, http.MethodPatch, calls[1].Method)
	assert.Equal(t, messagePath+"/om_456", calls[1].Path)
	assert.Equal(t, "Bearer t-1", calls[1].AuthHeader)
	assert.Equal(t, card, calls[1].Body["content"])
}

func TestClient_TenantAccessToken(t *testing.T) {
	api := newFakeFeishu(t)
	client := NewClient("test_app_id", "test_app_secret", api.srv.URL)

	assert.Empty(t, client.TenantAccessToken())
	require.NoError(t, client.Authorize(context.Background()))
	assert.Equal(t, "t-1", client.TenantAccessToken())
}

func TestClient_TokenCache(t *testing.T) {
	api := newFakeFeishu(t)
	clock := clockwork.NewFakeClock()
	client := NewClient("test_app_id", "test_app_secret", api.srv.URL,
		WithTokenCache(), WithClock(clock))

	_, err := client.SendText(context.Background(), "ou_abc", "one")
	require.NoError(t, err)
	_, err = client.SendText(context.Background(), "ou_abc", "two")
	require.NoError(t, err)

	authCalls := 0
	for _, call := range api.recorded() {
		if call.Path == tenantAccessTokenPath {
			authCalls++
		}
	}
	assert.Equal(t, 1, authCalls, "cached token should be reused within its lifetime")

	// past the advertised lifetime the client must re-authorize
	clock.Advance(7200 * time.Second)
	_, err = client.SendText(context.Background(), "ou_abc", "three")
	require.NoError(t, err)

	authCalls = 0
	for _, call := range api.recorded() {
		if call.Path == tenantAccessTokenPath {
			authCalls++
		}
	}
	assert.Equal(t, 2, authCalls)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("APP_ID", "env_app_id")
	t.Setenv("APP_SECRET", "env_app_secret")

	client, err := FromEnv("https://open.feishu.cn")
	require.NoError(t, err)
	assert.Equal(t, "env_app_id", client.appID)
	assert.Equal(t, "env_app_secret", client.appSecret)
}

func TestFromEnv_CustomVars(t *testing.T) {
	t.Setenv("MY_APP_ID", "custom_id")
	t.Setenv("MY_APP_SECRET", "custom_secret")

	client, err := FromEnv("https://open.feishu.cn", WithEnvVars("MY_APP_ID", "MY_APP_SECRET"))
	require.NoError(t, err)
	assert.Equal(t, "custom_id", client.appID)
	assert.Equal(t, "custom_secret", client.appSecret)
}

func TestFromEnv_MissingVars(t *testing.T) {
	t.Setenv("APP_ID", "")
	t.Setenv("APP_SECRET", "env_app_secret")

	_, err := FromEnv("https://open.feishu.cn")
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{"APP_ID"}, cfgErr.Missing)
	assert.Contains(t, cfgErr.Error(), "APP_ID")
}

func TestMaskAppID(t *testing.T) {
	tests := []struct {
		name     string
		appID    string
		expected string
	}{
		{
			name:     "normal app id",
			appID:    "cli_1234567890abcdef",
			expected: "cli_***cdef",
		},
		{
			name:     "short app id",
			appID:    "12345678",
			expected: "***",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, maskAppID(tt.appID))
		})
	}
}

func TestClient_Close(t *testing.T) {
	client := NewClient("test_app_id", "test_app_secret", "https://open.feishu.cn")
	assert.NotPanics(t, client.Close)
}
