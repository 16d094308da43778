package feishu

import (
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jonboulle/clockwork"
)

// Option configures a Client.
type Option func(*Options)

// Options holds client construction settings. Retries are disabled by
// default: the client makes no implicit retry on failure and callers own
// their retry policy.
type Options struct {
	httpClient       *resty.Client
	timeout          time.Duration
	retryCount       int
	retryWaitTime    time.Duration
	retryMaxWaitTime time.Duration
	tokenCache       bool
	clock            clockwork.Clock
	appIDEnv         string
	appSecretEnv     string
}

func newClientOptions() *Options {
	return &Options{
		timeout:          10 * time.Second,
		retryCount:       0,
		retryWaitTime:    500 * time.Millisecond,
		retryMaxWaitTime: 3 * time.Second,
		clock:            clockwork.NewRealClock(),
		appIDEnv:         DefaultAppIDEnv,
		appSecretEnv:     DefaultAppSecretEnv,
	}
}

// WithHTTPClient replaces the underlying resty client entirely. Timeout and
// retry options are ignored when a client is supplied.
func WithHTTPClient(hc *resty.Client) Option {
	return func(o *Options) {
		if hc != nil {
			o.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout for outbound calls.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithRetryCount enables transport-level retries. Zero keeps retries off.
func WithRetryCount(count int) Option {
	return func(o *Options) {
		if count >= 0 {
			o.retryCount = count
		}
	}
}

// WithRetryWaitTime sets the initial wait between retries.
func WithRetryWaitTime(waitTime time.Duration) Option {
	return func(o *Options) {
		if waitTime >= 100*time.Millisecond {
			o.retryWaitTime = waitTime
		}
	}
}

// WithRetryMaxWaitTime caps the wait between retries.
func WithRetryMaxWaitTime(maxWaitTime time.Duration) Option {
	return func(o *Options) {
		if maxWaitTime >= 100*time.Millisecond {
			o.retryMaxWaitTime = maxWaitTime
		}
	}
}

// WithTokenCache enables expiry-aware caching of the tenant access token.
// The token is reused until fewer than 60 seconds of its advertised lifetime
// remain. Without this option every outbound call fetches a fresh token.
func WithTokenCache() Option {
	return func(o *Options) {
		o.tokenCache = true
	}
}

// WithClock replaces the time source used for token expiry checks.
func WithClock(clock clockwork.Clock) Option {
	return func(o *Options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithEnvVars overrides the environment variable names FromEnv reads the
// app credentials from.
func WithEnvVars(appIDEnv, appSecretEnv string) Option {
	return func(o *Options) {
		if appIDEnv != "" {
			o.appIDEnv = appIDEnv
		}
		if appSecretEnv != "" {
			o.appSecretEnv = appSecretEnv
		}
	}
}
