package feishu

import (
	"fmt"
	"strings"
)

// APIError is returned when an outbound call completes over HTTP but the
// Feishu API answers with a non-zero code in its JSON body. Code and Msg are
// preserved verbatim from the response.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d:%s", e.Code, e.Msg)
}

// TransportError is returned when an outbound call does not complete with a
// success status. Either the request itself failed (Err is set) or the server
// answered with a non-200 status (StatusCode/Status are set).
type TransportError struct {
	StatusCode int
	Status     string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("feishu: request failed: %v", e.Err)
	}
	return fmt.Sprintf("feishu: unexpected status %s", e.Status)
}

func (e *TransportError) Unwrap() error { return e.Err }

// InvalidEventError is returned by ParseEvent when an inbound payload is not
// a schema 2.0 callback event. The webhook handler converts it to an HTTP 400
// response; it never propagates past the endpoint.
type InvalidEventError struct {
	Reason string
}

func (e *InvalidEventError) Error() string {
	return "invalid event: " + e.Reason
}

// ConfigError is returned by FromEnv when a required credential environment
// variable is not set.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("missing required environment variables: %s", strings.Join(e.Missing, ", "))
}
