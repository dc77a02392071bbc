package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
)

// ErrNotAuthenticated means no token is on file at all, as opposed to a
// token the upstream stopped accepting.
var ErrNotAuthenticated = errors.New("not authenticated: run 'tally auth login'")

// AuthExpiredError is terminal: the refresh token itself was rejected and
// the user has to log in again. It is never retried.
type AuthExpiredError struct {
	Reason string
}

func (e *AuthExpiredError) Error() string {
	return "session expired: " + e.Reason
}

// RequestError is a non-401 4xx/5xx answer from the upstream, carrying the
// status and whatever message the error body held.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream returned %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Message)
}

// TransientError is a network-level failure (timeout, refused connection).
// The client does not retry these; retry policy belongs to callers.
type TransientError struct {
	Kind string // timeout, canceled, connection_refused, dns, network
	Err  error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("request failed (%s): %v", e.Kind, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// classifyNetworkError buckets a transport error for metrics and messages.
func classifyNetworkError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		if netErr.Op == "dial" {
			return "connection_refused"
		}
		return "network"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns"
	}
	return "network"
}

// upstreamMessage digs a human-readable message out of the error body. The
// upstream uses several envelope shapes depending on which service answered.
func upstreamMessage(body []byte) string {
	var flat struct {
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &flat); err == nil {
		switch {
		case flat.Message != "":
			return flat.Message
		case flat.ErrorDescription != "":
			return flat.ErrorDescription
		case flat.Error != "":
			return flat.Error
		}
	}

	var nested struct {
		Response struct {
			Errors []struct {
				Message string `json:"message"`
			} `json:"errors"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &nested); err == nil && len(nested.Response.Errors) > 0 {
		return nested.Response.Errors[0].Message
	}
	return ""
}
