// Package upstream implements the Upstream Client (spec.md §4.2, C2): a
// stateless (per-credential) wrapper over the remote cloud-storage API,
// with typed error classification, per-drive rate limiting, and bounded
// concurrency. Retry for rate_limited/transport errors lives here too
// (spec.md §4.2 "Retry ... is the caller's responsibility" — this package
// is that caller, the narrowest one that knows the retry budget).
package upstream

import (
	"errors"
	"fmt"
)

// Sentinel errors for the typed taxonomy in spec.md §4.2 / §7. Callers
// classify with errors.Is, never by inspecting strings.
var (
	ErrUnauthorized = errors.New("upstream: unauthorized")
	ErrNotFound     = errors.New("upstream: not found")
	ErrRateLimited  = errors.New("upstream: rate limited")
	ErrTransport    = errors.New("upstream: transport error")
	ErrUpstream     = errors.New("upstream: domain error")
	ErrValidation   = errors.New("upstream: invalid input")
)

// UpstreamCode enumerates the concrete upstream-domain failure codes this
// client surfaces verbatim (spec.md §7 "Upstream-domain"; supplemented from
// original_source/app/api/routes/offline.py's error vocabulary per
// SPEC_FULL.md). These never trigger a retry.
type UpstreamCode string

const (
	CodeTaskAlreadyExists UpstreamCode = "task_already_exists"
	CodeInvalidLink       UpstreamCode = "invalid_link"
	CodeOutOfSpace        UpstreamCode = "out_of_space"
	CodeQuotaExceeded     UpstreamCode = "quota_exceeded"
	CodeUnknown           UpstreamCode = "unknown"
)

// Error wraps a sentinel with the HTTP status, upstream-specific code and
// message, mirroring the teacher's *GraphError shape so callers can
// errors.Is() against the sentinel while still recovering diagnostics.
type Error struct {
	StatusCode int
	Code       UpstreamCode
	Message    string
	Err        error // one of the sentinels above
}

func (e *Error) Error() string {
	if e.Code != "" && e.Code != CodeUnknown {
		return fmt.Sprintf("upstream: HTTP %d [%s]: %s", e.StatusCode, e.Code, e.Message)
	}

	return fmt.Sprintf("upstream: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether the call site should retry this error at all
// (spec.md §7: rate_limited and transport are retried; everything else is
// not).
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransport)
}

// classifyStatus maps an HTTP status code to a sentinel error. Returns nil
// for 2xx.
func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == 401 || code == 403:
		return ErrUnauthorized
	case code == 404:
		return ErrNotFound
	case code == 429:
		return ErrRateLimited
	case code >= 500:
		return ErrTransport
	default:
		return ErrUpstream
	}
}
