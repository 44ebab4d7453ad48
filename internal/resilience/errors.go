// Package resilience classifies crawl errors into fatal conditions that must
// stop the process and soft failures the caller can absorb.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// FatalError marks a condition after which continuing is pointless, such as
// rejected credentials or an exhausted request quota.
type FatalError struct {
	Err    error
	Reason string
}

func (e *FatalError) Error() string {
	if e.Reason == "" {
		return e.Err.Error()
	}
	return e.Reason + ": " + e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// NewFatalError wraps err as fatal with a short reason (e.g. "unauthorized").
func NewFatalError(err error, reason string) *FatalError {
	return &FatalError{Err: err, Reason: reason}
}

// IsFatal reports whether err or any error in its chain is a FatalError.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var fe *FatalError
	return errors.As(err, &fe)
}

// FatalReason returns the reason of the first FatalError in the chain.
func FatalReason(err error) string {
	var fe *FatalError
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return ""
}

// IsTransient reports whether err looks like a network hiccup or a
// server-side condition that would likely succeed on a later run.
func IsTransient(err error) bool {
	if err == nil || IsFatal(err) {
		return false
	}

	var se interface{ HTTPStatus() int }
	if errors.As(err, &se) {
		return IsTransientHTTPStatus(se.HTTPStatus())
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"unexpected eof",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true for status codes that usually clear up
// on their own.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
