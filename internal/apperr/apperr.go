// Package apperr defines the catalog error taxonomy and the single function
// that classifies raw failures into it.
package apperr

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// Kind is the top-level error category surfaced to callers.
type Kind string

const (
	KindNetwork       Kind = "network"
	KindHTTP          Kind = "http"
	KindSerialization Kind = "serialization"
	KindDataNotFound  Kind = "dataNotFound"
	KindUnexpected    Kind = "unexpected"
)

// Cause refines a Kind. Only network errors carry more than one cause.
type Cause string

const (
	CauseUnreachable Cause = "network-unreachable"
	CauseTimeout     Cause = "timeout"
	CauseTLS         Cause = "tls-failure"
	CauseMalformed   Cause = "malformed-response"
	CauseHTTPStatus  Cause = "http-status-error"
	CauseNotFound    Cause = "not-found"
	CauseUnexpected  Cause = "unexpected"
)

// Error is a classified failure.
type Error struct {
	Kind       Kind
	Cause      Cause
	StatusCode int
	RetryAfter time.Duration
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Cause)
	}
	if e.Kind == KindHTTP && e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (%d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusError is returned by HTTP callers for non-2xx responses before
// classification.
type StatusError struct {
	StatusCode int
	RetryAfter time.Duration
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Detail)
}

// MalformedError marks a payload that could not be decoded or validated.
type MalformedError struct {
	Err error
}

func (e *MalformedError) Error() string {
	return "malformed response: " + e.Err.Error()
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

// DataNotFound returns the cache-miss error for a resource.
func DataNotFound(resource string) *Error {
	return &Error{
		Kind:    KindDataNotFound,
		Cause:   CauseNotFound,
		Message: resource + " not found",
	}
}

// Classify maps err onto the taxonomy. Already classified errors are returned
// unchanged; nil stays nil.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return &Error{
			Kind:       KindHTTP,
			Cause:      CauseHTTPStatus,
			StatusCode: statusErr.StatusCode,
			RetryAfter: statusErr.RetryAfter,
			Message:    statusMessage(statusErr.StatusCode),
			Err:        err,
		}
	}

	if isMalformed(err) {
		return &Error{Kind: KindSerialization, Cause: CauseMalformed, Message: "malformed response", Err: err}
	}
	if isTLS(err) {
		return &Error{Kind: KindNetwork, Cause: CauseTLS, Message: "tls handshake failed", Err: err}
	}
	if isTimeout(err) {
		return &Error{Kind: KindNetwork, Cause: CauseTimeout, Message: "network timeout", Err: err}
	}
	if isUnreachable(err) {
		return &Error{Kind: KindNetwork, Cause: CauseUnreachable, Message: "network unreachable", Err: err}
	}

	return &Error{Kind: KindUnexpected, Cause: CauseUnexpected, Message: "unexpected error", Err: err}
}

// KindOf classifies err and returns its Kind. nil returns "".
func KindOf(err error) Kind {
	if c := Classify(err); c != nil {
		return c.Kind
	}
	return ""
}

// UserMessage returns the display text for a classified error.
func UserMessage(err error) string {
	c := Classify(err)
	if c == nil {
		return ""
	}
	switch c.Kind {
	case KindNetwork:
		switch c.Cause {
		case CauseTimeout:
			return "The server took too long to respond. Try again."
		case CauseTLS:
			return "A secure connection could not be established."
		default:
			return "No internet connection. Check your network and try again."
		}
	case KindHTTP:
		switch {
		case c.StatusCode == 404:
			return "Nothing was found for this request."
		case c.StatusCode == 429:
			return "Too many requests. Wait a moment and try again."
		case c.StatusCode >= 500:
			return "The catalog service is having problems. Try again later."
		default:
			return "The request could not be completed."
		}
	case KindSerialization:
		return "The catalog returned data that could not be read."
	case KindDataNotFound:
		return "This character is not available offline."
	default:
		return "Something went wrong."
	}
}

func statusMessage(code int) string {
	switch {
	case code == 400:
		return "bad request"
	case code == 401:
		return "unauthorized"
	case code == 403:
		return "forbidden"
	case code == 404:
		return "not found"
	case code == 409:
		return "conflict"
	case code == 429:
		return "too many requests"
	case code >= 500 && code <= 599:
		return "server error"
	default:
		return "unknown status"
	}
}

func isMalformed(err error) bool {
	var malformed *MalformedError
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &malformed) ||
		errors.As(err, &syntaxErr) ||
		errors.As(err, &typeErr) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

func isTLS(err error) bool {
	var recordErr tls.RecordHeaderError
	var verifyErr *tls.CertificateVerificationError
	var unknownAuthority x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var invalidCert x509.CertificateInvalidError
	return errors.As(err, &recordErr) ||
		errors.As(err, &verifyErr) ||
		errors.As(err, &unknownAuthority) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidCert)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isUnreachable matches transport failures only. A *url.Error on its own,
// such as a redirect loop or an unsupported scheme, is not one.
func isUnreachable(err error) bool {
	var dnsErr *net.DNSError
	var opErr *net.OpError
	return errors.As(err, &dnsErr) || errors.As(err, &opErr) || errors.Is(err, io.EOF)
}
