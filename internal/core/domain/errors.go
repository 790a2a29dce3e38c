package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies failures for retry and HTTP mapping decisions.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindUpstreamTransient
	KindUpstreamPermanent
	KindRateLimited
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUpstreamTransient:
		return "upstream_transient"
	case KindUpstreamPermanent:
		return "upstream_permanent"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

var (
	// ErrEmptyRequest is returned when neither image nor text was supplied.
	ErrEmptyRequest = errors.New("domain: no image or text provided")
	// ErrTokenRejected is returned by the catalog when the bearer token is expired or invalid.
	ErrTokenRejected = errors.New("domain: catalog rejected access token")
	// ErrSuperseded marks a result discarded because a newer request of the same session started.
	ErrSuperseded = errors.New("domain: superseded by a newer request")
)

// Error is the typed error carried across the service boundary.
// Status is the HTTP status reported to the client; Message is safe to expose.
type Error struct {
	Kind    ErrorKind
	Status  int
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation builds a KindValidation error. status must be 400, 413 or 415.
func Validation(op string, status int, err error) *Error {
	return &Error{Kind: KindValidation, Status: status, Op: op, Message: MessageForStatus(status), Err: err}
}

// Transient builds a KindUpstreamTransient error reported with the given status (502 or 504).
func Transient(op string, status int, err error) *Error {
	if status != http.StatusGatewayTimeout {
		status = http.StatusBadGateway
	}
	return &Error{Kind: KindUpstreamTransient, Status: status, Op: op, Message: MessageForStatus(status), Err: err}
}

// Permanent builds a KindUpstreamPermanent error. The client sees 502 because
// the fault lies with an upstream, not with its own request.
func Permanent(op string, err error) *Error {
	return &Error{Kind: KindUpstreamPermanent, Status: http.StatusBadGateway, Op: op, Message: MessageForStatus(http.StatusBadGateway), Err: err}
}

// RateLimited builds a KindRateLimited error.
func RateLimited(op string, err error) *Error {
	return &Error{Kind: KindRateLimited, Status: http.StatusTooManyRequests, Op: op, Message: MessageForStatus(http.StatusTooManyRequests), Err: err}
}

// Internal builds a KindInternal error.
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Status: http.StatusInternalServerError, Op: op, Message: MessageForStatus(http.StatusInternalServerError), Err: err}
}

// FromUpstreamStatus maps a non-2xx upstream status to the error taxonomy.
// 502/504 and other 5xx are transient, 429 is rate limiting, 400/413/415 are
// reported back with their own status, every other 4xx is permanent.
func FromUpstreamStatus(op string, status int, err error) *Error {
	switch {
	case status == http.StatusGatewayTimeout:
		return Transient(op, http.StatusGatewayTimeout, err)
	case status >= http.StatusInternalServerError:
		return Transient(op, http.StatusBadGateway, err)
	case status == http.StatusTooManyRequests:
		return RateLimited(op, err)
	case status == http.StatusBadRequest, status == http.StatusRequestEntityTooLarge, status == http.StatusUnsupportedMediaType:
		return &Error{Kind: KindUpstreamPermanent, Status: status, Op: op, Message: MessageForStatus(status), Err: err}
	default:
		return Permanent(op, err)
	}
}

// KindOf returns the kind of err, KindInternal when err carries no *Error.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsTransient reports whether err is a retryable upstream failure.
func IsTransient(err error) bool {
	return KindOf(err) == KindUpstreamTransient
}

// StatusOf returns the HTTP status to report for err.
func StatusOf(err error) int {
	var de *Error
	if errors.As(err, &de) && de.Status != 0 {
		return de.Status
	}
	if errors.Is(err, ErrSuperseded) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the human-readable message for err. It never contains
// wrapped internal details.
func PublicMessage(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return MessageForStatus(StatusOf(err))
}

// MessageForStatus returns the stable human-readable message for an HTTP status.
func MessageForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "Request format error: provide an image, a text description, or both."
	case http.StatusConflict:
		return "This request was replaced by a newer one."
	case http.StatusRequestEntityTooLarge:
		return "Image file too large, please choose a smaller image."
	case http.StatusUnsupportedMediaType:
		return "Unsupported file type, please use jpg, png, gif or webp format."
	case http.StatusTooManyRequests:
		return "Too many requests, please try again later."
	case http.StatusBadGateway:
		return "Server temporarily unavailable, please retry."
	case http.StatusGatewayTimeout:
		return "Server timeout, please retry."
	default:
		return fmt.Sprintf("Server error (%d).", status)
	}
}
