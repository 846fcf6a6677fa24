package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind identifies which part of the taxonomy an APIError belongs to.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindUnauthorized
	KindNotFound
	KindTransport
	KindPlatform
	KindDecoding
	KindCancelled
)

var kindNames = map[Kind]string{
	KindUnknown:      "unknown",
	KindInvalidInput: "invalid_input",
	KindUnauthorized: "unauthorized",
	KindNotFound:     "not_found",
	KindTransport:    "transport_failure",
	KindPlatform:     "platform_error",
	KindDecoding:     "decoding_error",
	KindCancelled:    "cancelled",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) sentinel() error {
	switch k {
	case KindInvalidInput:
		return ErrInvalidInput
	case KindUnauthorized:
		return ErrUnauthorized
	case KindNotFound:
		return ErrNotFound
	case KindTransport:
		return ErrTransport
	case KindPlatform:
		return ErrPlatform
	case KindDecoding:
		return ErrDecoding
	case KindCancelled:
		return ErrCancelled
	default:
		return nil
	}
}

// PlatformError is the structured body the platform sends with a non-2xx status.
type PlatformError struct {
	Type        string `json:"type"`
	Code        string `json:"code,omitempty"`
	DeclineCode string `json:"decline_code,omitempty"`
	Message     string `json:"message,omitempty"`
	Param       string `json:"param,omitempty"`
}

type platformEnvelope struct {
	Error *PlatformError `json:"error"`
}

// APIError is returned by every client operation that fails.
// errors.Is matches it against the sentinel of its Kind and against its cause.
type APIError struct {
	Kind       Kind
	Op         string
	StatusCode int
	RequestID  string
	Platform   *PlatformError
	Err        error
}

func (e *APIError) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	switch {
	case e.Platform != nil && e.Platform.Message != "":
		b.WriteString(": ")
		b.WriteString(e.Platform.Message)
	case e.Err != nil:
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *APIError) Unwrap() []error {
	errs := make([]error, 0, 3)
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.RateLimited() {
		errs = append(errs, ErrRateLimited)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// RateLimited reports whether the platform throttled the request.
func (e *APIError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// New builds an APIError of the given kind around cause.
func New(kind Kind, op string, cause error) *APIError {
	return &APIError{Kind: kind, Op: op, Err: cause}
}

// InvalidInput reports a request rejected before any network call.
func InvalidInput(op, format string, args ...any) *APIError {
	return New(KindInvalidInput, op, fmt.Errorf(format, args...))
}

// Unauthorized reports a missing, expired or rejected credential.
func Unauthorized(op, format string, args ...any) *APIError {
	return New(KindUnauthorized, op, fmt.Errorf(format, args...))
}

// Decoding reports a response body that did not match the expected shape.
func Decoding(op string, statusCode int, cause error) *APIError {
	return &APIError{Kind: KindDecoding, Op: op, StatusCode: statusCode, Err: cause}
}

// FromTransport maps a failure to obtain a response. Context cancellation
// becomes KindCancelled, everything else (timeouts included) KindTransport.
func FromTransport(op string, err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, context.Canceled) {
		return New(KindCancelled, op, err)
	}
	return New(KindTransport, op, err)
}

// FromResponse maps a non-2xx response. The body is parsed for the platform
// error envelope; an unparseable body still yields a status-derived kind.
func FromResponse(op string, statusCode int, requestID string, body []byte) *APIError {
	e := &APIError{Op: op, StatusCode: statusCode, RequestID: requestID}

	var env platformEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		e.Platform = env.Error
	} else {
		e.Err = fmt.Errorf("%s", http.StatusText(statusCode))
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		e.Kind = KindUnauthorized
	case statusCode == http.StatusNotFound:
		e.Kind = KindNotFound
	case e.Platform != nil && e.Platform.Code == "resource_missing":
		e.Kind = KindNotFound
	default:
		e.Kind = KindPlatform
	}
	return e
}

// KindOf returns the Kind of err, or KindUnknown when err is not an APIError.
func KindOf(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

// Retryable reports whether repeating the same request later may succeed.
func Retryable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Kind {
	case KindTransport:
		return true
	case KindPlatform:
		return apiErr.RateLimited() || apiErr.StatusCode >= http.StatusInternalServerError
	default:
		return false
	}
}
