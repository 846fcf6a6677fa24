package errors

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
)

type ErrorClass int

const (
	ClassInternal ErrorClass = iota
	ClassValidation
	ClassAuthentication
	ClassNotFound
	ClassRateLimit
	ClassExternal
	ClassCancelled
)

func (c ErrorClass) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassAuthentication:
		return "authentication"
	case ClassNotFound:
		return "not_found"
	case ClassRateLimit:
		return "rate_limit"
	case ClassExternal:
		return "external"
	case ClassCancelled:
		return "cancelled"
	default:
		return "internal"
	}
}

// Advice tells a caller what to do about a failure without looking at transport details.
type Advice string

const (
	AdviceFixInput          Advice = "fix_input"
	AdviceRetryLater        Advice = "retry_later"
	AdviceRefreshCredential Advice = "refresh_credential"
	AdviceNone              Advice = "none"
)

type ClassifiedError struct {
	Class         ErrorClass
	InternalError error
	ClientMessage string
	OperationName string
	StatusCode    int
	RequestID     string
}

// Advice derives the caller action from the class.
func (ce *ClassifiedError) Advice() Advice {
	switch ce.Class {
	case ClassValidation, ClassNotFound:
		return AdviceFixInput
	case ClassAuthentication:
		return AdviceRefreshCredential
	case ClassRateLimit, ClassExternal:
		return AdviceRetryLater
	default:
		return AdviceNone
	}
}

// ExitCode is the process exit status the CLI uses for this class.
func (ce *ClassifiedError) ExitCode() int {
	switch ce.Class {
	case ClassValidation:
		return 2
	case ClassAuthentication:
		return 3
	case ClassNotFound:
		return 4
	case ClassRateLimit, ClassExternal:
		return 5
	case ClassCancelled:
		return 130
	default:
		return 1
	}
}

type ErrorClassifier struct {
	logger *slog.Logger
}

func NewErrorClassifier(logger *slog.Logger) *ErrorClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorClassifier{logger: logger}
}

func (ec *ErrorClassifier) Classify(err error, operation string) *ClassifiedError {
	classified := &ClassifiedError{
		InternalError: err,
		OperationName: operation,
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		classified.StatusCode = apiErr.StatusCode
		classified.RequestID = apiErr.RequestID
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		classified.Class = ClassValidation
		classified.ClientMessage = "The request contains invalid parameters."
	case errors.Is(err, ErrUnauthorized):
		classified.Class = ClassAuthentication
		classified.ClientMessage = "The credential is missing, expired or was rejected."
	case errors.Is(err, ErrNotFound):
		classified.Class = ClassNotFound
		classified.ClientMessage = "The requested resource was not found."
	case errors.Is(err, ErrRateLimited):
		classified.Class = ClassRateLimit
		classified.ClientMessage = "Rate limit exceeded. Please try again later."
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		classified.Class = ClassCancelled
		classified.ClientMessage = "The request was cancelled."
	case errors.Is(err, ErrTransport):
		classified.Class = ClassExternal
		classified.ClientMessage = "The payments platform could not be reached. Please try again later."
	case errors.Is(err, ErrPlatform):
		if classified.StatusCode >= http.StatusInternalServerError {
			classified.Class = ClassExternal
			classified.ClientMessage = "The payments platform failed. Please try again later."
		} else {
			classified.Class = ClassValidation
			classified.ClientMessage = "The payments platform rejected the request."
		}
	case errors.Is(err, ErrDecoding):
		classified.Class = ClassInternal
		classified.ClientMessage = "The payments platform returned an unexpected response."
	default:
		classified.Class = ClassInternal
		classified.ClientMessage = "An unexpected internal error occurred."
	}

	return classified
}

// LogAndSanitize logs the full failure and returns an error safe to show to end users.
func (ec *ErrorClassifier) LogAndSanitize(ctx context.Context, classified *ClassifiedError) error {
	ec.logger.ErrorContext(ctx, "operation failed",
		"operation", classified.OperationName,
		"error_class", classified.Class.String(),
		"advice", string(classified.Advice()),
		"status", classified.StatusCode,
		"request_id", classified.RequestID,
		"internal_error", classified.InternalError.Error(),
	)
	return &sanitizedError{msg: classified.ClientMessage, cause: classified.InternalError}
}

type sanitizedError struct {
	msg   string
	cause error
}

func (e *sanitizedError) Error() string { return e.msg }

// Unwrap keeps errors.Is working on sanitized errors; Error() never exposes the cause.
func (e *sanitizedError) Unwrap() error { return e.cause }
