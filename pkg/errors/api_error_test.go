package errors_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/spounge-ai/polypay/pkg/errors"
)

func TestFromResponseMapsStatus(t *testing.T) {
	body := []byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such source: src_1","param":"id"}}`)

	tests := []struct {
		name   string
		status int
		body   []byte
		kind   apierrors.Kind
		target error
	}{
		{"unauthorized", http.StatusUnauthorized, nil, apierrors.KindUnauthorized, apierrors.ErrUnauthorized},
		{"forbidden", http.StatusForbidden, nil, apierrors.KindUnauthorized, apierrors.ErrUnauthorized},
		{"not found", http.StatusNotFound, body, apierrors.KindNotFound, apierrors.ErrNotFound},
		{"resource missing on 400", http.StatusBadRequest, body, apierrors.KindNotFound, apierrors.ErrNotFound},
		{"bad request", http.StatusBadRequest, []byte(`{"error":{"type":"card_error","message":"declined"}}`), apierrors.KindPlatform, apierrors.ErrPlatform},
		{"rate limited", http.StatusTooManyRequests, []byte(`garbage`), apierrors.KindPlatform, apierrors.ErrRateLimited},
		{"server error", http.StatusBadGateway, nil, apierrors.KindPlatform, apierrors.ErrPlatform},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := apierrors.FromResponse("op", tt.status, "req_1", tt.body)
			assert.Equal(t, tt.kind, err.Kind)
			assert.ErrorIs(t, err, tt.target)
			assert.Equal(t, "req_1", err.RequestID)
		})
	}
}

func TestFromResponseKeepsPlatformPayload(t *testing.T) {
	err := apierrors.FromResponse("detach_source", http.StatusNotFound, "",
		[]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such source"}}`))

	require.NotNil(t, err.Platform)
	assert.Equal(t, "resource_missing", err.Platform.Code)
	assert.Equal(t, "detach_source: not_found (status 404): No such source", err.Error())
}

func TestFromTransport(t *testing.T) {
	cancelled := apierrors.FromTransport("op", fmt.Errorf("do: %w", context.Canceled))
	assert.Equal(t, apierrors.KindCancelled, cancelled.Kind)
	assert.ErrorIs(t, cancelled, apierrors.ErrCancelled)
	assert.ErrorIs(t, cancelled, context.Canceled)

	timeout := apierrors.FromTransport("op", context.DeadlineExceeded)
	assert.Equal(t, apierrors.KindTransport, timeout.Kind)
	assert.True(t, apierrors.Retryable(timeout))

	existing := apierrors.InvalidInput("op", "bad")
	assert.Same(t, existing, apierrors.FromTransport("other", existing))
}

func TestRetryable(t *testing.T) {
	assert.False(t, apierrors.Retryable(errors.New("plain")))
	assert.False(t, apierrors.Retryable(apierrors.InvalidInput("op", "x")))
	assert.True(t, apierrors.Retryable(apierrors.FromResponse("op", http.StatusServiceUnavailable, "", nil)))
	assert.True(t, apierrors.Retryable(apierrors.FromResponse("op", http.StatusTooManyRequests, "", nil)))
	assert.False(t, apierrors.Retryable(apierrors.FromResponse("op", http.StatusBadRequest, "", nil)))
}

func TestClassifierAdvice(t *testing.T) {
	ec := apierrors.NewErrorClassifier(slog.New(slog.DiscardHandler))

	tests := []struct {
		err    error
		class  apierrors.ErrorClass
		advice apierrors.Advice
	}{
		{apierrors.InvalidInput("op", "x"), apierrors.ClassValidation, apierrors.AdviceFixInput},
		{apierrors.Unauthorized("op", "expired"), apierrors.ClassAuthentication, apierrors.AdviceRefreshCredential},
		{apierrors.FromResponse("op", http.StatusNotFound, "", nil), apierrors.ClassNotFound, apierrors.AdviceFixInput},
		{apierrors.FromResponse("op", http.StatusTooManyRequests, "", nil), apierrors.ClassRateLimit, apierrors.AdviceRetryLater},
		{apierrors.FromResponse("op", http.StatusInternalServerError, "", nil), apierrors.ClassExternal, apierrors.AdviceRetryLater},
		{apierrors.New(apierrors.KindTransport, "op", errors.New("dial")), apierrors.ClassExternal, apierrors.AdviceRetryLater},
		{apierrors.New(apierrors.KindCancelled, "op", context.Canceled), apierrors.ClassCancelled, apierrors.AdviceNone},
		{apierrors.Decoding("op", 200, errors.New("eof")), apierrors.ClassInternal, apierrors.AdviceNone},
	}

	for _, tt := range tests {
		classified := ec.Classify(tt.err, "op")
		assert.Equal(t, tt.class, classified.Class, tt.err.Error())
		assert.Equal(t, tt.advice, classified.Advice(), tt.err.Error())
	}
}

func TestLogAndSanitizeHidesCause(t *testing.T) {
	ec := apierrors.NewErrorClassifier(slog.New(slog.DiscardHandler))
	cause := apierrors.Unauthorized("retrieve_customer", "key ek_test_secret expired")

	err := ec.LogAndSanitize(context.Background(), ec.Classify(cause, "retrieve_customer"))

	assert.NotContains(t, err.Error(), "ek_test_secret")
	assert.ErrorIs(t, err, apierrors.ErrUnauthorized)
}
