package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apierrors "github.com/spounge-ai/polypay/pkg/errors"
	"github.com/spounge-ai/polypay/pkg/execution"
)

const (
	tracerName = "github.com/spounge-ai/polypay/pkg/apiclient"

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 1 << 20

	headerRequestID = "Request-Id"
)

var errMissingID = errors.New("response has no id")

// request is one prepared call. It is built before any goroutine starts so
// that the caller's parameter map is never read concurrently.
type request struct {
	op         string
	method     string
	path       string
	credential string
	query      url.Values
	form       url.Values
}

// identified is implemented by records that must carry an id to be valid.
type identified interface {
	objectID() string
}

func (t *Token) objectID() string         { return t.ID }
func (s *Source) objectID() string        { return s.ID }
func (c *Customer) objectID() string      { return c.ID }
func (p *PaymentSource) objectID() string { return p.ID }

// send performs exactly one network attempt for req and decodes the 2xx
// body into out.
func (c Config) send(ctx context.Context, req request, out any) error {
	cb := c.CircuitBreaker
	if cb != nil {
		if err := cb.Allow(); err != nil {
			return apierrors.New(apierrors.KindTransport, req.op, err)
		}
	}

	err := c.observe(ctx, req, out)

	if cb != nil {
		cb.Record(err)
	}
	return err
}

func (c Config) observe(ctx context.Context, req request, out any) (err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, req.op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.method),
			attribute.String("url.path", req.path),
		))

	start := time.Now()
	var status int
	defer func() {
		elapsed := time.Since(start)

		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, apierrors.KindOf(err).String())
		}
		span.End()

		if c.Observer != nil {
			c.Observer.ObserveRequest(RequestInfo{
				Op:         req.op,
				Method:     req.method,
				Path:       req.path,
				StatusCode: status,
				Duration:   elapsed,
				Err:        err,
			})
		}
	}()

	status, err = execution.WithTimeout(ctx, c.Timeout, func(ctx context.Context) (int, error) {
		return c.exchange(ctx, req, out)
	})
	return err
}

func (c Config) exchange(ctx context.Context, req request, out any) (int, error) {
	u, err := url.Parse(strings.TrimRight(c.BaseURL, "/") + req.path)
	if err != nil {
		return 0, apierrors.InvalidInput(req.op, "invalid base url: %v", err)
	}
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}

	var body io.Reader
	if req.form != nil {
		body = strings.NewReader(req.form.Encode())
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return 0, apierrors.InvalidInput(req.op, "build request: %v", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.credential)
	httpReq.Header.Set("Stripe-Version", c.APIVersion)
	httpReq.Header.Set("User-Agent", c.UserAgent)
	httpReq.Header.Set("Accept", "application/json")
	if req.form != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if req.method == http.MethodPost {
		httpReq.Header.Set("Idempotency-Key", uuid.NewString())
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		c.Logger.DebugContext(ctx, "platform request failed",
			"op", req.op, "method", req.method, "path", req.path,
			"duration", time.Since(start), "error", err)
		return 0, apierrors.FromTransport(req.op, err)
	}
	defer resp.Body.Close()

	requestID := resp.Header.Get(headerRequestID)
	c.Logger.DebugContext(ctx, "platform request",
		"op", req.op, "method", req.method, "path", req.path,
		"status", resp.StatusCode, "duration", time.Since(start), "request_id", requestID)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, apierrors.FromTransport(req.op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, apierrors.FromResponse(req.op, resp.StatusCode, requestID, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return resp.StatusCode, apierrors.Decoding(req.op, resp.StatusCode, err)
	}
	if rec, ok := out.(identified); ok && rec.objectID() == "" {
		return resp.StatusCode, apierrors.Decoding(req.op, resp.StatusCode, errMissingID)
	}
	return resp.StatusCode, nil
}
