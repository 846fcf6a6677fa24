package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spounge-ai/polypay/pkg/apiclient"
	apierrors "github.com/spounge-ai/polypay/pkg/errors"
	"github.com/spounge-ai/polypay/pkg/patterns/circuitbreaker"
	polytest "github.com/spounge-ai/polypay/pkg/testutil"
)

func TestCollectorCountsOutcomes(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.ObserveRequest(apiclient.RequestInfo{Op: "CreateToken", StatusCode: 200, Duration: 20 * time.Millisecond})
	c.ObserveRequest(apiclient.RequestInfo{
		Op:       "CreateToken",
		Duration: time.Millisecond,
		Err:      apierrors.FromResponse("CreateToken", 402, "", []byte(`{"error":{"type":"card_error"}}`)),
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("CreateToken", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("CreateToken", "platform_error")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.duration))
}

func TestCollectorAsClientObserver(t *testing.T) {
	env := polytest.New(t, polytest.Config{})
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	client := env.Client(t, apiclient.WithObserver(c))
	_, err := client.RetrieveSource(context.Background(), polytest.SourceID, polytest.SourceClientSecret)
	require.NoError(t, err)
	_, err = client.RetrieveSource(context.Background(), "src_missing", "secret")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("RetrieveSource", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("RetrieveSource", "not_found")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestCollectorTracksBreakerState(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())
	c.BreakerStateChanged(circuitbreaker.StateClosed, circuitbreaker.StateOpen)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.breakerState))
	c.BreakerStateChanged(circuitbreaker.StateOpen, circuitbreaker.StateHalfOpen)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.breakerState))
}
