package apiclient_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spounge-ai/polypay/pkg/apiclient"
	"github.com/spounge-ai/polypay/pkg/async"
	apierrors "github.com/spounge-ai/polypay/pkg/errors"
	"github.com/spounge-ai/polypay/pkg/patterns/circuitbreaker"
	"github.com/spounge-ai/polypay/pkg/testutil"
)

func validCard() map[string]any {
	return map[string]any{
		"card": map[string]any{
			"number":    "4242424242424242",
			"exp_month": 12,
			"exp_year":  2099,
			"cvc":       "123",
		},
	}
}

// wait blocks until h has delivered its completion.
func wait(t *testing.T, h *async.Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("completion was not delivered")
	}
}

func TestNewValidatesPublishableKey(t *testing.T) {
	for _, key := range []string{"", "sk_test_123", "pk_"} {
		_, err := apiclient.New(key)
		assert.ErrorIs(t, err, apierrors.ErrInvalidInput, key)
	}

	c, err := apiclient.New("pk_test_123")
	require.NoError(t, err)
	assert.Equal(t, apiclient.DefaultBaseURL, c.BaseURL())
	assert.Equal(t, http.DefaultClient, c.HTTPClient())
	assert.Equal(t, "2015-10-12", apiclient.APIVersion())
	assert.Equal(t, apiclient.APIVersion(), c.Config().APIVersion)
}

func TestWithBaseURLIsCopyOnWrite(t *testing.T) {
	c, err := apiclient.New("pk_test_123")
	require.NoError(t, err)

	hc := &http.Client{Timeout: time.Second}
	moved := c.WithBaseURL("http://localhost:9999/v1").WithHTTPClient(hc)

	assert.Equal(t, apiclient.DefaultBaseURL, c.BaseURL())
	assert.Equal(t, http.DefaultClient, c.HTTPClient())
	assert.Equal(t, "http://localhost:9999/v1", moved.BaseURL())
	assert.Same(t, hc, moved.HTTPClient())
}

func TestCreateTokenStampsHeaders(t *testing.T) {
	var got *http.Request
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"tok_1","object":"token","type":"card","card":{"id":"card_1","object":"card","last4":"4242"}}`)
	}))
	defer srv.Close()

	c, err := apiclient.New("pk_test_123", apiclient.WithBaseURL(srv.URL+"/v1/"), apiclient.WithUserAgent("polypay-test"))
	require.NoError(t, err)

	tok, err := c.CreateToken(context.Background(), validCard())
	require.NoError(t, err)
	assert.Equal(t, "tok_1", tok.ID)
	assert.Equal(t, "4242", tok.Card.Last4)

	require.NotNil(t, got)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/v1/tokens", got.URL.Path)
	assert.Equal(t, "Bearer pk_test_123", got.Header.Get("Authorization"))
	assert.Equal(t, apiclient.APIVersion(), got.Header.Get("Stripe-Version"))
	assert.Equal(t, "polypay-test", got.Header.Get("User-Agent"))
	assert.NotEmpty(t, got.Header.Get("Idempotency-Key"))
	assert.Equal(t, "application/x-www-form-urlencoded", got.Header.Get("Content-Type"))

	form, err := url.ParseQuery(body)
	require.NoError(t, err)
	assert.Equal(t, "4242424242424242", form.Get("card[number]"))
	assert.Equal(t, "12", form.Get("card[exp_month]"))
}

func TestAPIVersionOverride(t *testing.T) {
	versions := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		versions <- r.Header.Get("Stripe-Version")
		_, _ = io.WriteString(w, `{"id":"tok_1","object":"token"}`)
	}))
	defer srv.Close()

	pinned, err := apiclient.New("pk_test_123", apiclient.WithBaseURL(srv.URL), apiclient.WithAPIVersion("2020-08-27"))
	require.NoError(t, err)
	_, err = pinned.CreateToken(context.Background(), validCard())
	require.NoError(t, err)
	assert.Equal(t, "2020-08-27", <-versions)

	unset, err := apiclient.New("pk_test_123", apiclient.WithBaseURL(srv.URL), apiclient.WithAPIVersion(""))
	require.NoError(t, err)
	_, err = unset.CreateToken(context.Background(), validCard())
	require.NoError(t, err)
	assert.Equal(t, apiclient.APIVersion(), <-versions)
}

func TestCreateTokenAgainstPlatform(t *testing.T) {
	env := testutil.New(t, testutil.Config{})
	c := env.Client(t)

	tok, err := c.CreateToken(context.Background(), validCard())
	require.NoError(t, err)
	assert.Equal(t, "token", tok.Object)
	assert.Equal(t, "Visa", tok.Card.Brand)

	params := validCard()
	params["card"].(map[string]any)["number"] = "4000000000000002"
	_, err = c.CreateToken(context.Background(), params)
	require.ErrorIs(t, err, apierrors.ErrPlatform)

	var apiErr *apierrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusPaymentRequired, apiErr.StatusCode)
	assert.Equal(t, "card_declined", apiErr.Platform.Code)
	assert.NotEmpty(t, apiErr.RequestID)
}

func TestCreateTokenAsyncCompletesExactlyOnce(t *testing.T) {
	env := testutil.New(t, testutil.Config{})
	c := env.Client(t)

	var calls atomic.Int32
	var tok *apiclient.Token
	var gotErr error
	h := c.CreateTokenAsync(context.Background(), validCard(), func(res *apiclient.Token, err error) {
		calls.Add(1)
		tok, gotErr = res, err
	})
	wait(t, h)

	require.NoError(t, gotErr)
	assert.NotEmpty(t, tok.ID)
	assert.EqualValues(t, 1, calls.Load())
}

func TestCreateTokenRejectsInvalidInputWithoutNetwork(t *testing.T) {
	env := testutil.New(t, testutil.Config{})
	c := env.Client(t)

	cases := map[string]map[string]any{
		"empty":       {},
		"unencodable": {"card": map[string]any{"number": func() {}}},
	}
	for name, params := range cases {
		t.Run(name, func(t *testing.T) {
			var calls atomic.Int32
			var gotErr error
			h := c.CreateTokenAsync(context.Background(), params, func(tok *apiclient.Token, err error) {
				calls.Add(1)
				assert.Nil(t, tok)
				gotErr = err
			})
			wait(t, h)
			assert.ErrorIs(t, gotErr, apierrors.ErrInvalidInput)
			assert.EqualValues(t, 1, calls.Load())
		})
	}
	assert.Zero(t, env.Platform.Requests())
}

func TestRetrieveSource(t *testing.T) {
	env := testutil.New(t, testutil.Config{})
	c := env.Client(t)

	var src *apiclient.Source
	h := c.RetrieveSourceAsync(context.Background(), testutil.SourceID, testutil.SourceClientSecret, func(s *apiclient.Source, err error) {
		assert.NoError(t, err)
		src = s
	})
	wait(t, h)

	require.NotNil(t, src)
	assert.Equal(t, testutil.SourceID, src.ID)
	assert.Equal(t, int64(1099), src.Amount)
	assert.Equal(t, "Jenny Rosen", src.Owner.Name)

	_, err := c.RetrieveSource(context.Background(), testutil.SourceID, "wrong_secret")
	assert.ErrorIs(t, err, apierrors.ErrNotFound)

	_, err = c.RetrieveSource(context.Background(), "../customers/cus_123", testutil.SourceClientSecret)
	assert.ErrorIs(t, err, apierrors.ErrInvalidInput)

	_, err = c.RetrieveSource(context.Background(), testutil.SourceID, "")
	assert.ErrorIs(t, err, apierrors.ErrUnauthorized)
}

func TestRetrieveSourceCancelBeforeResponse(t *testing.T) {
	release := make(chan struct{})
	arrived := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arrived <- struct{}{}
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		_, _ = io.WriteString(w, `{"id":"src_123","object":"source","type":"card"}`)
	}))
	defer srv.Close()
	defer close(release)

	c, err := apiclient.New("pk_test_123", apiclient.WithBaseURL(srv.URL))
	require.NoError(t, err)

	var calls atomic.Int32
	var gotErr error
	h := c.RetrieveSourceAsync(context.Background(), "src_123", "secret_abc", func(s *apiclient.Source, err error) {
		calls.Add(1)
		assert.Nil(t, s)
		gotErr = err
	})

	<-arrived
	h.Cancel()
	wait(t, h)

	assert.EqualValues(t, 1, calls.Load())
	assert.ErrorIs(t, gotErr, apierrors.ErrCancelled)
	assert.ErrorIs(t, gotErr, context.Canceled)
}

func TestRetrieveSourceCancelRaceCompletesOnce(t *testing.T) {
	env := testutil.New(t, testutil.Config{})
	c := env.Client(t)

	const runs = 200
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(delay time.Duration) {
			defer wg.Done()
			var calls atomic.Int32
			h := c.RetrieveSourceAsync(context.Background(), testutil.SourceID, testutil.SourceClientSecret,
				func(s *apiclient.Source, err error) {
					calls.Add(1)
					assert.True(t, (s == nil) != (err == nil), "exactly one of result and error")
					if err != nil {
						assert.ErrorIs(t, err, apierrors.ErrCancelled)
					}
				})
			time.Sleep(delay)
			h.Cancel()
			h.Cancel()
			<-h.Done()
			assert.EqualValues(t, 1, calls.Load())
		}(time.Duration(i%20) * 50 * time.Microsecond)
	}
	wg.Wait()
}

func TestAsyncDeliversOnSerialExecutor(t *testing.T) {
	env := testutil.New(t, testutil.Config{})
	serial := async.NewSerial(8, env.Logger)
	require.NoError(t, serial.Start(context.Background()))
	defer serial.Stop(context.Background())

	var delivered []string
	var executed atomic.Int32
	exec := async.ExecutorFunc(func(fn func()) {
		executed.Add(1)
		serial.Execute(fn)
	})
	c := env.Client(t, apiclient.WithExecutor(exec))

	handles := make([]*async.Handle, 0, 5)
	for i := 0; i < 5; i++ {
		handles = append(handles, c.RetrieveSourceAsync(context.Background(), testutil.SourceID, testutil.SourceClientSecret,
			func(s *apiclient.Source, err error) {
				if assert.NoError(t, err) {
					delivered = append(delivered, s.ID)
				}
			}))
	}
	for _, h := range handles {
		wait(t, h)
	}
	assert.Len(t, delivered, 5)
	assert.EqualValues(t, 5, executed.Load())
}

func TestResponseMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"decoding", http.StatusOK, `{not json`, apierrors.ErrDecoding},
		{"missing id", http.StatusOK, `{"object":"source"}`, apierrors.ErrDecoding},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"type":"invalid_request_error","message":"Invalid API Key"}}`, apierrors.ErrUnauthorized},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"type":"rate_limit_error","message":"slow down"}}`, apierrors.ErrRateLimited},
		{"server error", http.StatusBadGateway, `<html>bad gateway</html>`, apierrors.ErrPlatform},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c, err := apiclient.New("pk_test_123", apiclient.WithBaseURL(srv.URL))
			require.NoError(t, err)
			_, err = c.RetrieveSource(context.Background(), "src_1", "secret")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := apiclient.New("pk_test_123", apiclient.WithBaseURL(base))
	require.NoError(t, err)

	_, err = c.CreateToken(context.Background(), validCard())
	assert.ErrorIs(t, err, apierrors.ErrTransport)
	assert.True(t, apierrors.Retryable(err))
}

func TestTimeoutIsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c, err := apiclient.New("pk_test_123", apiclient.WithBaseURL(srv.URL), apiclient.WithTimeout(20*time.Millisecond))
	require.NoError(t, err)

	_, err = c.RetrieveSource(context.Background(), "src_1", "secret")
	assert.ErrorIs(t, err, apierrors.ErrTransport)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestObserverSeesEveryAttempt(t *testing.T) {
	env := testutil.New(t, testutil.Config{})

	var mu sync.Mutex
	var seen []apiclient.RequestInfo
	c := env.Client(t, apiclient.WithObserver(apiclient.ObserverFunc(func(info apiclient.RequestInfo) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, info)
	})))

	_, err := c.RetrieveSource(context.Background(), testutil.SourceID, testutil.SourceClientSecret)
	require.NoError(t, err)
	_, err = c.RetrieveSource(context.Background(), "src_nope", "secret")
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.Equal(t, "RetrieveSource", seen[0].Op)
	assert.Equal(t, http.StatusOK, seen[0].StatusCode)
	assert.NoError(t, seen[0].Err)
	assert.Equal(t, "/sources/src_nope", seen[1].Path)
	assert.Equal(t, http.StatusNotFound, seen[1].StatusCode)
}

func TestCircuitBreakerFailsFast(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cb := circuitbreaker.New(circuitbreaker.Settings{
		MaxFailures:  2,
		ResetTimeout: time.Hour,
		IsFailure:    apierrors.Retryable,
	})
	c, err := apiclient.New("pk_test_123", apiclient.WithBaseURL(srv.URL), apiclient.WithCircuitBreaker(cb))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = c.RetrieveSource(context.Background(), "src_1", "secret")
		assert.ErrorIs(t, err, apierrors.ErrPlatform)
	}
	_, err = c.RetrieveSource(context.Background(), "src_1", "secret")
	assert.ErrorIs(t, err, apierrors.ErrTransport)
	assert.True(t, errors.Is(err, circuitbreaker.ErrOpen))
	assert.EqualValues(t, 2, hits.Load())
}

func TestCircuitBreakerCancelledProbeStaysHalfOpen(t *testing.T) {
	var hits atomic.Int32
	entered := make(chan struct{})
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		close(entered)
		select {
		case <-r.Context().Done():
		case <-done:
		}
	}))
	defer srv.Close()
	defer close(done)

	cb := circuitbreaker.New(circuitbreaker.Settings{
		MaxFailures:  1,
		ResetTimeout: time.Millisecond,
		IsFailure:    apierrors.Retryable,
	})
	c, err := apiclient.New("pk_test_123", apiclient.WithBaseURL(srv.URL), apiclient.WithCircuitBreaker(cb))
	require.NoError(t, err)

	_, err = c.RetrieveSource(context.Background(), "src_1", "secret")
	require.ErrorIs(t, err, apierrors.ErrPlatform)
	require.Equal(t, circuitbreaker.StateOpen, cb.State())
	time.Sleep(5 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-entered
		cancel()
	}()
	_, err = c.RetrieveSource(ctx, "src_1", "secret")
	assert.ErrorIs(t, err, apierrors.ErrCancelled)
	assert.Equal(t, circuitbreaker.StateHalfOpen, cb.State())
	assert.NoError(t, cb.Allow(), "the next call may probe")
}
