package pokeclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	cacheTTL = 5 * time.Minute
	staleTTL = 60 * time.Minute
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// countingServer answers every request with {"n": <request number>} unless
// handle returns false, in which case handle has written the response.
func countingServer(t *testing.T, handle func(n int32, w http.ResponseWriter, r *http.Request) bool) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if handle != nil && !handle(n, w, r) {
			return
		}
		fmt.Fprintf(w, `{"n":%d}`, n)
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

type counter struct {
	N int `json:"n"`
}

func newTestClient(server *httptest.Server, opts ...Option) *Client {
	base := []Option{
		WithBaseURL(server.URL),
		WithBackoff(noWait{}),
	}
	return New(append(base, opts...)...)
}

func TestNewDefaults(t *testing.T) {
	client := New()

	require.True(t, client.IsValid())
	assert.Equal(t, DefaultPolicy(), client.Defaults())
	assert.Nil(t, client.Limiter())
	assert.Nil(t, client.Metrics())
	assert.NotNil(t, client.Store())
	assert.Equal(t, 8*time.Second, client.Defaults().Timeout)
	assert.Equal(t, 2, client.Defaults().Retries)
	assert.Equal(t, 350*time.Millisecond, client.Defaults().RetryDelay)
	assert.True(t, client.Defaults().Dedupe)
	assert.False(t, client.Defaults().SWR)
}

func TestNewInvalidConfiguration(t *testing.T) {
	client := New(
		WithBaseURL("not-absolute"),
		WithDefaults(Policy{Retries: -1, Timeout: -time.Second}),
		WithHTTPClient(nil),
		WithMiddleware(nil),
	)

	assert.False(t, client.IsValid())
	err := client.ValidationError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "baseURL must be an absolute URL")
	assert.Contains(t, err.Error(), "retries must be non-negative")
	assert.Contains(t, err.Error(), "HTTP client cannot be nil")
	assert.Contains(t, err.Error(), "middleware[0] cannot be nil")
}

func TestGetFreshHitSkipsNetwork(t *testing.T) {
	server, calls := countingServer(t, nil)
	client := newTestClient(server)

	first, err := GetJSON[counter](context.Background(), client, "/pokemon/1", WithCacheTTL(cacheTTL))
	require.NoError(t, err)
	second, err := GetJSON[counter](context.Background(), client, "/pokemon/1", WithCacheTTL(cacheTTL))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestGetWithoutCacheTTLIsNotCached(t *testing.T) {
	server, calls := countingServer(t, nil)
	client := newTestClient(server)

	_, err := client.Get(context.Background(), "/pokemon/1")
	require.NoError(t, err)
	_, err = client.Get(context.Background(), "/pokemon/1")
	require.NoError(t, err)

	assert.EqualValues(t, 2, atomic.LoadInt32(calls))
	assert.Equal(t, 0, client.Store().Len())
}

func TestNonGetBypassesCache(t *testing.T) {
	server, calls := countingServer(t, nil)
	client := newTestClient(server)

	for i := 0; i < 2; i++ {
		_, err := client.Request(context.Background(), http.MethodPost, "/items", WithCacheTTL(cacheTTL), WithBody([]byte(`{}`)))
		require.NoError(t, err)
	}
	assert.EqualValues(t, 2, atomic.LoadInt32(calls))
	assert.Equal(t, 0, client.Store().Len())
}

func TestDedupeSharesOneCall(t *testing.T) {
	gate := make(chan struct{})
	server, calls := countingServer(t, func(int32, http.ResponseWriter, *http.Request) bool {
		<-gate
		return true
	})
	client := newTestClient(server, WithMetrics())

	const callers = 10
	var wg sync.WaitGroup
	results := make([]counter, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = GetJSON[counter](context.Background(), client, "/pokemon", WithQueryParam("limit", 20))
		}(i)
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(calls) == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, counter{N: 1}, results[i])
	}
	assert.Equal(t, 0, client.inflight.Len())

	endpoint := endpointOf(server.URL + "/pokemon")
	assert.Equal(t, float64(callers), testutil.ToFloat64(client.Metrics().deduplicationHits.WithLabelValues(endpoint)))
}

func TestDedupeDisabledIssuesEveryCall(t *testing.T) {
	gate := make(chan struct{})
	server, calls := countingServer(t, func(int32, http.ResponseWriter, *http.Request) bool {
		<-gate
		return true
	})
	client := newTestClient(server)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Get(context.Background(), "/pokemon/1", WithDedupe(false))
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(calls) == 3 }, time.Second, time.Millisecond)
	close(gate)
	wg.Wait()
}

func TestFailureClearsRegistration(t *testing.T) {
	server, calls := countingServer(t, func(n int32, w http.ResponseWriter, _ *http.Request) bool {
		if n == 1 {
			w.WriteHeader(http.StatusNotFound)
			return false
		}
		return true
	})
	client := newTestClient(server)

	_, err := client.Get(context.Background(), "/pokemon/missingno", WithCacheTTL(cacheTTL))
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, 0, client.Store().Len())
	assert.Equal(t, 0, client.inflight.Len())

	v, err := GetJSON[counter](context.Background(), client, "/pokemon/missingno", WithCacheTTL(cacheTTL))
	require.NoError(t, err)
	assert.Equal(t, counter{N: 2}, v)
	assert.EqualValues(t, 2, atomic.LoadInt32(calls))
}

func TestRetryThroughClient(t *testing.T) {
	server, calls := countingServer(t, func(n int32, w http.ResponseWriter, _ *http.Request) bool {
		if n <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return false
		}
		return true
	})
	client := newTestClient(server)

	v, err := GetJSON[counter](context.Background(), client, "/pokemon/25", WithRetries(2))
	require.NoError(t, err)
	assert.Equal(t, counter{N: 3}, v)
	assert.EqualValues(t, 3, atomic.LoadInt32(calls))
}

func TestCancellationFailsWithoutRetry(t *testing.T) {
	server, calls := countingServer(t, func(_ int32, _ http.ResponseWriter, r *http.Request) bool {
		<-r.Context().Done()
		return false
	})
	client := newTestClient(server)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := client.Get(ctx, "/pokemon/1", WithRetries(3), WithCacheTTL(cacheTTL))
	require.Error(t, err)
	assert.True(t, IsCanceled(err))
	assert.ErrorIs(t, err, ErrCanceled)

	require.Eventually(t, func() bool { return client.inflight.Len() == 0 }, time.Second, time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
	assert.Equal(t, 0, client.Store().Len())
}

func TestCancelledSharerDoesNotAbortOthers(t *testing.T) {
	gate := make(chan struct{})
	server, calls := countingServer(t, func(int32, http.ResponseWriter, *http.Request) bool {
		<-gate
		return true
	})
	client := newTestClient(server)

	ctx, cancel := context.WithCancel(context.Background())
	leaver := make(chan error, 1)
	go func() {
		_, err := client.Get(ctx, "/pokemon/4", WithCacheTTL(cacheTTL))
		leaver <- err
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(calls) == 1 }, time.Second, time.Millisecond)

	stayer := make(chan error, 1)
	go func() {
		_, err := client.Get(context.Background(), "/pokemon/4", WithCacheTTL(cacheTTL))
		stayer <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.True(t, IsCanceled(<-leaver))

	close(gate)
	require.NoError(t, <-stayer)
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))

	_, ok := client.Store().Get("GET:/pokemon/4")
	assert.True(t, ok)
}

func TestAllSharersCancelSuppressesCacheWrite(t *testing.T) {
	aborted := make(chan struct{})
	server, _ := countingServer(t, func(_ int32, _ http.ResponseWriter, r *http.Request) bool {
		<-r.Context().Done()
		close(aborted)
		return false
	})
	client := newTestClient(server)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Get(ctx, "/pokemon/7", WithCacheTTL(cacheTTL))
			assert.True(t, IsCanceled(err))
		}()
	}
	time.Sleep(30 * time.Millisecond)
	cancel()
	wg.Wait()

	select {
	case <-aborted:
	case <-time.After(time.Second):
		t.Fatal("network call was not aborted after every caller left")
	}
	require.Eventually(t, func() bool { return client.inflight.Len() == 0 }, time.Second, time.Millisecond)
	assert.Equal(t, 0, client.Store().Len())
}

func TestStaleWhileRevalidateSingleRevalidation(t *testing.T) {
	gate := make(chan struct{})
	server, calls := countingServer(t, func(n int32, _ http.ResponseWriter, _ *http.Request) bool {
		if n > 1 {
			<-gate
		}
		return true
	})
	clock := newFakeClock()
	client := newTestClient(server, WithClock(clock.Now), WithMetrics())
	opts := []RequestOption{WithCacheTTL(cacheTTL), WithStaleTTL(staleTTL), WithSWR(true)}

	initial, err := GetJSON[counter](context.Background(), client, "/pokemon/1", opts...)
	require.NoError(t, err)
	require.Equal(t, counter{N: 1}, initial)

	clock.Advance(40 * time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := GetJSON[counter](context.Background(), client, "/pokemon/1", opts...)
			assert.NoError(t, err)
			assert.Equal(t, counter{N: 1}, v)
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return atomic.LoadInt32(calls) == 2 }, time.Second, time.Millisecond)
	close(gate)
	require.Eventually(t, func() bool {
		entry, _ := client.Store().Get("GET:/pokemon/1")
		return entry.Data == counter{N: 2} && client.inflight.Len() == 0
	}, time.Second, time.Millisecond)

	assert.EqualValues(t, 2, atomic.LoadInt32(calls))
	endpoint := endpointOf(server.URL + "/pokemon/1")
	assert.Equal(t, 5.0, testutil.ToFloat64(client.Metrics().cacheStaleHits.WithLabelValues(endpoint)))
	assert.Equal(t, 1.0, testutil.ToFloat64(client.Metrics().revalidations.WithLabelValues(endpoint, "success")))

	entry, _ := client.Store().Get("GET:/pokemon/1")
	assert.Equal(t, clock.Now(), entry.FetchedAt)
	assert.Equal(t, Fresh, entry.State(clock.Now()))
}

func TestStaleWithoutSWRFetches(t *testing.T) {
	server, calls := countingServer(t, nil)
	clock := newFakeClock()
	client := newTestClient(server, WithClock(clock.Now))
	opts := []RequestOption{WithCacheTTL(cacheTTL), WithStaleTTL(staleTTL)}

	_, err := client.Get(context.Background(), "/pokemon/1", opts...)
	require.NoError(t, err)
	clock.Advance(10 * time.Minute)

	v, err := GetJSON[counter](context.Background(), client, "/pokemon/1", opts...)
	require.NoError(t, err)
	assert.Equal(t, counter{N: 2}, v)
	assert.EqualValues(t, 2, atomic.LoadInt32(calls))
}

func TestCacheLifecycleTimeline(t *testing.T) {
	// The revalidation at t=40m fails, so the entry keeps its original
	// timestamps and expires at t=65m.
	server, calls := countingServer(t, func(n int32, w http.ResponseWriter, _ *http.Request) bool {
		if n == 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return false
		}
		return true
	})
	clock := newFakeClock()
	client := newTestClient(server, WithClock(clock.Now), WithDefaults(Policy{
		Timeout:  time.Second,
		CacheTTL: cacheTTL,
		StaleTTL: staleTTL,
		Dedupe:   true,
		SWR:      true,
	}))
	get := func() counter {
		v, err := GetJSON[counter](context.Background(), client, "/pokemon/1")
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, counter{N: 1}, get())

	clock.Advance(4 * time.Minute)
	assert.Equal(t, counter{N: 1}, get())
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))

	clock.Advance(36 * time.Minute)
	assert.Equal(t, counter{N: 1}, get())
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(calls) == 2 && client.inflight.Len() == 0
	}, time.Second, time.Millisecond)

	clock.Advance(30 * time.Minute)
	assert.Equal(t, counter{N: 3}, get())
	assert.EqualValues(t, 3, atomic.LoadInt32(calls))
}

func TestLimiterBoundsClientCalls(t *testing.T) {
	var running, peak int32
	gate := make(chan struct{})
	server, _ := countingServer(t, func(int32, http.ResponseWriter, *http.Request) bool {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		<-gate
		atomic.AddInt32(&running, -1)
		return true
	})
	client := newTestClient(server, WithMaxConcurrent(2))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := client.Get(context.Background(), fmt.Sprintf("/pokemon/%d", i))
			assert.NoError(t, err)
		}(i)
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&running) == 2 && client.Limiter().Queued() == 3
	}, time.Second, time.Millisecond)
	close(gate)
	wg.Wait()
	assert.EqualValues(t, 2, atomic.LoadInt32(&peak))
}

func TestSubscribeReceivesTypedUpdates(t *testing.T) {
	server, _ := countingServer(t, nil)
	clock := newFakeClock()
	client := newTestClient(server, WithClock(clock.Now))

	var got []counter
	unsubscribe := Subscribe(client, "GET:/pokemon/1", func(v counter) {
		got = append(got, v)
	})

	_, err := GetJSON[counter](context.Background(), client, "/pokemon/1", WithCacheTTL(cacheTTL))
	require.NoError(t, err)
	clock.Advance(cacheTTL)
	_, err = GetJSON[counter](context.Background(), client, "/pokemon/1", WithCacheTTL(cacheTTL))
	require.NoError(t, err)

	unsubscribe()
	client.Store().Set("GET:/pokemon/1", NewEntry(counter{N: 99}, clock.Now(), cacheTTL, 0))
	assert.Equal(t, []counter{{N: 1}, {N: 2}}, got)
}

func TestInvalidateAndPurge(t *testing.T) {
	server, calls := countingServer(t, nil)
	client := newTestClient(server)

	require.NoError(t, client.Prefetch(context.Background(), "/pokemon/1", WithCacheTTL(cacheTTL)))
	require.NoError(t, client.Prefetch(context.Background(), "/pokemon/2", WithCacheTTL(cacheTTL)))
	assert.Equal(t, 2, client.Store().Len())

	client.Invalidate(CacheKey(http.MethodGet, "/pokemon/1"))
	assert.Equal(t, 1, client.Store().Len())
	_, err := client.Get(context.Background(), "/pokemon/1", WithCacheTTL(cacheTTL))
	require.NoError(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(calls))

	client.Purge()
	assert.Equal(t, 0, client.Store().Len())
}

func TestRequestJSONTypeMismatch(t *testing.T) {
	server, _ := countingServer(t, nil)
	client := newTestClient(server)

	_, err := RequestJSON[counter](context.Background(), client, http.MethodGet, "/pokemon/1",
		WithParser(func([]byte) (interface{}, error) { return "not a counter", nil }))
	var clientErr *ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, ErrorTypeParse, clientErr.Type)
}

func TestRequestJSONConvertsSharedValue(t *testing.T) {
	server, calls := countingServer(t, nil)
	client := newTestClient(server)

	_, err := client.Get(context.Background(), "/pokemon/1", WithCacheTTL(cacheTTL))
	require.NoError(t, err)
	v, err := GetJSON[counter](context.Background(), client, "/pokemon/1", WithCacheTTL(cacheTTL))
	require.NoError(t, err)
	assert.Equal(t, counter{N: 1}, v)
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestRequestJSONNoContent(t *testing.T) {
	server, _ := countingServer(t, func(_ int32, w http.ResponseWriter, _ *http.Request) bool {
		w.WriteHeader(http.StatusNoContent)
		return false
	})
	client := newTestClient(server)

	v, err := RequestJSON[map[string]interface{}](context.Background(), client, http.MethodDelete, "/pokemon/1")
	require.NoError(t, err)
	assert.Nil(t, v)

	c, err := GetJSON[counter](context.Background(), client, "/pokemon/1")
	require.NoError(t, err)
	assert.Equal(t, counter{}, c)
}

func TestSharedStoreBetweenClients(t *testing.T) {
	server, calls := countingServer(t, nil)
	store := NewStore()
	a := newTestClient(server, WithStore(store))
	b := newTestClient(server, WithStore(store))

	_, err := a.Get(context.Background(), "/types", WithCacheTTL(cacheTTL))
	require.NoError(t, err)
	_, err = b.Get(context.Background(), "/types", WithCacheTTL(cacheTTL))
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}
