package pokeclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ivnvaldz7/pokeclient/internal/singleflight"
)

// Client serves reads from its cache store when it can, shares in-flight
// requests between callers with the same key, and sends everything else
// through its Limiter and Engine. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      *Store
	limiter    *Limiter
	engine     *Engine
	inflight   *singleflight.Group
	defaults   Policy
	backoff    BackoffStrategy
	middleware []Middleware
	metrics    *MetricsCollector
	logger     Logger
	now        func() time.Time

	validationError error
}

// New constructs a Client using the provided functional options. A best effort
// validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{},
		store:      NewStore(),
		limiter:    nil,
		inflight:   singleflight.New(),
		defaults:   DefaultPolicy(),
		logger:     NewNopLogger(),
		now:        time.Now,
	}

	for _, option := range options {
		option(client)
	}

	if client.logger == nil {
		client.logger = NewNopLogger()
	}
	client.engine = NewEngine(client.httpClient, client.logger, client.metrics)
	client.engine.SetBackoff(client.backoff)
	client.engine.Use(client.middleware...)
	client.limiter.observe(client.metrics)

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// Get performs a GET request for path.
func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (interface{}, error) {
	return c.Request(ctx, http.MethodGet, path, opts...)
}

// Request resolves one read or write. GET requests are answered from the
// store while fresh, or while stale with SWR enabled; other methods always
// reach the network. With deduplication on, callers sharing a key share one
// network call and receive the same value or error.
//
// A caller whose ctx ends gets a Canceled error at once. The shared call
// keeps running for the remaining callers and is cancelled, without writing
// to the cache, only when every caller has left.
func (c *Client) Request(ctx context.Context, method, path string, opts ...RequestOption) (interface{}, error) {
	r := newRequest(method, path, c.defaults, opts)
	if r.err != nil {
		return nil, &ClientError{
			Type:      ErrorTypeValidation,
			Message:   "invalid request",
			Cause:     r.err,
			Method:    r.method,
			URL:       r.url(c.baseURL),
			Timestamp: time.Now(),
		}
	}
	key := r.key()
	endpoint := endpointOf(r.url(c.baseURL))

	if r.cacheable() {
		if entry, ok := c.store.Get(key); ok {
			switch entry.State(c.now()) {
			case Fresh:
				c.metrics.RecordCacheHit(endpoint)
				c.logger.Debug("Cache hit", "key", key)
				return entry.Data, nil
			case Stale:
				if r.policy.SWR {
					c.metrics.RecordCacheStaleHit(endpoint)
					c.logger.Debug("Serving stale entry", "key", key, "expiredAt", entry.ExpiresAt)
					c.revalidate(ctx, r, key, endpoint)
					return entry.Data, nil
				}
			}
		}
		c.metrics.RecordCacheMiss(endpoint)
	}

	if !r.policy.Dedupe {
		v, err := c.fetch(ctx, r, key, endpoint)
		return v, c.wrapCanceled(ctx, r, err)
	}

	v, err, shared := c.inflight.Do(ctx, key, func(ctx context.Context) (interface{}, error) {
		return c.fetch(ctx, r, key, endpoint)
	})
	if shared {
		c.metrics.RecordDeduplicationHit(endpoint)
	}
	return v, c.wrapCanceled(ctx, r, err)
}

// fetch runs one network call through the limiter and engine and caches a
// successful GET result when the policy allows it.
func (c *Client) fetch(ctx context.Context, r *request, key, endpoint string) (interface{}, error) {
	c.metrics.RecordRequestStart(r.method, endpoint)
	defer c.metrics.RecordRequestEnd(r.method, endpoint)

	call := r.call(c.baseURL)
	v, err := c.limiter.Run(ctx, func(ctx context.Context) (interface{}, error) {
		return c.engine.Do(ctx, call)
	})
	if err != nil {
		return nil, err
	}

	if r.cacheable() && r.policy.CacheTTL > 0 && ctx.Err() == nil {
		c.store.Set(key, NewEntry(v, c.now(), r.policy.CacheTTL, r.policy.StaleTTL))
		c.metrics.RecordCacheSize(c.store.Len())
	}
	return v, nil
}

// revalidate refreshes key in the background unless a call for it is
// already in flight. Failures are logged and dropped; the stale entry keeps
// serving until it expires.
func (c *Client) revalidate(ctx context.Context, r *request, key, endpoint string) {
	started := c.inflight.TryGo(ctx, key, func(ctx context.Context) (interface{}, error) {
		v, err := c.fetch(ctx, r, key, endpoint)
		c.metrics.RecordRevalidation(endpoint, err)
		if err != nil {
			c.logger.Warn("Background revalidation failed", "key", key, "error", err)
		} else {
			c.logger.Debug("Background revalidation succeeded", "key", key)
		}
		return v, err
	})
	if !started {
		c.logger.Debug("Revalidation skipped, request in flight", "key", key)
	}
}

// wrapCanceled turns a bare context error seen by a caller that gave up
// into a Canceled ClientError.
func (c *Client) wrapCanceled(ctx context.Context, r *request, err error) error {
	if err == nil {
		return nil
	}
	var clientErr *ClientError
	if errors.As(err, &clientErr) || ctx.Err() == nil {
		return err
	}
	return &ClientError{
		Type:      ErrorTypeCanceled,
		Message:   "request canceled",
		Cause:     err,
		Method:    r.method,
		URL:       r.url(c.baseURL),
		Timestamp: time.Now(),
	}
}

// Prefetch warms the cache for path and discards the value.
func (c *Client) Prefetch(ctx context.Context, path string, opts ...RequestOption) error {
	_, err := c.Get(ctx, path, opts...)
	return err
}

// Invalidate drops the cached entry for key together with its subscribers.
func (c *Client) Invalidate(key string) {
	c.store.Delete(key)
	c.metrics.RecordCacheSize(c.store.Len())
}

// Purge drops every cached entry and subscriber.
func (c *Client) Purge() {
	c.store.Clear()
	c.metrics.RecordCacheSize(0)
}

// Store returns the client's cache store.
func (c *Client) Store() *Store {
	return c.store
}

// Limiter returns the client's limiter, or nil when unlimited.
func (c *Client) Limiter() *Limiter {
	return c.limiter
}

// Metrics returns the metrics collector, or nil when metrics are off.
func (c *Client) Metrics() *MetricsCollector {
	return c.metrics
}

// Defaults returns the default request policy.
func (c *Client) Defaults() Policy {
	return c.defaults
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

// GetJSON performs a GET and decodes the body into T.
func GetJSON[T any](ctx context.Context, c *Client, path string, opts ...RequestOption) (T, error) {
	return RequestJSON[T](ctx, c, http.MethodGet, path, opts...)
}

// RequestJSON performs a request and decodes the body into T. A WithParser
// option in opts replaces the JSON decoder but must still produce a T.
func RequestJSON[T any](ctx context.Context, c *Client, method, path string, opts ...RequestOption) (T, error) {
	var zero T
	all := make([]RequestOption, 0, len(opts)+1)
	all = append(all, WithParser(JSON[T]()))
	all = append(all, opts...)

	v, err := c.Request(ctx, method, path, all...)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	if out, ok := v.(T); ok {
		return out, nil
	}
	// A call joined through deduplication or revalidation may have been
	// started with another parser; re-decode its value into T.
	out, err := convert[T](v)
	if err != nil {
		return zero, &ClientError{
			Type:      ErrorTypeParse,
			Message:   fmt.Sprintf("cannot convert %T to %T", v, zero),
			Cause:     err,
			Method:    method,
			URL:       path,
			Timestamp: time.Now(),
		}
	}
	return out, nil
}

func convert[T any](v interface{}) (T, error) {
	var out T
	b, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(b, &out)
	return out, err
}

// Subscribe calls fn with every value of type T written to key.
func Subscribe[T any](c *Client, key string, fn func(T)) (unsubscribe func()) {
	return c.store.Subscribe(key, func(entry CacheEntry) {
		if v, ok := entry.Data.(T); ok {
			fn(v)
		}
	})
}
