package pokeclient

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// WithBaseURL sets the URL every request path is resolved against.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithStore shares an existing cache store with the client.
func WithStore(store *Store) Option {
	return func(c *Client) {
		c.store = store
	}
}

// WithLimiter shares an existing limiter with the client. A nil limiter
// disables concurrency limiting.
func WithLimiter(limiter *Limiter) Option {
	return func(c *Client) {
		c.limiter = limiter
	}
}

// WithMaxConcurrent bounds concurrent network calls with a new Limiter.
func WithMaxConcurrent(n int) Option {
	return func(c *Client) {
		c.limiter = NewLimiter(n)
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithDefaults sets the policy applied to requests that do not override it.
func WithDefaults(p Policy) Option {
	return func(c *Client) {
		c.defaults = p
	}
}

// WithBackoff sets the retry backoff strategy.
func WithBackoff(s BackoffStrategy) Option {
	return func(c *Client) {
		c.backoff = s
	}
}

// WithMiddleware adds middleware to the client
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithMetrics enables Prometheus metrics collection
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithLogger sets the logger
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithZapLogger logs through l.
func WithZapLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = NewZapLogger(l)
	}
}

// WithClock replaces time.Now for cache freshness decisions.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// ValidateConfiguration validates the client configuration and returns an error if invalid
func (c *Client) ValidateConfiguration() error {
	var errors []string

	errors = append(errors, c.validateBaseURL()...)
	errors = append(errors, c.validatePolicy()...)
	errors = append(errors, c.validateMiddlewareConfig()...)
	errors = append(errors, c.validateComponents()...)
	errors = append(errors, c.validateExtremeValues()...)

	if len(errors) > 0 {
		return &ClientError{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", errors),
		}
	}

	return nil
}

func (c *Client) validateBaseURL() []string {
	if c.baseURL == "" {
		return nil
	}
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return []string{fmt.Sprintf("baseURL is not a valid URL: %v", err)}
	}
	if !u.IsAbs() || u.Host == "" {
		return []string{"baseURL must be an absolute URL"}
	}
	return nil
}

// validatePolicy validates the default request policy
func (c *Client) validatePolicy() []string {
	var errors []string
	p := c.defaults

	if p.Retries < 0 {
		errors = append(errors, "retries must be non-negative")
	}
	if p.Timeout < 0 {
		errors = append(errors, "timeout must be non-negative")
	}
	if p.RetryDelay < 0 {
		errors = append(errors, "retryDelay must be non-negative")
	}
	if p.CacheTTL < 0 {
		errors = append(errors, "cacheTTL must be non-negative")
	}
	if p.StaleTTL < 0 {
		errors = append(errors, "staleTTL must be non-negative")
	}
	if p.SWR && p.StaleTTL == 0 && p.CacheTTL > 0 {
		errors = append(errors, "swr has no effect without a staleTTL")
	}

	return errors
}

// validateMiddlewareConfig validates middleware configuration
func (c *Client) validateMiddlewareConfig() []string {
	var errors []string

	for i, middleware := range c.middleware {
		if middleware == nil {
			errors = append(errors, fmt.Sprintf("middleware[%d] cannot be nil", i))
		}
	}

	return errors
}

func (c *Client) validateComponents() []string {
	var errors []string

	if c.httpClient == nil {
		errors = append(errors, "HTTP client cannot be nil")
	}
	if c.store == nil {
		errors = append(errors, "store cannot be nil")
	}
	if c.now == nil {
		errors = append(errors, "clock cannot be nil")
	}

	return errors
}

// validateExtremeValues validates that configuration values are within reasonable bounds
func (c *Client) validateExtremeValues() []string {
	var errors []string
	p := c.defaults

	if p.Retries > 100 {
		errors = append(errors, "retries > 100 may cause excessive resource usage")
	}
	if p.RetryDelay > 10*time.Minute {
		errors = append(errors, "retryDelay > 10m may cause very long delays")
	}
	if p.Timeout > 10*time.Minute {
		errors = append(errors, "timeout > 10m may cause requests to hang for too long")
	}
	if p.CacheTTL+p.StaleTTL > 24*time.Hour {
		errors = append(errors, "cacheTTL + staleTTL > 24h may cause stale data issues")
	}

	return errors
}
