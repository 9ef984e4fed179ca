package pokeclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ivnvaldz7/pokeclient/internal/backoff"
)

// BackoffStrategy computes the wait before a retry from the zero-based index
// of the failed attempt and the base delay.
type BackoffStrategy = backoff.Strategy

// Call describes one logical HTTP request handled by the Engine.
type Call struct {
	Method     string
	URL        string
	Header     http.Header
	Body       []byte
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	Parser     Parser
}

// Engine performs HTTP calls with per-attempt timeouts, classification and
// retries. It holds no per-call state and is safe for concurrent use.
type Engine struct {
	httpClient *http.Client
	backoff    *backoff.Calculator
	middleware []Middleware
	metrics    *MetricsCollector
	logger     Logger
}

// NewEngine creates an Engine. A nil httpClient uses a fresh *http.Client,
// a nil logger discards output.
func NewEngine(httpClient *http.Client, logger Logger, metrics *MetricsCollector) *Engine {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Engine{
		httpClient: httpClient,
		backoff:    backoff.Default(),
		metrics:    metrics,
		logger:     logger,
	}
}

// SetBackoff replaces the retry backoff strategy.
func (e *Engine) SetBackoff(s BackoffStrategy) {
	if s != nil {
		e.backoff = backoff.NewCalculator(s)
	}
}

// Use appends middleware to the chain run around every attempt.
func (e *Engine) Use(middleware ...Middleware) {
	e.middleware = append(e.middleware, middleware...)
}

// attemptFailure is a classified failure of one attempt.
type attemptFailure struct {
	err       *ClientError
	retryable bool
}

// Do runs call and returns the parsed body. It makes at most call.Retries+1
// attempts. Cancellation of ctx stops the call at once, without retrying.
func (e *Engine) Do(ctx context.Context, call *Call) (interface{}, error) {
	start := time.Now()
	endpoint := endpointOf(call.URL)
	retries := call.Retries
	if retries < 0 {
		retries = 0
	}

	var last *ClientError
	for attempt := 0; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, e.fail(call, ErrorTypeCanceled, "request canceled", err, attempt+1, start, endpoint)
		}
		if attempt > 0 {
			e.metrics.RecordRetry(call.Method, endpoint, attempt)
		}

		v, failure := e.attempt(ctx, call, attempt+1, start, endpoint)
		if failure == nil {
			return v, nil
		}
		if !failure.retryable {
			e.metrics.RecordError(failure.err.Type, call.Method, endpoint)
			return nil, failure.err
		}
		last = failure.err

		if attempt < retries {
			delay, err := e.backoff.Wait(ctx, attempt, call.RetryDelay)
			e.logger.Debug("Retrying request", "method", call.Method, "url", call.URL,
				"attempt", attempt+1, "delay", delay, "error", last)
			if err != nil {
				return nil, e.fail(call, ErrorTypeCanceled, "request canceled during backoff", err, attempt+1, start, endpoint)
			}
		}
	}

	e.metrics.RecordError(ErrorTypeExhausted, call.Method, endpoint)
	return nil, &ClientError{
		Type:       ErrorTypeExhausted,
		Message:    "request failed after retries",
		Cause:      last,
		Method:     call.Method,
		URL:        call.URL,
		StatusCode: last.StatusCode,
		Attempt:    retries + 1,
		MaxRetries: retries,
		Timestamp:  time.Now(),
		Duration:   time.Since(start),
	}
}

func (e *Engine) attempt(ctx context.Context, call *Call, attempt int, start time.Time, endpoint string) (interface{}, *attemptFailure) {
	var (
		attemptCtx context.Context
		cancel     context.CancelFunc
	)
	if call.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, call.Timeout)
	} else {
		attemptCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	newErr := func(errorType, message string, cause error, status int) *ClientError {
		return &ClientError{
			Type:       errorType,
			Message:    message,
			Cause:      cause,
			Method:     call.Method,
			URL:        call.URL,
			StatusCode: status,
			Attempt:    attempt,
			MaxRetries: call.Retries,
			Timestamp:  time.Now(),
			Duration:   time.Since(start),
		}
	}
	// transportFailure classifies an error raised while the attempt was on
	// the wire: the caller leaving wins over the attempt timing out.
	transportFailure := func(message string, err error) *attemptFailure {
		switch {
		case ctx.Err() != nil:
			return &attemptFailure{err: newErr(ErrorTypeCanceled, "request canceled", ctx.Err(), 0)}
		case errors.Is(attemptCtx.Err(), context.DeadlineExceeded):
			return &attemptFailure{err: newErr(ErrorTypeTimeout, fmt.Sprintf("attempt timed out after %v", call.Timeout), err, 0), retryable: true}
		default:
			return &attemptFailure{err: newErr(ErrorTypeNetwork, message, err, 0), retryable: true}
		}
	}

	var body io.Reader
	if len(call.Body) > 0 {
		body = bytes.NewReader(call.Body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, call.Method, call.URL, body)
	if err != nil {
		return nil, &attemptFailure{err: newErr(ErrorTypeValidation, "invalid request", err, 0)}
	}
	for k, vs := range call.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	attemptStart := time.Now()
	e.logger.Debug("Sending request", "method", call.Method, "url", call.URL, "attempt", attempt)

	resp, err := e.roundTrip(req)
	if err != nil {
		e.metrics.RecordRequest(call.Method, endpoint, 0, time.Since(attemptStart))
		f := transportFailure("network request failed", err)
		e.logAttempt(call, attempt, 0, attemptStart, f.err)
		return nil, f
	}
	defer resp.Body.Close()

	e.metrics.RecordRequest(call.Method, endpoint, resp.StatusCode, time.Since(attemptStart))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

		message := fmt.Sprintf("request failed with status %d", resp.StatusCode)
		errorType := ErrorTypeClient
		if resp.StatusCode >= http.StatusInternalServerError {
			errorType = ErrorTypeServer
		}
		f := &attemptFailure{
			err:       newErr(errorType, message, nil, resp.StatusCode),
			retryable: isRetryableStatus(resp.StatusCode),
		}
		e.logAttempt(call, attempt, resp.StatusCode, attemptStart, f.err)
		return nil, f
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		f := transportFailure("reading response body failed", err)
		e.logAttempt(call, attempt, resp.StatusCode, attemptStart, f.err)
		return nil, f
	}

	parse := call.Parser
	if parse == nil {
		parse = decodeAny
	}
	v, err := parse(raw)
	if err != nil {
		f := &attemptFailure{err: newErr(ErrorTypeParse, "response parsing failed", err, resp.StatusCode)}
		e.logAttempt(call, attempt, resp.StatusCode, attemptStart, f.err)
		return nil, f
	}

	e.logAttempt(call, attempt, resp.StatusCode, attemptStart, nil)
	return v, nil
}

func (e *Engine) roundTrip(req *http.Request) (*http.Response, error) {
	if len(e.middleware) == 0 {
		return e.httpClient.Do(req)
	}

	current := RoundTripper(RoundTripperFunc(e.httpClient.Do))
	for i := len(e.middleware) - 1; i >= 0; i-- {
		middleware := e.middleware[i]
		next := current
		current = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return middleware(r, next)
		})
	}
	return current.RoundTrip(req)
}

func (e *Engine) fail(call *Call, errorType, message string, cause error, attempt int, start time.Time, endpoint string) *ClientError {
	e.metrics.RecordError(errorType, call.Method, endpoint)
	return &ClientError{
		Type:       errorType,
		Message:    message,
		Cause:      cause,
		Method:     call.Method,
		URL:        call.URL,
		Attempt:    attempt,
		MaxRetries: call.Retries,
		Timestamp:  time.Now(),
		Duration:   time.Since(start),
	}
}

func (e *Engine) logAttempt(call *Call, attempt, status int, start time.Time, err *ClientError) {
	if err != nil {
		e.logger.Debug("Request attempt failed", "method", call.Method, "url", call.URL,
			"attempt", attempt, "status", status, "duration", time.Since(start), "type", err.Type, "error", err.Error())
		return
	}
	e.logger.Debug("Request attempt succeeded", "method", call.Method, "url", call.URL,
		"attempt", attempt, "status", status, "duration", time.Since(start))
}

// endpointOf returns host+path of rawURL for metric labels.
func endpointOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "unknown"
	}

	var builder strings.Builder
	builder.WriteString(u.Host)
	if u.Path != "" && u.Path != "/" {
		builder.WriteString(u.Path)
	} else {
		builder.WriteByte('/')
	}
	return builder.String()
}
