package pokeclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Policy holds the per-request behaviour of the client. Client defaults are
// set with WithDefaults and overridden per call with RequestOptions.
type Policy struct {
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	CacheTTL   time.Duration
	StaleTTL   time.Duration
	Dedupe     bool
	SWR        bool
}

// DefaultPolicy returns the policy used when none is configured: 8s attempt
// timeout, 2 retries starting at 350ms, no caching, deduplication on.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:    8 * time.Second,
		Retries:    2,
		RetryDelay: 350 * time.Millisecond,
		Dedupe:     true,
	}
}

// Parser turns a successful response body into a value. Returning an error
// fails the request with a non-retryable Parse error.
type Parser func(body []byte) (interface{}, error)

// JSON returns a Parser decoding the body into a T. An empty body decodes
// to nil.
func JSON[T any]() Parser {
	return func(body []byte) (interface{}, error) {
		if len(bytes.TrimSpace(body)) == 0 {
			return nil, nil
		}
		var v T
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

func decodeAny(body []byte) (interface{}, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// RequestOption configures a single request.
type RequestOption func(*request)

type request struct {
	method   string
	path     string
	query    url.Values
	header   http.Header
	body     []byte
	cacheKey string
	policy   Policy
	parser   Parser
	err      error
}

// WithQuery adds every value of q to the query string.
func WithQuery(q url.Values) RequestOption {
	return func(r *request) {
		for k, vs := range q {
			for _, v := range vs {
				r.query.Add(k, v)
			}
		}
	}
}

// WithQueryParam adds one query parameter. Values are formatted with %v.
func WithQueryParam(key string, value interface{}) RequestOption {
	return func(r *request) {
		r.query.Add(key, fmt.Sprint(value))
	}
}

// WithHeader sets a request header.
func WithHeader(key, value string) RequestOption {
	return func(r *request) {
		r.header.Set(key, value)
	}
}

// WithBody sets the raw request body.
func WithBody(body []byte) RequestOption {
	return func(r *request) {
		r.body = body
	}
}

// WithJSONBody encodes v as the request body.
func WithJSONBody(v interface{}) RequestOption {
	return func(r *request) {
		b, err := json.Marshal(v)
		if err != nil {
			r.err = fmt.Errorf("encode request body: %w", err)
			return
		}
		r.body = b
		r.header.Set("Content-Type", "application/json")
	}
}

// WithCacheKey overrides the derived cache and deduplication key.
func WithCacheKey(key string) RequestOption {
	return func(r *request) {
		r.cacheKey = key
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) RequestOption {
	return func(r *request) {
		r.policy.Timeout = d
	}
}

// WithRetries sets how many times a retryable failure is retried.
func WithRetries(n int) RequestOption {
	return func(r *request) {
		r.policy.Retries = n
	}
}

// WithRetryDelay sets the base backoff delay.
func WithRetryDelay(d time.Duration) RequestOption {
	return func(r *request) {
		r.policy.RetryDelay = d
	}
}

// WithCacheTTL sets how long a result stays fresh. Zero disables caching.
func WithCacheTTL(d time.Duration) RequestOption {
	return func(r *request) {
		r.policy.CacheTTL = d
	}
}

// WithStaleTTL sets how long an expired result may still be served with SWR.
func WithStaleTTL(d time.Duration) RequestOption {
	return func(r *request) {
		r.policy.StaleTTL = d
	}
}

// WithDedupe toggles sharing of in-flight requests with the same key.
func WithDedupe(enabled bool) RequestOption {
	return func(r *request) {
		r.policy.Dedupe = enabled
	}
}

// WithSWR toggles stale-while-revalidate.
func WithSWR(enabled bool) RequestOption {
	return func(r *request) {
		r.policy.SWR = enabled
	}
}

// WithParser sets the response parser.
func WithParser(p Parser) RequestOption {
	return func(r *request) {
		r.parser = p
	}
}

// WithPolicy replaces the whole policy for the request.
func WithPolicy(p Policy) RequestOption {
	return func(r *request) {
		r.policy = p
	}
}

func newRequest(method, path string, defaults Policy, opts []RequestOption) *request {
	r := &request{
		method: strings.ToUpper(method),
		query:  url.Values{},
		header: http.Header{},
		policy: defaults,
	}
	if r.method == "" {
		r.method = http.MethodGet
	}

	// A query string already present in path merges with WithQuery values.
	if i := strings.IndexByte(path, '?'); i >= 0 {
		q, err := url.ParseQuery(path[i+1:])
		if err != nil {
			r.err = fmt.Errorf("parse query of %q: %w", path, err)
		}
		for k, vs := range q {
			r.query[k] = append(r.query[k], vs...)
		}
		path = path[:i]
	}
	r.path = path

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// key returns the explicit cache key or METHOD:path?sorted-query.
func (r *request) key() string {
	if r.cacheKey != "" {
		return r.cacheKey
	}
	return r.method + ":" + r.pathWithQuery()
}

func (r *request) pathWithQuery() string {
	if len(r.query) == 0 {
		return r.path
	}
	return r.path + "?" + r.query.Encode()
}

func (r *request) cacheable() bool {
	return r.method == http.MethodGet
}

func (r *request) url(baseURL string) string {
	target := r.pathWithQuery()
	if baseURL == "" || strings.HasPrefix(r.path, "http://") || strings.HasPrefix(r.path, "https://") {
		return target
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(target, "/")
}

func (r *request) call(baseURL string) *Call {
	return &Call{
		Method:     r.method,
		URL:        r.url(baseURL),
		Header:     r.header,
		Body:       r.body,
		Timeout:    r.policy.Timeout,
		Retries:    r.policy.Retries,
		RetryDelay: r.policy.RetryDelay,
		Parser:     r.parser,
	}
}

// CacheKey returns the key a request built from the same arguments would use
// for caching and deduplication.
func CacheKey(method, path string, opts ...RequestOption) string {
	return newRequest(method, path, Policy{}, opts).key()
}
