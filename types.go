package pokeclient

import (
	"net/http"
)

// Option configures a Client at construction.
type Option func(*Client)

// Middleware wraps every HTTP attempt made by the Engine. It must call next
// to continue the chain, or return a response or error of its own.
type Middleware func(req *http.Request, next RoundTripper) (*http.Response, error)

// RoundTripper represents the HTTP transport interface
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// RoundTripperFunc is a helper type for middleware
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// UserAgent returns a Middleware setting the User-Agent header on requests
// that do not carry one.
func UserAgent(ua string) Middleware {
	return func(req *http.Request, next RoundTripper) (*http.Response, error) {
		if req.Header.Get("User-Agent") == "" {
			req.Header.Set("User-Agent", ua)
		}
		return next.RoundTrip(req)
	}
}
