package httputil

import (
	"net/http"
)

type Option func(s *HTTPServer)

// HTTPOption changes the underlying server just before it starts. It runs again on
// every restart.
type HTTPOption func(srv *http.Server) error

func WithHTTPOptions(options ...HTTPOption) Option {
	return func(s *HTTPServer) {
		s.httpOpts = append(s.httpOpts, options...)
	}
}

func WithTimeouts(t Timeouts) Option {
	return func(s *HTTPServer) {
		s.timeouts = t
	}
}

func WithMaxHeaderBytes(max int) HTTPOption {
	return func(srv *http.Server) error {
		srv.MaxHeaderBytes = max
		return nil
	}
}
