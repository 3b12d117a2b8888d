// Package httputil runs the small HTTP endpoints of the plasma tools.
package httputil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

var ErrAlreadyStarted = errors.New("http server already started")

// Timeouts bound every connection the server accepts.
type Timeouts struct {
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

var DefaultTimeouts = Timeouts{
	ReadTimeout:       30 * time.Second,
	ReadHeaderTimeout: 10 * time.Second,
	WriteTimeout:      30 * time.Second,
	IdleTimeout:       120 * time.Second,
}

// HTTPServer serves one handler on a TCP address. A zero port binds any free port,
// which Addr and HTTPEndpoint report once started. It can be stopped and started again.
type HTTPServer struct {
	mu       sync.RWMutex
	listener net.Listener
	srv      *http.Server
	// done receives the result of Serve once it returns.
	done chan error

	listenAddr string
	handler    http.Handler
	timeouts   Timeouts
	httpOpts   []HTTPOption
}

func NewHTTPServer(addr string, handler http.Handler, opts ...Option) *HTTPServer {
	s := &HTTPServer{listenAddr: addr, handler: handler, timeouts: DefaultTimeouts}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func StartHTTPServer(addr string, handler http.Handler, opts ...Option) (*HTTPServer, error) {
	out := NewHTTPServer(addr, handler, opts...)
	return out, out.Start()
}

// Start binds the listener and returns once the server is serving, or with the error
// that stopped it from coming up.
func (s *HTTPServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return ErrAlreadyStarted
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.timeouts.ReadTimeout,
		ReadHeaderTimeout: s.timeouts.ReadHeaderTimeout,
		WriteTimeout:      s.timeouts.WriteTimeout,
		IdleTimeout:       s.timeouts.IdleTimeout,
	}
	for _, opt := range s.httpOpts {
		if err := opt(srv); err != nil {
			return fmt.Errorf("failed to apply http option: %w", err)
		}
	}
	listener, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to bind to address %q: %w", s.listenAddr, err)
	}

	// buffered so Serve never blocks on an unread result
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(listener)
	}()

	standup := time.NewTimer(10 * time.Millisecond)
	defer standup.Stop()
	select {
	case err := <-done:
		return fmt.Errorf("http server failed: %w", err)
	case <-standup.C:
	}
	s.srv, s.listener, s.done = srv, listener, done
	return nil
}

func (s *HTTPServer) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.srv == nil
}

// Stop shuts the server down gracefully and force-closes it if ctx ends first. Any
// error Serve returned other than the normal close is reported.
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv == nil {
		return nil
	}
	err := s.srv.Shutdown(ctx)
	if err != nil && errors.Is(err, ctx.Err()) {
		err = s.srv.Close()
	}
	if err != nil {
		return err
	}
	serveErr := <-s.done
	s.srv, s.listener, s.done = nil, nil, nil
	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", serveErr)
	}
	return nil
}

// Addr is the bound address, or nil while stopped.
func (s *HTTPServer) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// HTTPEndpoint is the http URL of the server, or empty while stopped.
func (s *HTTPServer) HTTPEndpoint() string {
	addr := s.Addr()
	if addr == nil {
		return ""
	}
	return "http://" + addr.String()
}
