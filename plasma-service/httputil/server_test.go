package httputil

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func get(t *testing.T, url string) string {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestServerRestart(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	srv, err := StartHTTPServer("127.0.0.1:0", handler)
	require.NoError(t, err)
	require.False(t, srv.Closed())
	require.Equal(t, "ok", get(t, srv.HTTPEndpoint()))
	require.ErrorIs(t, srv.Start(), ErrAlreadyStarted)

	require.NoError(t, srv.Stop(context.Background()))
	require.True(t, srv.Closed())
	require.Nil(t, srv.Addr())
	require.Empty(t, srv.HTTPEndpoint())
	require.NoError(t, srv.Stop(context.Background()))

	require.NoError(t, srv.Start())
	require.Equal(t, "ok", get(t, srv.HTTPEndpoint()))
	require.NoError(t, srv.Stop(context.Background()))
}

func TestServerBindFailure(t *testing.T) {
	first, err := StartHTTPServer("127.0.0.1:0", http.NotFoundHandler())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, first.Stop(context.Background())) })

	_, err = StartHTTPServer(first.Addr().String(), http.NotFoundHandler())
	require.ErrorContains(t, err, "failed to bind")
}

func TestHTTPOptions(t *testing.T) {
	var applied *http.Server
	srv := NewHTTPServer("127.0.0.1:0", http.NotFoundHandler(), WithHTTPOptions(
		WithMaxHeaderBytes(1<<12),
		func(s *http.Server) error {
			applied = s
			return nil
		},
	))
	require.NoError(t, srv.Start())
	t.Cleanup(func() { require.NoError(t, srv.Stop(context.Background())) })
	require.Equal(t, 1<<12, applied.MaxHeaderBytes)
	require.Equal(t, DefaultTimeouts.ReadHeaderTimeout, applied.ReadHeaderTimeout)

	boom := errors.New("boom")
	failing := NewHTTPServer("127.0.0.1:0", http.NotFoundHandler(), WithHTTPOptions(func(*http.Server) error { return boom }))
	require.ErrorIs(t, failing.Start(), boom)
	require.True(t, failing.Closed())
}
