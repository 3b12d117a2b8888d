package testlog

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

// CapturingHandler records every log record and forwards it to a delegate.
type CapturingHandler struct {
	handler slog.Handler
	attrs   []slog.Attr
	mu      *sync.Mutex
	Logs    *[]*slog.Record
}

// CaptureLogger returns a test logger together with the handler that captured its records.
func CaptureLogger(t Testing, level slog.Level) (log.Logger, *CapturingHandler) {
	var ch *CapturingHandler
	l := LoggerWithHandlerMod(t, level, func(h slog.Handler) slog.Handler {
		ch = &CapturingHandler{handler: h, mu: new(sync.Mutex), Logs: new([]*slog.Record)}
		return ch
	})
	return l, ch
}

func (c *CapturingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return c.handler.Enabled(ctx, level)
}

func (c *CapturingHandler) Handle(ctx context.Context, r slog.Record) error {
	rec := r.Clone()
	rec.AddAttrs(c.attrs...)
	c.mu.Lock()
	*c.Logs = append(*c.Logs, &rec)
	c.mu.Unlock()
	return c.handler.Handle(ctx, r)
}

func (c *CapturingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CapturingHandler{
		handler: c.handler.WithAttrs(attrs),
		attrs:   append(append([]slog.Attr{}, c.attrs...), attrs...),
		mu:      c.mu,
		Logs:    c.Logs,
	}
}

func (c *CapturingHandler) WithGroup(name string) slog.Handler {
	return &CapturingHandler{
		handler: c.handler.WithGroup(name),
		attrs:   c.attrs,
		mu:      c.mu,
		Logs:    c.Logs,
	}
}

// FindLog returns the first captured record at level whose message equals msg.
func (c *CapturingHandler) FindLog(level slog.Level, msg string) *slog.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range *c.Logs {
		if r.Level == level && r.Message == msg {
			return r
		}
	}
	return nil
}

// AttrValue returns the value of the named attribute on r.
func AttrValue(r *slog.Record, key string) (slog.Value, bool) {
	var (
		out   slog.Value
		found bool
	)
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == key {
			out, found = a.Value, true
			return false
		}
		return true
	})
	return out, found
}
