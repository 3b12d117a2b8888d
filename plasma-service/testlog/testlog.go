// Package testlog routes log output into the unit test log.
package testlog

import (
	"bytes"
	"log/slog"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

var useColorInTestLog = os.Getenv("PLASMA_TESTLOG_DISABLE_COLOR") != "true"

// Testing is the subset of testing.TB the logger writes through.
type Testing interface {
	Logf(format string, args ...any)
	Helper()
	Name() string
}

// testWriter forwards each complete line written by the handler to t.Logf.
type testWriter struct {
	t   Testing
	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *testWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadBytes('\n')
		if err != nil {
			// partial line, keep it for the next write
			w.buf.Write(line)
			break
		}
		w.t.Logf("%s", bytes.TrimRight(line, "\n"))
	}
	return len(p), nil
}

// Logger returns a logger which logs to the unit test log of t.
func Logger(t Testing, level slog.Level) log.Logger {
	return LoggerWithHandlerMod(t, level)
}

// LoggerWithHandlerMod is Logger with handler wrappers applied innermost first.
func LoggerWithHandlerMod(t Testing, level slog.Level, mods ...func(slog.Handler) slog.Handler) log.Logger {
	var h slog.Handler = log.NewTerminalHandlerWithLevel(&testWriter{t: t}, level, useColorInTestLog)
	for _, mod := range mods {
		h = mod(h)
	}
	return log.NewLogger(h)
}
