package log

import (
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"reflect"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	elog "github.com/ethereum/go-ethereum/log"
)

const recordTimeFormat = "2006-01-02T15:04:05.000-0700"

// JSONMsHandlerWithLevel writes JSON records at or above level.
func JSONMsHandlerWithLevel(wr io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(wr, recordOptions(level, false))
}

// LogfmtMsHandlerWithLevel writes logfmt records at or above level.
func LogfmtMsHandlerWithLevel(wr io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(wr, recordOptions(level, true))
}

// recordOptions shortens the builtin keys to t and lvl. In logfmt the timestamp is
// rendered with millisecond precision; JSON keeps the native encoding.
func recordOptions(level slog.Leveler, logfmt bool) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if len(groups) == 0 {
				switch attr.Key {
				case slog.TimeKey:
					attr.Key = "t"
				case slog.LevelKey:
					if l, ok := attr.Value.Any().(slog.Level); ok {
						return slog.String("lvl", elog.LevelString(l))
					}
				}
			}
			attr.Value = chainValue(attr.Value, logfmt)
			return attr
		},
	}
}

// chainValue flattens amounts, positions, addresses and raw bytes into strings.
func chainValue(v slog.Value, logfmt bool) slog.Value {
	if v.Kind() == slog.KindTime {
		if logfmt {
			return slog.StringValue(v.Time().Format(recordTimeFormat))
		}
		return v
	}
	if v.Kind() != slog.KindAny {
		return v
	}
	switch x := v.Any().(type) {
	case time.Time:
		if logfmt {
			return slog.StringValue(x.Format(recordTimeFormat))
		}
	case *big.Int:
		if x == nil {
			return slog.StringValue("<nil>")
		}
		return slog.StringValue(x.String())
	case *uint256.Int:
		if x == nil {
			return slog.StringValue("<nil>")
		}
		return slog.StringValue(x.Dec())
	case common.Address:
		return slog.StringValue(x.Hex())
	case []byte:
		return slog.StringValue(hexutil.Encode(x))
	case fmt.Stringer:
		if isNilPointer(x) {
			return slog.StringValue("<nil>")
		}
		return slog.StringValue(x.String())
	}
	return v
}

func isNilPointer(x any) bool {
	if x == nil {
		return true
	}
	rv := reflect.ValueOf(x)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
