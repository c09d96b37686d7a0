// Package zap adapts a zap logger to caseflow.Logger.
package zap

import (
	"sort"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/caseflow"
)

var _ caseflow.Logger = Logger{}

type Logger struct{ L *zap.Logger }

// New wraps l under the "caseflow" name.
func New(l *zap.Logger) Logger { return Logger{L: l.Named("caseflow")} }

func (z Logger) Debug(msg string, f caseflow.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f caseflow.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f caseflow.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f caseflow.Fields) { z.L.Error(msg, fields(f)...) }

// fields converts f in key order; errors become zap.NamedError.
func fields(f caseflow.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		switch v := f[k].(type) {
		case error:
			out = append(out, zap.NamedError(k, v))
		case []string:
			out = append(out, zap.Strings(k, v))
		default:
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}
