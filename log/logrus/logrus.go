// Package logrus adapts a logrus entry to caseflow.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/caseflow"
)

var _ caseflow.Logger = Logger{}

// Logger writes caseflow records through E. Values under the "err" field are
// attached with WithError so formatters render them the logrus way.
type Logger struct{ E *logrus.Entry }

// New wraps l, tagging every record with component=caseflow.
func New(l *logrus.Logger) Logger {
	return Logger{E: l.WithField("component", "caseflow")}
}

func (l Logger) Debug(msg string, f caseflow.Fields) { l.with(f).Debug(msg) }
func (l Logger) Info(msg string, f caseflow.Fields)  { l.with(f).Info(msg) }
func (l Logger) Warn(msg string, f caseflow.Fields)  { l.with(f).Warn(msg) }
func (l Logger) Error(msg string, f caseflow.Fields) { l.with(f).Error(msg) }

func (l Logger) with(f caseflow.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	lf := make(logrus.Fields, len(f))
	var err error
	for k, v := range f {
		if e, ok := v.(error); ok && k == "err" {
			err = e
			continue
		}
		lf[k] = v
	}
	e := l.E.WithFields(lf)
	if err != nil {
		e = e.WithError(err)
	}
	return e
}
