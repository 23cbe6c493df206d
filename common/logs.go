package common

import (
	"errors"
	"fmt"

	"github.com/devopsext/utils"
)

// Logs fans a record out to every registered logger. The Span* variants
// hand the active span to loggers that correlate records with traces.
// Loggers resolve their caller a fixed number of frames above Logs, so the
// methods call them directly.
type Logs struct {
	loggers []Logger
}

// logMessage renders obj the way loggers print it.
func logMessage(obj interface{}, args ...interface{}) string {

	switch v := obj.(type) {
	case error:
		return v.Error()
	case string:
		if len(args) > 0 {
			return fmt.Sprintf(v, args...)
		}
		return v
	case fmt.Stringer:
		return v.String()
	}
	return ""
}

func (ls *Logs) Info(obj interface{}, args ...interface{}) Logger {
	for _, l := range ls.loggers {
		l.Info(obj, args...)
	}
	return ls
}

func (ls *Logs) SpanInfo(span TracerSpan, obj interface{}, args ...interface{}) Logger {
	for _, l := range ls.loggers {
		l.SpanInfo(span, obj, args...)
	}
	return ls
}

func (ls *Logs) Warn(obj interface{}, args ...interface{}) Logger {
	for _, l := range ls.loggers {
		l.Warn(obj, args...)
	}
	return ls
}

func (ls *Logs) SpanWarn(span TracerSpan, obj interface{}, args ...interface{}) Logger {
	for _, l := range ls.loggers {
		l.SpanWarn(span, obj, args...)
	}
	return ls
}

func (ls *Logs) Error(obj interface{}, args ...interface{}) Logger {
	for _, l := range ls.loggers {
		l.Error(obj, args...)
	}
	return ls
}

// SpanError also marks the span as errored with the rendered message.
func (ls *Logs) SpanError(span TracerSpan, obj interface{}, args ...interface{}) Logger {

	for _, l := range ls.loggers {
		l.SpanError(span, obj, args...)
	}
	if span == nil || obj == nil {
		return ls
	}

	if err, ok := obj.(error); ok && len(args) == 0 {
		span.Error(err)
		return ls
	}
	if message := logMessage(obj, args...); !utils.IsEmpty(message) {
		span.Error(errors.New(message))
	}
	return ls
}

func (ls *Logs) Debug(obj interface{}, args ...interface{}) Logger {
	for _, l := range ls.loggers {
		l.Debug(obj, args...)
	}
	return ls
}

func (ls *Logs) SpanDebug(span TracerSpan, obj interface{}, args ...interface{}) Logger {
	for _, l := range ls.loggers {
		l.SpanDebug(span, obj, args...)
	}
	return ls
}

func (ls *Logs) Panic(obj interface{}, args ...interface{}) {
	for _, l := range ls.loggers {
		l.Panic(obj, args...)
	}
}

func (ls *Logs) SpanPanic(span TracerSpan, obj interface{}, args ...interface{}) {
	for _, l := range ls.loggers {
		l.SpanPanic(span, obj, args...)
	}
}

func (ls *Logs) Stack(offset int) Logger {
	for _, l := range ls.loggers {
		l.Stack(offset)
	}
	return ls
}

func (ls *Logs) Len() int {
	return len(ls.loggers)
}

func (ls *Logs) Register(l Logger) {
	if ls != nil && l != nil {
		ls.loggers = append(ls.loggers, l)
	}
}

func NewLogs() *Logs {
	return &Logs{}
}
