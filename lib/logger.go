package lib

import "testing"

type Logger interface {
	Print(a ...any)
	Printf(format string, a ...any)
}

type NoLog struct{}

func (l *NoLog) Print(a ...any)                 {}
func (l *NoLog) Printf(format string, a ...any) {}

// WithPrefix returns a logger adding a "prefix: " in front of every line.
// A nil logger gives a NoLog.
func WithPrefix(logger Logger, prefix string) Logger {
	if logger == nil {
		return &NoLog{}
	}
	if _, ok := logger.(*NoLog); ok {
		return logger
	}
	return &prefixLogger{
		log:    logger,
		prefix: prefix,
	}
}

type prefixLogger struct {
	log    Logger
	prefix string
}

func (l *prefixLogger) Print(a ...any) {
	l.log.Print(append([]any{l.prefix + ": "}, a...)...)
}

func (l *prefixLogger) Printf(format string, a ...any) {
	l.log.Printf(l.prefix+": "+format, a...)
}

type TestLogger struct {
	t      *testing.T
	prefix string
}

func NewTestLogger(t *testing.T, prefix string) *TestLogger {
	return &TestLogger{
		t:      t,
		prefix: prefix,
	}
}

func (l *TestLogger) Print(a ...any) {
	l.t.Helper()
	if l.prefix == "" {
		l.t.Log(a...)
	} else {
		l.t.Log(append([]any{l.prefix + ":"}, a...)...)
	}
}

func (l *TestLogger) Printf(format string, a ...any) {
	l.t.Helper()
	if l.prefix != "" {
		format = l.prefix + ": " + format
	}
	l.t.Logf(format, a...)
}
