package term

import "fmt"

// Logger sends the library debug lines to the terminal
type Logger struct {
	prefix string
}

func NewLogger(prefix string) *Logger {
	return &Logger{prefix: prefix}
}

func (l *Logger) Print(a ...any) {
	if GetLevel() > LevelDebug {
		return
	}
	Debug(l.prefix + fmt.Sprint(a...))
}

func (l *Logger) Printf(format string, a ...any) {
	if GetLevel() > LevelDebug {
		return
	}
	Debugf(l.prefix+format, a...)
}
