package term

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pterm/pterm"
)

type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

var (
	lvl    = LevelInfo
	out    io.Writer = os.Stdout
	errOut io.Writer = os.Stderr
	mu     sync.Mutex
)

func SetLevel(level Level) {
	mu.Lock()
	defer mu.Unlock()
	lvl = level
}

func GetLevel() Level {
	mu.Lock()
	defer mu.Unlock()
	return lvl
}

// SetOutput redirects messages up to warnings to w, and errors to errW.
// A nil writer restores the default.
func SetOutput(w, errW io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out, errOut = os.Stdout, os.Stderr
	if w != nil {
		out = w
	}
	if errW != nil {
		errOut = errW
	}
}

// Output is the writer used for regular messages, tables and progress.
func Output() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return out
}

func printLine(level Level, color pterm.Color, message string) {
	mu.Lock()
	defer mu.Unlock()
	if level < lvl {
		return
	}
	w := out
	if level >= LevelError {
		w = errOut
	}
	fmt.Fprintln(w, color.Sprint(message))
}

func Debug(a ...any) {
	printLine(LevelDebug, pterm.FgLightCyan, fmt.Sprint(a...))
}

func Debugf(format string, a ...any) {
	printLine(LevelDebug, pterm.FgLightCyan, fmt.Sprintf(format, a...))
}

func Info(a ...any) {
	printLine(LevelInfo, pterm.FgLightGreen, fmt.Sprint(a...))
}

func Infof(format string, a ...any) {
	printLine(LevelInfo, pterm.FgLightGreen, fmt.Sprintf(format, a...))
}

func Warn(a ...any) {
	printLine(LevelWarn, pterm.FgYellow, fmt.Sprint(a...))
}

func Warnf(format string, a ...any) {
	printLine(LevelWarn, pterm.FgYellow, fmt.Sprintf(format, a...))
}

// Error is always displayed, whatever the level.
func Error(a ...any) {
	printLine(LevelError, pterm.FgLightRed, fmt.Sprint(a...))
}

func Errorf(format string, a ...any) {
	printLine(LevelError, pterm.FgLightRed, fmt.Sprintf(format, a...))
}

// Table renders the rows to the output, the first row being the header.
func Table(boxed bool, data pterm.TableData) error {
	table := pterm.DefaultTable.WithHasHeader().WithBoxed(boxed).WithData(data)
	rendered, err := table.Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(Output(), rendered)
	return err
}
