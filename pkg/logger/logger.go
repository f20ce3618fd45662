// Package logger provides the leveled, component-tagged logging used across
// dietbuddy. Output is line-oriented text on stderr; components are short
// stable tags ("webhook", "agent", "store") so grep stays useful.
package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

type Level int32

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int32(l))
	}
}

var (
	mu       sync.Mutex
	minLevel = INFO
	out      io.Writer = os.Stderr
)

// SetLevel changes the minimum level that gets written.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	minLevel = l
}

// SetOutput redirects log output. Used by tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	out = w
}

func logLine(l Level, component, msg string, fields map[string]any) {
	mu.Lock()
	defer mu.Unlock()
	if l < minLevel {
		return
	}

	var b strings.Builder
	b.WriteString(time.Now().Format("2006-01-02 15:04:05"))
	b.WriteByte(' ')
	b.WriteString(fmt.Sprintf("%-5s", l.String()))
	b.WriteString(" [")
	b.WriteString(component)
	b.WriteString("] ")
	b.WriteString(msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(fmt.Sprintf(" %s=%v", k, fields[k]))
		}
	}
	b.WriteByte('\n')

	_, _ = io.WriteString(out, b.String())
}

func DebugC(component, msg string) { logLine(DEBUG, component, msg, nil) }
func InfoC(component, msg string)  { logLine(INFO, component, msg, nil) }
func WarnC(component, msg string)  { logLine(WARN, component, msg, nil) }
func ErrorC(component, msg string) { logLine(ERROR, component, msg, nil) }

func DebugCF(component, msg string, fields map[string]any) { logLine(DEBUG, component, msg, fields) }
func InfoCF(component, msg string, fields map[string]any)  { logLine(INFO, component, msg, fields) }
func WarnCF(component, msg string, fields map[string]any)  { logLine(WARN, component, msg, fields) }
func ErrorCF(component, msg string, fields map[string]any) { logLine(ERROR, component, msg, fields) }
