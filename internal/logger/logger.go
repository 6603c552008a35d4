// Package logger provides the server's append-only, fixed-format log
// file, per spec.md §4.7: a single line per event, `[YYYY-MM-DD
// HH:MM:SS] [<level>] <message>`, two severities, never fatal on I/O
// failure.
package logger

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// timeFormat is the on-disk timestamp layout spec.md §4.7 mandates.
const timeFormat = "2006-01-02 15:04:05"

// Logger appends timestamped lines to a fixed file path using zerolog's
// console writer, configured to emit exactly the format spec.md requires
// rather than zerolog's own default console layout.
type Logger struct {
	zl zerolog.Logger
	f  *os.File
}

// Open creates or appends to the log file at path and returns a Logger
// writing to it. The caller is responsible for calling Close on shutdown.
func Open(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: opening %s: %w", path, err)
	}

	writer := zerolog.ConsoleWriter{
		Out:        f,
		NoColor:    true,
		TimeFormat: timeFormat,
		PartsOrder: []string{
			zerolog.TimestampFieldName,
			zerolog.LevelFieldName,
			zerolog.MessageFieldName,
		},
		FormatTimestamp: func(i interface{}) string {
			ts, ok := i.(string)
			if !ok {
				return fmt.Sprintf("[%v]", i)
			}
			t, err := time.Parse(zerolog.TimeFieldFormat, ts)
			if err != nil {
				return "[" + ts + "]"
			}
			return "[" + t.Format(timeFormat) + "]"
		},
		FormatLevel: func(i interface{}) string {
			lvl, _ := i.(string)
			if lvl == zerolog.ErrorLevel.String() {
				return "[ERROR]"
			}
			return "[INFO]"
		},
		FormatMessage: func(i interface{}) string {
			if i == nil {
				return ""
			}
			return fmt.Sprintf("%s", i)
		},
		FormatFieldName:  func(i interface{}) string { return "" },
		FormatFieldValue: func(i interface{}) string { return "" },
	}

	zl := zerolog.New(writer).With().Timestamp().Logger()
	return &Logger{zl: zl, f: f}, nil
}

// Info logs msg at informational severity ("level 1" in spec.md terms).
// A write failure is swallowed: the logger never crashes the server.
func (l *Logger) Info(msg string) {
	l.zl.Info().Msg(msg)
}

// Error logs msg at error severity ("level 2" in spec.md terms).
func (l *Logger) Error(msg string) {
	l.zl.Error().Msg(msg)
}

// Close releases the underlying file handle.
func (l *Logger) Close() error {
	if l == nil || l.f == nil {
		return nil
	}
	return l.f.Close()
}
