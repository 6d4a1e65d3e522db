package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
)

// LogLevel is the minimum severity a logger emits.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[LogLevel]string{
	LevelDebug: "debug",
	LevelInfo:  "info",
	LevelWarn:  "warn",
	LevelError: "error",
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "unknown"
}

// ParseLevel maps LOG_LEVEL values to a LogLevel. Unknown values yield LevelInfo.
func ParseLevel(levelStr string) LogLevel {
	s := strings.ToLower(strings.TrimSpace(levelStr))
	if s == "warning" {
		return LevelWarn
	}
	for lvl, name := range levelNames {
		if name == s {
			return lvl
		}
	}
	return LevelInfo
}

// StdLogger writes one logfmt line per entry: timestamp, level, msg, error, then fields in key order.
type StdLogger struct {
	out   *log.Logger
	level LogLevel
}

// NewStdLogger logs to os.Stderr.
func NewStdLogger(level LogLevel) *StdLogger {
	return NewStdLoggerTo(os.Stderr, level)
}

func NewStdLoggerTo(w io.Writer, level LogLevel) *StdLogger {
	return &StdLogger{
		out:   log.New(w, "", log.LstdFlags|log.Lmicroseconds|log.LUTC),
		level: level,
	}
}

func (l *StdLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.write(LevelDebug, msg, nil, fields)
}

func (l *StdLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.write(LevelInfo, msg, nil, fields)
}

func (l *StdLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.write(LevelWarn, msg, nil, fields)
}

func (l *StdLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	l.write(LevelError, msg, err, fields)
}

func (l *StdLogger) write(level LogLevel, msg string, err error, fields []map[string]interface{}) {
	if level < l.level {
		return
	}

	var sb strings.Builder
	sb.WriteString("level=")
	sb.WriteString(level.String())
	appendPair(&sb, "msg", msg)
	if err != nil {
		appendPair(&sb, "error", err.Error())
	}
	merged := mergeFields(fields)
	for _, k := range sortedKeys(merged) {
		appendPair(&sb, k, fmt.Sprint(merged[k]))
	}
	l.out.Println(sb.String())
}

// appendPair quotes values that would break logfmt tokenization.
func appendPair(sb *strings.Builder, key, value string) {
	sb.WriteByte(' ')
	sb.WriteString(key)
	sb.WriteByte('=')
	if value == "" || strings.ContainsAny(value, " =\"\t\n") {
		sb.WriteString(strconv.Quote(value))
		return
	}
	sb.WriteString(value)
}

func mergeFields(fields []map[string]interface{}) map[string]interface{} {
	if len(fields) == 1 {
		return fields[0]
	}
	merged := make(map[string]interface{})
	for _, f := range fields {
		for k, v := range f {
			merged[k] = v
		}
	}
	return merged
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
