package core

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// ProductionLogger is the default Logger implementation for the control
// plane processes. It emits JSON records when running in Kubernetes (or when
// LOG_FORMAT=json) and human-readable key=value text otherwise.
//
// It is self-contained and safe for concurrent use; every component receives
// it through the Logger interface so alternative implementations can be
// injected in tests.
type ProductionLogger struct {
	level   int
	format  string
	service string
	output  io.Writer
	mu      sync.Mutex
}

const (
	levelDebug = iota
	levelInfo
	levelWarn
	levelError
)

func parseLevel(level string) int {
	switch strings.ToLower(level) {
	case "debug":
		return levelDebug
	case "warn", "warning":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// NewLogger creates a production logger for the named service.
// Configuration priority: explicit config, environment, auto-detection.
func NewLogger(cfg LoggingConfig, service string) *ProductionLogger {
	format := cfg.Format
	if format == "" {
		format = "text"
		// JSON is the right default when running under Kubernetes
		if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
			format = "json"
		}
	}

	return &ProductionLogger{
		level:   parseLevel(cfg.Level),
		format:  format,
		service: service,
		output:  os.Stdout,
	}
}

// SetOutput redirects log output, primarily for tests
func (l *ProductionLogger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
}

func (l *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	l.log(levelDebug, "debug", msg, fields)
}

func (l *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	l.log(levelInfo, "info", msg, fields)
}

func (l *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	l.log(levelWarn, "warn", msg, fields)
}

func (l *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	l.log(levelError, "error", msg, fields)
}

func (l *ProductionLogger) log(level int, name, msg string, fields map[string]interface{}) {
	if level < l.level {
		return
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.format == "json" {
		record := make(map[string]interface{}, len(fields)+4)
		for k, v := range fields {
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			record[k] = v
		}
		record["time"] = now
		record["level"] = name
		record["service"] = l.service
		record["msg"] = msg

		data, err := json.Marshal(record)
		if err != nil {
			fmt.Fprintf(l.output, "%s %s %s %s marshal_error=%v\n", now, name, l.service, msg, err)
			return
		}
		fmt.Fprintln(l.output, string(data))
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s %s %s", now, strings.ToUpper(name), l.service, msg)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	fmt.Fprintln(l.output, b.String())
}
