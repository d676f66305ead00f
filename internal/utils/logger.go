package utils

import (
	"context"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Fields = logrus.Fields

type contextKey string

const (
	CorrelationIDKey contextKey = "correlation_id"
	RequestIDKey     contextKey = "request_id"
)

// query parameters that authorize a request and must not reach the logs
var secretParams = []string{"token", "secret", "key", "sig", "signature", "api_key"}

var logger = newLogger(os.Stdout, logrus.InfoLevel, "json")

func newLogger(out io.Writer, level logrus.Level, format string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(level)
	l.SetFormatter(formatterFor(format))
	return l
}

func formatterFor(format string) logrus.Formatter {
	if strings.EqualFold(format, "text") {
		return &logrus.TextFormatter{FullTimestamp: true}
	}
	return &logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	}
}

// ConfigureLogger applies the configured level and format. Unknown levels
// fall back to info; "text" selects the formatter used by the CLI.
func ConfigureLogger(level, format string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logger.Warnf("Invalid log level %s, defaulting to info", level)
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	logger.SetFormatter(formatterFor(format))
}

func GetLogger() *logrus.Logger {
	return logger
}

func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func GenerateCorrelationID() string {
	return uuid.New().String()
}

func GenerateRequestID() string {
	return "req_" + uuid.New().String()
}

func LogInfo(ctx context.Context, message string, fields ...Fields) {
	emit(ctx, logrus.InfoLevel, message, nil, fields)
}

func LogWarn(ctx context.Context, message string, fields ...Fields) {
	emit(ctx, logrus.WarnLevel, message, nil, fields)
}

func LogDebug(ctx context.Context, message string, fields ...Fields) {
	emit(ctx, logrus.DebugLevel, message, nil, fields)
}

func LogError(ctx context.Context, message string, err error, fields ...Fields) {
	emit(ctx, logrus.ErrorLevel, message, err, fields)
}

func emit(ctx context.Context, level logrus.Level, message string, err error, fields []Fields) {
	if !logger.IsLevelEnabled(level) {
		return
	}

	entry := logrus.NewEntry(logger)
	for _, key := range []contextKey{CorrelationIDKey, RequestIDKey} {
		if id, ok := ctx.Value(key).(string); ok && id != "" {
			entry = entry.WithField(string(key), id)
		}
	}
	if err != nil {
		entry = entry.WithError(err)
	}
	if len(fields) > 0 {
		entry = entry.WithFields(redactFields(fields[0]))
	}
	entry.Log(level, message)
}

// redactFields masks proxy passwords and signed query parameters in any
// field holding a URL. Media URLs and stream links routinely carry both.
func redactFields(fields Fields) Fields {
	out := make(Fields, len(fields))
	for k, v := range fields {
		if s, ok := v.(string); ok {
			v = redactURL(s)
		}
		out[k] = v
	}
	return out
}

func redactURL(raw string) string {
	if !strings.Contains(raw, "://") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	query := u.Query()
	changed := false
	for _, name := range secretParams {
		if query.Has(name) {
			query.Set(name, "REDACTED")
			changed = true
		}
	}
	if changed {
		u.RawQuery = query.Encode()
	}
	return u.Redacted()
}
