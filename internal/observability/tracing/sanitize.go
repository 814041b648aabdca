package tracing

import (
	"errors"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

var allowedSpanKeys = map[attribute.Key]struct{}{
	"http.method":             {},
	"http.route":              {},
	"http.status_code":        {},
	"http.server_duration_ms": {},
	"request_id":              {},
	"action":                  {},
	"oracle_id":               {},
	"player_id":               {},
}

// SafeAttributes keeps only allow-listed span attributes.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedSpanKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

var bearerPattern = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/=-]+`)

// SafeError returns an error stripped of credential material, or nil.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return nil
	}
	redacted := bearerPattern.ReplaceAllString(msg, "bearer [redacted]")
	if redacted == msg {
		return err
	}
	return errors.New(redacted)
}
