package logger

import (
	"time"
)

// LogRequest logs one HTTP exchange with a platform endpoint. The url
// must already be stripped of credentials.
func LogRequest(l Logger, method, url string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}

	switch {
	case statusCode >= 500:
		l.WarnWithFields("HTTP request server error", fields)
	case statusCode >= 400:
		l.WarnWithFields("HTTP request client error", fields)
	default:
		l.DebugWithFields("HTTP request completed", fields)
	}
}

// LogRetry logs a scheduled retry of a failed page fetch
func LogRetry(l Logger, attempt int, wait time.Duration, err error) {
	l.WithError(err).WarnWithFields("Retrying page fetch", map[string]interface{}{
		"attempt": attempt,
		"wait":    wait,
	})
}

// LogRateLimit logs a server-side throttle hint
func LogRateLimit(l Logger, host string, retryAfter time.Duration) {
	l.WarnWithFields("Rate limited by server, backing off", map[string]interface{}{
		"host":        host,
		"retry_after": retryAfter,
	})
}

// LogPageProgress logs one committed page of a post
func LogPageProgress(l Logger, page, accepted, duplicates, total int) {
	l.InfoWithFields("Page committed", map[string]interface{}{
		"page":       page,
		"accepted":   accepted,
		"duplicates": duplicates,
		"total":      total,
	})
}

// LogComponentStart logs when a component starts
func LogComponentStart(l Logger, component string, settings map[string]interface{}) {
	l.WithField("component", component).InfoWithFields("Component started", settings)
}

// LogComponentStop logs when a component stops
func LogComponentStop(l Logger, component string, reason string) {
	l.WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}
