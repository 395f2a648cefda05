// Package logger provides the structured logging interface used across the
// comment harvester.
//
// It wraps zerolog behind a small Logger interface so components can be
// handed a TestLogger in tests and a console/file logger in production.
//
// Basic Usage:
//
//	err := logger.Initialize(&config.LoggingConfig{Level: "info"})
//	log := logger.GetLogger().WithFields(map[string]interface{}{
//	    "platform": "tiktok",
//	    "post_id":  "7301",
//	})
//	log.InfoWithFields("Page committed", map[string]interface{}{"page": 2})
//
// Session values never go through the logger; callers log masked
// representations only.
package logger
