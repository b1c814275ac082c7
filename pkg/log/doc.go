// Package log provides the logging abstraction shared by harvester components.
//
// Components depend only on the Logger interface. A zerolog-backed
// implementation is provided for the CLI and a no-op logger for tests
// and library callers that do not care about output.
//
// # Usage
//
//	logger := log.New(log.Options{Level: "debug", Format: "json"})
//	logger.Info("part saved", log.String("range", "[0 - 128]"), log.Int64("bytes", n))
//
// Child loggers carry fields into every entry:
//
//	runLog := log.With(logger, log.String("tenant", "Adams"), log.String("run_id", id))
//
// # Custom Loggers
//
// Implement the Logger interface to plug in another logging library:
//
//	func (l *MyLogger) Debug(msg string, fields ...log.Field) { ... }
package log
