package harvester

import (
	"net/http"

	"github.com/jonboulle/clockwork"

	"github.com/bft-labs/harvester/internal/ports"
	"github.com/bft-labs/harvester/pkg/log"
)

// Logger is the interface for structured logging.
type Logger = log.Logger

// LogField represents a structured log field.
type LogField = log.Field

// Option configures optional behavior of a Harvester.
type Option func(*options)

// options holds the optional configuration for a Harvester instance.
type options struct {
	transport    http.RoundTripper
	logger       ports.Logger
	oracle       ports.PageCounter
	sessions     ports.ReportSessions
	store        ports.PartStore
	sink         ports.ExportSink
	publisher    ports.Publisher
	clock        clockwork.Clock
	eventHandler EventHandler
	plugins      []Plugin
}

// defaultOptions returns options with sensible defaults.
func defaultOptions() options {
	return options{
		transport: http.DefaultTransport,
		logger:    log.NewNoopLogger(),
		clock:     clockwork.NewRealClock(),
	}
}

// WithTransport sets the HTTP transport shared by all site sessions.
// Every session still gets its own cookie jar.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithOracle replaces the site's page-count search. Retry and throttling
// are still applied around it.
func WithOracle(oracle ports.PageCounter) Option {
	return func(o *options) {
		o.oracle = oracle
	}
}

// WithReportSessions replaces the site's report sessions.
func WithReportSessions(sessions ports.ReportSessions) Option {
	return func(o *options) {
		o.sessions = sessions
	}
}

// WithPartStore replaces the parts directory.
func WithPartStore(store ports.PartStore) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithExportSink replaces the export file written by Merge.
func WithExportSink(sink ports.ExportSink) Option {
	return func(o *options) {
		o.sink = sink
	}
}

// WithPublisher replaces the bucket publisher used by Merge.
func WithPublisher(p ports.Publisher) Option {
	return func(o *options) {
		o.publisher = p
	}
}

// WithClock sets the clock used for throttling, backoff and timeouts.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithEventHandler sets a handler for harvester events.
// If not provided, no events are emitted.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithPlugin registers a plugin to be initialized when a run starts.
// Plugins are initialized in registration order and shutdown in reverse order.
func WithPlugin(plugin Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, plugin)
	}
}
