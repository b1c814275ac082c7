// Package ports defines the interfaces (ports) that connect the application
// layer to infrastructure adapters.
//
// In Clean Architecture / Hexagonal Architecture, ports are the boundaries
// between the application core and the outside world. They define what the
// application needs from external systems without specifying how those needs
// are fulfilled.
//
// # Port Interfaces
//
//   - [PageCounter]: Answers how many result pages a query yields on the remote site
//   - [ReportSessions]: Opens one authenticated search/report session per range
//   - [PartStore]: Persists completed ranges as part files
//   - [ExportSink]: Receives the merged export
//   - [Publisher]: Copies a finished export to object storage
//   - [Logger]: Structured logging abstraction
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//
// # Usage
//
// The application layer (internal/app) depends only on these interfaces.
// Infrastructure adapters (internal/adapters) implement them against the
// remote EagleWeb site, the local file system and gocloud blob buckets.
package ports
