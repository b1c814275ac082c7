// Package domain contains the core domain entities and value objects for harvester.
//
// This package represents the innermost layer of the Clean Architecture. It has
// no dependencies on infrastructure concerns (HTTP, file system, logging) and
// contains only pure business logic.
//
// # Entities
//
//   - [IDRange]: An inclusive interval of numeric account IDs, optionally open-ended
//   - [PartFile]: The on-disk artifact recording one downloaded IDRange
//   - [Gap]: An interval of IDs not covered by any part file
//   - [PartitionPlan]: The page-count target derived from the dataset size
//   - [FailedRange]: A range queued for bounded retry
//   - [Tenant]: The remote site tenant (county) every operation runs for
//
// # Design Principles
//
// Domain entities are:
//   - Immutable after construction (where practical)
//   - Free of infrastructure dependencies
//   - Focused on business rules and invariants
//   - Testable without mocks or external systems
package domain
