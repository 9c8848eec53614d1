// Package types provides core type definitions and interfaces for the courier library.
//
// This package contains shared types that are used across multiple packages in the
// courier library. By keeping these types in a separate package, we avoid import cycles
// between the main courier package and its internal implementations.
//
// Key types:
//   - Fragment, GroupStatus: Resequencer data model
//   - WorkItem, WorkState: Router data model
//   - Delivery, Publisher, Consumer: Broker adapter contract
//   - Logger: Structured logging interface
//   - MetricsCollector: Metrics recording interface
package types
