// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying data storage mechanism from
// the application's core logic, allowing business rules to remain
// independent of specific database technologies or persistence details.
//
// Task writes are conditional: implementations guard every status change
// with the expected prior status so concurrent workers, reapers, and
// cancellations cannot overwrite each other.
package store
