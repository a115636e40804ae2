// Package history persists publish runs and their steps in SQLite.
//
// Each run row is created when the runner starts and finalized through the
// StatusSink methods, so the table doubles as an audit trail and as the
// guard against publishing the same tracking record twice. The schema is
// embedded and versioned; a version mismatch asks the operator to delete the
// database rather than migrating in place.
package history
