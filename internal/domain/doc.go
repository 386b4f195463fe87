// Package domain defines the core business types for campaign dispatch and
// engagement tracking.
//
// Types in this package are plain values with no database dependencies and
// no HTTP concerns. They are the shared language between handlers, services,
// and repositories.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON/DB tags are allowed (they're metadata, not behavior)
//   - Small pure methods (status checks, validation) are allowed
package domain
