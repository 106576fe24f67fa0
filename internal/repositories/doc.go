// Package repositories implements SQLite persistence for the service's entities.
//
// Key Implementations:
//   - [SessionRepository] : per-browser OAuth sessions; soft deleted via deleted_at and excluded from queries
//   - [PredictionRepository] : append-mostly audit trail of each model's top pick per request
//
// Both repositories assign v4 UUIDs on Create and store timestamps in UTC.
package repositories
