// Package store provides persistent storage for eventbot using SQLite.
//
// # Data Model
//
//   - Event: a scheduled competition with teams, participants, and tracked
//     accounts. The nested structure (teams, guilds, tracker) is stored as
//     JSON columns; guild membership is mirrored into event_guilds rows so
//     per-guild queries stay plain SQL.
//   - Settings: per-guild admin list and notification channel.
//
// Event status (scheduled/running/ended) is always derived from the time
// window against the current clock and is never stored. An open-ended event
// carries the FarFuture end sentinel.
//
// # Error Handling
//
// Absent entities are reported with ErrNotFound. Callers treat absence as an
// ordinary empty result (re-ask the operator, skip the guild), never as a
// fatal fault.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// The schema is created automatically on open.
package store
