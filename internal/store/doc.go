// Package store persists projects, clips, and job state in SQLite. All
// writes go through a busy-retry wrapper so concurrent lanes do not fail
// on transient lock contention.
package store
