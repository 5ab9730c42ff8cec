// Package logging wraps log/slog with the handlers, attribute helpers, and
// context plumbing shared by every component.
package logging
