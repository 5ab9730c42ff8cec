// Package daemon coordinates generation and export processing behind a
// single-instance lock.
package daemon
