// Package export assembles a project's completed clips into one output
// video: normalize in parallel, concatenate, then probe and score the
// result.
package export
