// Package services defines the shared error taxonomy and context plumbing
// used across provider clients, the transcoder, and the job pipelines.
//
// Errors are classified by wrapping them with exported sentinel markers;
// callers branch with errors.Is rather than string matching. Retryable
// classifications (ErrNetwork, ErrRateLimited) are absorbed by the retry
// package; everything else propagates to the owning job immediately.
package services
