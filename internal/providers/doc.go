// Package providers defines the uniform client surface for external video
// generation services plus the shared HTTP error classification and
// download plumbing the concrete clients build on.
package providers
