// Package generation runs clip generation jobs against the configured
// providers: submit, poll until terminal, then download the result.
package generation
