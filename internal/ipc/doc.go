// Package ipc implements JSON-RPC daemon control over a Unix domain socket.
package ipc
