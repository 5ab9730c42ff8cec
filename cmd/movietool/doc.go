// Command movietool is the CLI and daemon entry point for the clip
// generation and export pipeline.
package main
