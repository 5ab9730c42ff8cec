package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mfleurival/movie-tool/internal/ipc"
)

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Stop()
				if err != nil {
					return err
				}
				if resp.Stopped {
					fmt.Fprintln(cmd.OutOrStdout(), "Daemon stopped")
				}
				return nil
			})
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and pipeline status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(out, line)
				}
				runningKind := statusError
				runningMsg := "stopped"
				if status.Running {
					runningKind = statusOK
					runningMsg = "running"
				}
				fmt.Fprintln(out, renderStatusLine("State", runningKind, runningMsg, colorize))
				fmt.Fprintln(out, renderStatusLine("Socket", statusInfo, status.SocketPath, colorize))
				fmt.Fprintln(out, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))
				fmt.Fprintln(out, renderStatusLine("Lock file", statusInfo, status.LockPath, colorize))

				fmt.Fprintln(out)
				for _, line := range renderSectionHeader("Work", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("Active generations", countKind(status.ActiveGenerations), strconv.Itoa(status.ActiveGenerations), colorize))
				fmt.Fprintln(out, renderStatusLine("Pending generations", statusInfo, strconv.Itoa(status.PendingGenerations), colorize))
				fmt.Fprintln(out, renderStatusLine("Active exports", countKind(status.ActiveExports), strconv.Itoa(status.ActiveExports), colorize))
				fmt.Fprintln(out, renderStatusLine("Completed clips", statusOK, strconv.Itoa(status.CompletedClips), colorize))
				failedKind := statusOK
				if status.FailedClips > 0 {
					failedKind = statusWarn
				}
				fmt.Fprintln(out, renderStatusLine("Failed clips", failedKind, strconv.Itoa(status.FailedClips), colorize))
				return nil
			})
		},
	}
}

func countKind(n int) statusKind {
	if n > 0 {
		return statusOK
	}
	return statusInfo
}
