package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mfleurival/movie-tool/internal/ipc"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Assemble completed clips into a final video",
	}

	exportCmd.AddCommand(newExportStartCommand(ctx))
	exportCmd.AddCommand(newExportShowCommand(ctx))
	exportCmd.AddCommand(newExportCancelCommand(ctx))
	exportCmd.AddCommand(newExportListCommand(ctx))
	return exportCmd
}

func newExportStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start <project-id>",
		Short: "Start an export for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ExportStart(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Export %s started with %d clips\n", resp.Job.ID, resp.Job.ClipCount)
				fmt.Fprintf(cmd.OutOrStdout(), "Track progress with `movietool export show %s`\n", resp.Job.ID)
				return nil
			})
		},
	}
}

func newExportShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <export-id>",
		Short: "Show one export job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ExportDescribe(args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				job := resp.Job
				fmt.Fprintf(out, "Export:    %s\n", job.ID)
				fmt.Fprintf(out, "Project:   %s\n", job.ProjectID)
				fmt.Fprintf(out, "Status:    %s\n", job.Status)
				fmt.Fprintf(out, "Progress:  %d%%", job.ProgressPercent)
				if job.CurrentStep != "" {
					fmt.Fprintf(out, " (%s)", job.CurrentStep)
				}
				fmt.Fprintln(out)
				fmt.Fprintf(out, "Clips:     %d\n", job.ClipCount)
				if job.OutputPath != "" {
					fmt.Fprintf(out, "Output:    %s\n", job.OutputPath)
				}
				if job.ErrorMessage != "" {
					fmt.Fprintf(out, "Error:     %s\n", job.ErrorMessage)
				}
				if job.QualityReport != "" {
					fmt.Fprintf(out, "Quality:   %s\n", job.QualityReport)
				}
				return nil
			})
		},
	}
}

func newExportCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <export-id>",
		Short: "Cancel an export job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ExportCancel(args[0])
				if err != nil {
					return err
				}
				if resp.Cancelled {
					fmt.Fprintf(cmd.OutOrStdout(), "Cancelled export %s\n", args[0])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Export %s is already finished\n", args[0])
				}
				return nil
			})
		},
	}
}

func newExportListCommand(ctx *commandContext) *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List export jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ExportList(projectID)
				if err != nil {
					return err
				}
				if len(resp.Jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No export jobs")
					return nil
				}
				rows := make([][]string, 0, len(resp.Jobs))
				for _, j := range resp.Jobs {
					detail := j.ErrorMessage
					if detail == "" {
						detail = j.OutputPath
					}
					rows = append(rows, []string{
						j.ID,
						j.ProjectID,
						j.Status,
						strconv.Itoa(j.ProgressPercent) + "%",
						strconv.Itoa(j.ClipCount),
						detail,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Project", "Status", "Progress", "Clips", "Detail"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Limit to one project")
	return cmd
}
