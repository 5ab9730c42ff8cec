package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mfleurival/movie-tool/internal/ipc"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var provider string
	var model string
	var prompt string
	var duration int
	var resolution string
	var referenceImage string
	var cameraMovements []string

	cmd := &cobra.Command{
		Use:   "generate <clip-id>",
		Short: "Start video generation for a clip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Generate(ipc.GenerateRequest{
					ClipID:          args[0],
					Provider:        provider,
					Model:           model,
					Prompt:          prompt,
					Duration:        duration,
					Resolution:      resolution,
					ReferenceImage:  referenceImage,
					CameraMovements: cameraMovements,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Generation job %s started for clip %s (%s/%s)\n",
					resp.Job.ID, resp.Job.ClipID, resp.Job.Provider, resp.Job.ModelType)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "minimax", "Generation provider (minimax, segmind)")
	cmd.Flags().StringVar(&model, "model", "t2v", "Model type (t2v, i2v, s2v)")
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Prompt override (defaults to the clip's prompt)")
	cmd.Flags().IntVar(&duration, "duration", 0, "Clip duration in seconds (0 uses the configured default)")
	cmd.Flags().StringVar(&resolution, "resolution", "", "Output resolution (defaults to the configured value)")
	cmd.Flags().StringVar(&referenceImage, "image", "", "Reference image path for i2v/s2v models")
	cmd.Flags().StringSliceVar(&cameraMovements, "camera", nil, "Camera movement directives (repeatable)")

	cmd.AddCommand(newGenerateCancelCommand(ctx))
	return cmd
}

func newGenerateCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel an in-flight generation job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.GenerateCancel(args[0])
				if err != nil {
					return err
				}
				if resp.Cancelled {
					fmt.Fprintf(cmd.OutOrStdout(), "Cancelled job %s\n", args[0])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Job %s is already finished\n", args[0])
				}
				return nil
			})
		},
	}
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List generation jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobList(statuses)
				if err != nil {
					return err
				}
				if len(resp.Jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No generation jobs")
					return nil
				}
				rows := make([][]string, 0, len(resp.Jobs))
				for _, j := range resp.Jobs {
					detail := j.ErrorMessage
					if detail == "" {
						detail = j.VideoPath
					}
					rows = append(rows, []string{
						j.ID,
						j.ClipID,
						j.Provider,
						j.ModelType,
						j.Status,
						strconv.Itoa(j.Attempts),
						detail,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Clip", "Provider", "Model", "Status", "Attempts", "Detail"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by job status (repeatable)")
	return cmd
}
