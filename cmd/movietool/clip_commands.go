package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mfleurival/movie-tool/internal/ipc"
)

func newClipCommand(ctx *commandContext) *cobra.Command {
	clipCmd := &cobra.Command{
		Use:   "clip",
		Short: "Manage clips within a project",
	}

	clipCmd.AddCommand(newClipAddCommand(ctx))
	clipCmd.AddCommand(newClipListCommand(ctx))
	return clipCmd
}

func newClipAddCommand(ctx *commandContext) *cobra.Command {
	var prompt string
	var sequence int

	cmd := &cobra.Command{
		Use:   "add <project-id> <name>",
		Short: "Add a clip to a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ClipAdd(ipc.ClipAddRequest{
					ProjectID: args[0],
					Name:      args[1],
					Prompt:    prompt,
					Sequence:  sequence,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added clip %s (%s) at position %d\n",
					resp.Clip.Name, resp.Clip.ID, resp.Clip.SequencePosition)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Generation prompt for the clip")
	cmd.Flags().IntVar(&sequence, "sequence", 0, "Sequence position (0 appends)")
	return cmd
}

func newClipListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list <project-id>",
		Short: "List a project's clips in sequence order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ClipList(args[0])
				if err != nil {
					return err
				}
				if len(resp.Clips) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No clips")
					return nil
				}
				rows := make([][]string, 0, len(resp.Clips))
				for _, c := range resp.Clips {
					duration := ""
					if c.Duration > 0 {
						duration = strconv.FormatFloat(c.Duration, 'f', 1, 64) + "s"
					}
					rows = append(rows, []string{
						strconv.Itoa(c.SequencePosition),
						c.ID,
						c.Name,
						c.Status,
						duration,
						c.Resolution,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"#", "ID", "Name", "Status", "Duration", "Resolution"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
}
