package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mfleurival/movie-tool/internal/ipc"
)

func newCharacterCommand(ctx *commandContext) *cobra.Command {
	characterCmd := &cobra.Command{
		Use:   "character",
		Short: "Manage character references for subject-to-video generation",
	}

	characterCmd.AddCommand(newCharacterAddCommand(ctx))
	characterCmd.AddCommand(newCharacterListCommand(ctx))
	return characterCmd
}

func newCharacterAddCommand(ctx *commandContext) *cobra.Command {
	var description string
	var provider string

	cmd := &cobra.Command{
		Use:   "add <project-id> <name> <image-path>",
		Short: "Register a character with a reference image",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.CharacterAdd(ipc.CharacterAddRequest{
					ProjectID:   args[0],
					Name:        args[1],
					ImagePath:   args[2],
					Description: description,
					Provider:    provider,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered character %s (%s)\n", resp.Character.Name, resp.Character.ID)
				fmt.Fprintf(cmd.OutOrStdout(), "Reference image: %s\n", resp.Character.ReferenceImage)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "Character description")
	cmd.Flags().StringVar(&provider, "provider", "minimax", "Preferred generation provider")
	return cmd
}

func newCharacterListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list <project-id>",
		Short: "List a project's characters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.CharacterList(args[0])
				if err != nil {
					return err
				}
				if len(resp.Characters) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No characters")
					return nil
				}
				rows := make([][]string, 0, len(resp.Characters))
				for _, c := range resp.Characters {
					rows = append(rows, []string{c.ID, c.Name, c.PreferredProvider, c.ReferenceImage})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Name", "Provider", "Reference image"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}
