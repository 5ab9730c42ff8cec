package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mfleurival/movie-tool/internal/logging"
	"github.com/mfleurival/movie-tool/internal/media"
)

func newProbeCommand(ctx *commandContext) *cobra.Command {
	var rawJSON bool
	cmd := &cobra.Command{
		Use:   "probe <video-path>",
		Short: "Inspect a video file and score its quality",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if rawJSON {
				result, err := media.Inspect(cmd.Context(), cfg.FFmpeg.FFprobeBinary, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(result.RawJSON())))
				return nil
			}
			transcoder := media.NewTranscoder(cfg, logging.NewNop())
			info, err := transcoder.Probe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			report := media.AnalyzeQuality(info)
			validation := media.ValidateInfo(info, cfg.Export.MinOutputBytes)

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Media", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Resolution", statusInfo, info.Resolution(), colorize))
			fmt.Fprintln(out, renderStatusLine("Duration", statusInfo, strconv.FormatFloat(info.Duration, 'f', 2, 64)+"s", colorize))
			fmt.Fprintln(out, renderStatusLine("Codec", statusInfo, info.Codec, colorize))
			fmt.Fprintln(out, renderStatusLine("Frame rate", statusInfo, strconv.FormatFloat(info.FPS, 'f', 2, 64), colorize))
			if info.Bitrate > 0 {
				mbps := float64(info.Bitrate) / 1_000_000
				fmt.Fprintln(out, renderStatusLine("Bitrate", statusInfo, strconv.FormatFloat(mbps, 'f', 2, 64)+" Mbps", colorize))
			}

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Quality", colorize) {
				fmt.Fprintln(out, line)
			}
			scoreKind := statusOK
			if report.Score < 60 {
				scoreKind = statusWarn
			}
			fmt.Fprintln(out, renderStatusLine("Score", scoreKind, fmt.Sprintf("%d/100 (%s)", report.Score, report.Rating), colorize))

			validationKind := statusOK
			message := "valid"
			switch validation.Status() {
			case "invalid":
				validationKind = statusError
				message = strings.Join(validation.Issues, "; ")
			case "warning":
				validationKind = statusWarn
				message = strings.Join(validation.Warnings, "; ")
			}
			fmt.Fprintln(out, renderStatusLine("Validation", validationKind, message, colorize))
			return nil
		},
	}
	cmd.Flags().BoolVar(&rawJSON, "json", false, "print the raw ffprobe JSON instead of the summary")
	return cmd
}
