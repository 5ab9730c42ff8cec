package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	var problems []string

	if !c.MiniMax.Enabled && !c.Segmind.Enabled {
		problems = append(problems, "at least one provider must be enabled")
	}
	if c.MiniMax.Enabled && strings.TrimSpace(c.MiniMax.APIKey) == "" {
		problems = append(problems, "minimax.api_key is required when minimax is enabled")
	}
	if c.Segmind.Enabled && strings.TrimSpace(c.Segmind.APIKey) == "" {
		problems = append(problems, "segmind.api_key is required when segmind is enabled")
	}
	for name, p := range map[string]Provider{"minimax": c.MiniMax, "segmind": c.Segmind} {
		if !p.Enabled {
			continue
		}
		if strings.TrimSpace(p.BaseURL) == "" {
			problems = append(problems, name+".base_url must not be empty")
		}
		if p.MaxAttempts < 1 {
			problems = append(problems, name+".max_attempts must be at least 1")
		}
		if p.RequestTimeout < 1 {
			problems = append(problems, name+".request_timeout must be at least 1 second")
		}
	}

	if c.Generation.PollInterval < 1 {
		problems = append(problems, "generation.poll_interval must be at least 1 second")
	}
	if c.Generation.MaxWaitSeconds < c.Generation.PollInterval {
		problems = append(problems, "generation.max_wait_seconds must be at least the poll interval")
	}
	if c.Generation.MaxConcurrent < 1 {
		problems = append(problems, "generation.max_concurrent must be at least 1")
	}

	if c.FFmpeg.CommandTimeout < 1 {
		problems = append(problems, "ffmpeg.command_timeout must be at least 1 second")
	}
	if c.Export.MaxWidth < 1 || c.Export.MaxHeight < 1 {
		problems = append(problems, "export.max_width and export.max_height must be positive")
	}
	if c.Export.TargetFPS <= 0 {
		problems = append(problems, "export.target_fps must be positive")
	}
	if c.Export.NormalizeWorkers < 1 {
		problems = append(problems, "export.normalize_workers must be at least 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
