package config

const (
	defaultOutputDir    = "~/.local/share/movietool/outputs"
	defaultTempDir      = "~/.local/share/movietool/temp"
	defaultCharacterDir = "~/.local/share/movietool/characters"
	defaultLogDir       = "~/.local/share/movietool/logs"
	defaultSocketPath   = "~/.local/share/movietool/movietool.sock"

	defaultLogLevel  = "info"
	defaultLogFormat = "console"

	defaultMiniMaxBaseURL = "https://api.minimax.chat/v1"
	defaultSegmindBaseURL = "https://api.segmind.com"

	defaultRequestTimeout = 300
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 1

	defaultPollInterval      = 10
	defaultMaxWaitSeconds    = 600
	defaultMaxConcurrent     = 3
	defaultVideoDuration     = 6
	defaultVideoResolution   = "1080p"
	defaultFFmpegTimeout     = 600
	defaultMaxFrames         = 100
	defaultThumbnailWidth    = 320
	defaultThumbnailHeight   = 180
	defaultExportMaxWidth    = 1920
	defaultExportMaxHeight   = 1080
	defaultExportFPS         = 30
	defaultExportVideoCodec  = "libx264"
	defaultExportAudioCodec  = "aac"
	defaultExportCRF         = 23
	defaultExportPreset      = "medium"
	defaultNormalizeWorkers  = 2
	defaultMinOutputBytes    = 1024
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir:    defaultOutputDir,
			TempDir:      defaultTempDir,
			CharacterDir: defaultCharacterDir,
			LogDir:       defaultLogDir,
			SocketPath:   defaultSocketPath,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		MiniMax: Provider{
			Enabled:        true,
			BaseURL:        defaultMiniMaxBaseURL,
			RequestTimeout: defaultRequestTimeout,
			MaxAttempts:    defaultMaxAttempts,
			RetryBaseDelay: defaultRetryBaseDelay,
		},
		Segmind: Provider{
			Enabled:        true,
			BaseURL:        defaultSegmindBaseURL,
			RequestTimeout: defaultRequestTimeout,
			MaxAttempts:    defaultMaxAttempts,
			RetryBaseDelay: defaultRetryBaseDelay,
		},
		Generation: Generation{
			PollInterval:      defaultPollInterval,
			MaxWaitSeconds:    defaultMaxWaitSeconds,
			MaxConcurrent:     defaultMaxConcurrent,
			DefaultDuration:   defaultVideoDuration,
			DefaultResolution: defaultVideoResolution,
		},
		FFmpeg: FFmpeg{
			FFmpegBinary:       "ffmpeg",
			FFprobeBinary:      "ffprobe",
			CommandTimeout:     defaultFFmpegTimeout,
			MaxExtractedFrames: defaultMaxFrames,
			ThumbnailWidth:     defaultThumbnailWidth,
			ThumbnailHeight:    defaultThumbnailHeight,
		},
		Export: Export{
			MaxWidth:         defaultExportMaxWidth,
			MaxHeight:        defaultExportMaxHeight,
			TargetFPS:        defaultExportFPS,
			VideoCodec:       defaultExportVideoCodec,
			AudioCodec:       defaultExportAudioCodec,
			CRF:              defaultExportCRF,
			Preset:           defaultExportPreset,
			NormalizeWorkers: defaultNormalizeWorkers,
			MinOutputBytes:   defaultMinOutputBytes,
		},
	}
}
