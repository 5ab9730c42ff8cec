// Package media wraps the ffmpeg and ffprobe command-line tools for
// probing, frame extraction, normalization, and concatenation, and scores
// the quality of produced videos.
package media
