package media

import "encoding/json"

// QualityReport scores a probed video on a 0-100 scale built from four
// weighted characteristics. A missing bitrate contributes nothing rather
// than guessing.
type QualityReport struct {
	Score           int     `json:"overall_score"`
	Rating          string  `json:"rating"`
	ResolutionScore int     `json:"resolution_score"`
	BitrateScore    int     `json:"bitrate_score"`
	CodecScore      int     `json:"codec_score"`
	FPSScore        int     `json:"fps_score"`
	Resolution      string  `json:"resolution"`
	BitrateMbps     float64 `json:"bitrate_mbps"`
	FPS             float64 `json:"fps"`
	Codec           string  `json:"codec"`
	Duration        float64 `json:"duration"`
	FileSizeMB      float64 `json:"file_size_mb"`
}

// JSON renders the report for persistence.
func (r QualityReport) JSON() string {
	encoded, err := json.Marshal(r)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}

// AnalyzeQuality scores a video's characteristics. Resolution contributes
// up to 40 points, bitrate 30, codec 20, and frame rate 10.
func AnalyzeQuality(info MediaInfo) QualityReport {
	report := QualityReport{
		ResolutionScore: resolutionScore(info.Height),
		BitrateScore:    bitrateScore(info.Bitrate),
		CodecScore:      codecScore(info.Codec),
		FPSScore:        fpsScore(info.FPS),
		Resolution:      info.Resolution(),
		BitrateMbps:     float64(info.Bitrate) / 1_000_000,
		FPS:             info.FPS,
		Codec:           info.Codec,
		Duration:        info.Duration,
		FileSizeMB:      float64(info.SizeBytes) / 1_000_000,
	}
	report.Score = report.ResolutionScore + report.BitrateScore + report.CodecScore + report.FPSScore
	report.Rating = rating(report.Score)
	return report
}

func resolutionScore(height int) int {
	switch {
	case height >= 1080:
		return 40
	case height >= 720:
		return 30
	case height >= 480:
		return 20
	}
	return 10
}

func bitrateScore(bitsPerSecond int64) int {
	if bitsPerSecond <= 0 {
		return 0
	}
	mbps := float64(bitsPerSecond) / 1_000_000
	switch {
	case mbps >= 8:
		return 30
	case mbps >= 4:
		return 20
	case mbps >= 2:
		return 15
	}
	return 10
}

func codecScore(codec string) int {
	switch codec {
	case "h264", "libx264", "h265", "libx265", "hevc":
		return 20
	case "vp9", "av1":
		return 15
	}
	return 10
}

func fpsScore(fps float64) int {
	switch {
	case fps >= 60:
		return 10
	case fps >= 30:
		return 8
	case fps >= 24:
		return 6
	}
	return 4
}

func rating(score int) string {
	switch {
	case score >= 90:
		return "Excellent"
	case score >= 75:
		return "Good"
	case score >= 60:
		return "Fair"
	}
	return "Poor"
}
