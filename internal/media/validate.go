package media

import "fmt"

// Validation is the outcome of an integrity check on a produced video.
// Issues invalidate the file; Warnings flag quality concerns that do not
// block the pipeline.
type Validation struct {
	Valid    bool     `json:"is_valid"`
	Issues   []string `json:"issues,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Status summarizes the validation as valid, warning, or invalid.
func (v Validation) Status() string {
	switch {
	case !v.Valid:
		return "invalid"
	case len(v.Warnings) > 0:
		return "warning"
	}
	return "valid"
}

// ValidateInfo checks a probed video for structural defects and quality
// warnings.
func ValidateInfo(info MediaInfo, minSizeBytes int64) Validation {
	v := Validation{Valid: true}

	if info.Duration <= 0 {
		v.Issues = append(v.Issues, "invalid duration")
		v.Valid = false
	}
	if info.Width <= 0 || info.Height <= 0 {
		v.Issues = append(v.Issues, "invalid resolution")
		v.Valid = false
	}
	if info.FPS <= 0 {
		v.Issues = append(v.Issues, "invalid frame rate")
		v.Valid = false
	}
	if minSizeBytes > 0 && info.SizeBytes < minSizeBytes {
		v.Issues = append(v.Issues, fmt.Sprintf("file size suspiciously small (%d bytes)", info.SizeBytes))
		v.Valid = false
	}

	if info.Duration > 0 && info.Duration < 1 {
		v.Warnings = append(v.Warnings, "video shorter than 1 second")
	}
	if info.Width > 0 && info.Height > 0 && (info.Width < 320 || info.Height < 240) {
		v.Warnings = append(v.Warnings, "resolution below 320x240")
	}
	if info.FPS > 0 && info.FPS < 15 {
		v.Warnings = append(v.Warnings, "frame rate below 15 fps")
	}
	return v
}
