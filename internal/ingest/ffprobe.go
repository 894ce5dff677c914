package ingest

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ProbeFPS reads the average frame rate of the first video stream.
func ProbeFPS(ctx context.Context, source string) (float64, error) {
	out, err := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=avg_frame_rate",
		"-of", "default=noprint_wrappers=1:nokey=1",
		source,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	return parseFrameRate(string(out))
}

// parseFrameRate parses ffprobe's rational rate, e.g. "30000/1001" or "25/1".
func parseFrameRate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if line, _, ok := strings.Cut(s, "\n"); ok {
		s = strings.TrimSpace(line)
	}
	num, den, isRatio := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("parse frame rate %q: %w", s, err)
	}
	d := 1.0
	if isRatio {
		if d, err = strconv.ParseFloat(den, 64); err != nil {
			return 0, fmt.Errorf("parse frame rate %q: %w", s, err)
		}
	}
	if d == 0 || n <= 0 {
		return 0, fmt.Errorf("frame rate %q is unknown", s)
	}
	return n / d, nil
}
