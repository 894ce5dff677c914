package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrNoStreamURL is returned when yt-dlp succeeds without printing a URL.
var ErrNoStreamURL = errors.New("yt-dlp returned no stream url")

// ytdlpFormat prefers a video-only stream no taller than 1080p; audio is
// never decoded.
const ytdlpFormat = "bestvideo[height<=1080]/best[height<=1080]"

// ResolveYouTubeURL asks yt-dlp for a direct media URL ffmpeg can read.
func ResolveYouTubeURL(ctx context.Context, pageURL string) (string, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "yt-dlp", "--get-url", "--format", ytdlpFormat, "--no-playlist", pageURL)
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("yt-dlp: %w: %s", err, lastLine(msg))
		}
		return "", fmt.Errorf("yt-dlp: %w", err)
	}
	return firstStreamURL(string(out))
}

// firstStreamURL picks the first non-empty line; yt-dlp prints one URL per
// selected format.
func firstStreamURL(output string) (string, error) {
	for _, line := range strings.Split(output, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line, nil
		}
	}
	return "", ErrNoStreamURL
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
