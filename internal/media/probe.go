package media

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	ffmpeggo "github.com/u2takey/ffmpeg-go"
)

const probeTimeout = 30 * time.Second

// Resolution probes the first video stream of path.
func (ff ffmpeg) Resolution(ctx context.Context, path string) (string, error) {
	timeout := probeTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}
	if timeout <= 0 {
		return "", context.DeadlineExceeded
	}
	out, err := ffmpeggo.ProbeWithTimeout(path, timeout, ffmpeggo.KwArgs{"select_streams": "v:0"})
	if err != nil {
		return "", fmt.Errorf("probe %s: %w", path, err)
	}
	return parseResolution(out)
}

func parseResolution(probeJSON string) (string, error) {
	var probe struct {
		Streams []struct {
			CodecType string `json:"codec_type"`
			Width     int    `json:"width"`
			Height    int    `json:"height"`
		} `json:"streams"`
	}
	if err := json.Unmarshal([]byte(probeJSON), &probe); err != nil {
		return "", fmt.Errorf("parse probe output: %w", err)
	}
	for _, s := range probe.Streams {
		if s.CodecType == "video" && s.Width > 0 && s.Height > 0 {
			return fmt.Sprintf("%dx%d", s.Width, s.Height), nil
		}
	}
	return "", fmt.Errorf("no video stream in probe output")
}

var _ Prober = ffmpeg{}
