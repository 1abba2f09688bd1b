package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// StreamInfo describes the first video stream of a file.
type StreamInfo struct {
	Width             int
	Height            int
	SampleAspectRatio string
	FrameRate         float64
	HasAudio          bool
}

// SquarePixels reports whether the stream's pixels are square. An absent or
// 0:1 SAR means the container left it unset, which players treat as 1:1.
func (s StreamInfo) SquarePixels() bool {
	switch s.SampleAspectRatio {
	case "", "0:1", "1:1":
		return true
	}
	return false
}

// ffprobeOutput matches the JSON emitted by `ffprobe -print_format json`.
type ffprobeOutput struct {
	Streams []struct {
		CodecType         string `json:"codec_type"`
		Width             int    `json:"width"`
		Height            int    `json:"height"`
		SampleAspectRatio string `json:"sample_aspect_ratio"`
		RFrameRate        string `json:"r_frame_rate"`
	} `json:"streams"`
}

// Duration returns the duration of a media file in seconds.
func (p *FFmpegProcessor) Duration(ctx context.Context, path string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("ffprobe timed out: %w", ctx.Err())
		}
		return 0, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	var duration float64
	_, err = fmt.Sscanf(strings.TrimSpace(stdout.String()), "%f", &duration)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}

	return duration, nil
}

// ProbeStream returns dimensions, sample aspect ratio and frame rate of the
// first video stream, and whether the file carries an audio stream.
func (p *FFmpegProcessor) ProbeStream(ctx context.Context, path string) (StreamInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_streams",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return StreamInfo{}, fmt.Errorf("ffprobe timed out: %w", ctx.Err())
		}
		return StreamInfo{}, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	var out ffprobeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return StreamInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := StreamInfo{}
	found := false
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if found {
				continue
			}
			found = true
			info.Width = s.Width
			info.Height = s.Height
			info.SampleAspectRatio = s.SampleAspectRatio
			info.FrameRate = parseFrameRate(s.RFrameRate)
		case "audio":
			info.HasAudio = true
		}
	}

	if !found {
		return StreamInfo{}, ErrNoVideoStream
	}

	return info, nil
}

// parseFrameRate parses ffprobe's rational frame rate, e.g. "30000/1001".
// Returns 0 when the value is absent or malformed.
func parseFrameRate(r string) float64 {
	num, den, ok := strings.Cut(r, "/")
	if !ok {
		v, err := strconv.ParseFloat(r, 64)
		if err != nil {
			return 0
		}
		return v
	}

	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
