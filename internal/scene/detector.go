// Package scene detects scene cuts by driving ffmpeg's scene-change filter.
// Detection needs square pixels, so anamorphic sources are PAR-normalized
// first; thumbnails are always taken from the original file.
package scene

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/balkhaev/trender/internal/media"
)

// ErrInvalidThreshold is returned when the detection threshold is outside (0, 1).
var ErrInvalidThreshold = errors.New("invalid threshold: must be between 0 and 1 exclusive")

const (
	detectTimeout    = 300 * time.Second
	thumbnailQuality = 85
)

// Scene is a detected shot between two cuts.
type Scene struct {
	Index      int
	StartTime  float64
	EndTime    float64
	StartFrame int
	EndFrame   int
	// ThumbnailPath is the mid-scene JPEG, empty when thumbnails were not
	// requested.
	ThumbnailPath string
}

// FFmpegDetector finds scene cuts by invoking ffmpeg directly.
type FFmpegDetector struct {
	proc       media.Processor
	ffmpegPath string
}

// NewFFmpegDetector creates a detector. If ffmpegPath is empty, "ffmpeg" is
// resolved via PATH. The processor handles probing, PAR normalization and
// thumbnail extraction.
func NewFFmpegDetector(proc media.Processor, ffmpegPath string) *FFmpegDetector {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegDetector{proc: proc, ffmpegPath: ffmpegPath}
}

// Detect runs scene detection against input, using workDir for
// intermediate files. When withThumbnails is set, a mid-scene frame is
// extracted per scene from the original (non-normalized) input.
func (d *FFmpegDetector) Detect(ctx context.Context, input, workDir string, threshold float64, withThumbnails bool) ([]Scene, error) {
	if threshold <= 0 || threshold >= 1 {
		return nil, fmt.Errorf("%w: got %.3f", ErrInvalidThreshold, threshold)
	}

	// The scene filter compares luma between displayed frames, so
	// anamorphic sources skew scores. Normalize first; if that fails on a
	// source we could not confirm as non-square, detect on the original.
	target := filepath.Join(workDir, "normalized.mp4")
	if _, err := d.proc.NormalizePAR(ctx, input, target); err != nil {
		info, probeErr := d.proc.ProbeStream(ctx, input)
		if probeErr == nil && !info.SquarePixels() {
			return nil, fmt.Errorf("normalize PAR: %w", err)
		}
		target = input
	}

	cuts, err := d.sceneCuts(ctx, target, threshold)
	if err != nil {
		return nil, err
	}

	duration, err := d.proc.Duration(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("probe duration: %w", err)
	}

	info, err := d.proc.ProbeStream(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("probe stream: %w", err)
	}

	scenes := buildScenes(cuts, duration, info.FrameRate)

	if withThumbnails {
		for i := range scenes {
			mid := (scenes[i].StartTime + scenes[i].EndTime) / 2
			thumb := filepath.Join(workDir, fmt.Sprintf("scene_%03d.jpg", i))
			if err := d.proc.ExtractThumbnail(ctx, input, thumb, mid, thumbnailQuality); err != nil {
				return nil, fmt.Errorf("extract thumbnail for scene %d: %w", i, err)
			}
			scenes[i].ThumbnailPath = thumb
		}
	}

	return scenes, nil
}

// sceneCuts returns the timestamps (seconds) at which the scene score
// exceeds the threshold.
func (d *FFmpegDetector) sceneCuts(ctx context.Context, input string, threshold float64) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, detectTimeout)
	defer cancel()

	args := []string{
		"-i", input,
		"-vf", fmt.Sprintf("select=gt(scene\\,%g),metadata=print:file=-", threshold),
		"-an",
		"-f", "null",
		"-",
	}

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, d.ffmpegPath, args...)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("scene detection aborted: %w", ctx.Err())
		}
		return nil, &media.FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return parseCutTimes(stdout.String()), nil
}

var ptsTimeRe = regexp.MustCompile(`pts_time:([0-9.]+)`)

// parseCutTimes extracts pts_time values from the metadata filter output.
func parseCutTimes(output string) []float64 {
	var cuts []float64
	for _, m := range ptsTimeRe.FindAllStringSubmatch(output, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		cuts = append(cuts, v)
	}
	return cuts
}

// buildScenes converts cut timestamps into scene records spanning
// [0, duration]. A leading cut at t=0 is folded into the first scene.
func buildScenes(cuts []float64, duration, fps float64) []Scene {
	boundaries := make([]float64, 0, len(cuts)+2)
	boundaries = append(boundaries, 0)
	for _, c := range cuts {
		if c > 0 && c < duration {
			boundaries = append(boundaries, c)
		}
	}
	boundaries = append(boundaries, duration)

	scenes := make([]Scene, 0, len(boundaries)-1)
	for i := 0; i < len(boundaries)-1; i++ {
		start, end := boundaries[i], boundaries[i+1]
		if end <= start {
			continue
		}
		s := Scene{
			Index:     len(scenes),
			StartTime: start,
			EndTime:   end,
		}
		if fps > 0 {
			s.StartFrame = int(math.Round(start * fps))
			s.EndFrame = int(math.Round(end * fps))
		}
		scenes = append(scenes, s)
	}
	return scenes
}
