package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// ExtractFrames samples one frame every intervalSec seconds, capped at
// maxFrames, writing JPEGs into outDir. Quality is a 0-100 scale mapped
// onto ffmpeg's inverted 1-31 q:v scale. Returns the frame file paths in
// order.
func (p *FFmpegProcessor) ExtractFrames(ctx context.Context, input, outDir string, intervalSec float64, maxFrames, quality int) ([]string, error) {
	if intervalSec <= 0 {
		return nil, fmt.Errorf("%w: got %.3f", ErrInvalidInterval, intervalSec)
	}
	if maxFrames <= 0 || maxFrames > 100 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidFrameCount, maxFrames)
	}

	pattern := filepath.Join(outDir, "frame_%04d.jpg")

	args := []string{
		"-i", input,
		"-vf", fmt.Sprintf("fps=%g", 1.0/intervalSec),
		"-frames:v", fmt.Sprintf("%d", maxFrames),
		"-q:v", fmt.Sprintf("%d", qualityScale(quality)),
		"-f", "image2",
		pattern,
		"-y",
	}

	if err := p.run(ctx, framesTimeout, args); err != nil {
		return nil, err
	}

	return collectFrames(outDir, maxFrames), nil
}

// ExtractRange samples up to maxFrames frames evenly spread across the
// [start, end] range. The seek is positioned before the decoder for speed.
func (p *FFmpegProcessor) ExtractRange(ctx context.Context, input, outDir string, start, end float64, maxFrames, quality int) ([]string, error) {
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: start=%.3f end=%.3f", ErrInvalidRange, start, end)
	}
	if maxFrames <= 0 || maxFrames > 100 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidFrameCount, maxFrames)
	}

	rangeDur := end - start
	interval := rangeDur
	if maxFrames > 1 {
		interval = rangeDur / float64(maxFrames)
	}

	pattern := filepath.Join(outDir, "frame_%04d.jpg")

	args := []string{
		"-ss", formatSeconds(start),
		"-t", formatSeconds(rangeDur),
		"-i", input,
		"-vf", fmt.Sprintf("fps=%g", 1.0/interval),
		"-frames:v", fmt.Sprintf("%d", maxFrames),
		"-q:v", fmt.Sprintf("%d", qualityScale(quality)),
		"-f", "image2",
		pattern,
		"-y",
	}

	if err := p.run(ctx, framesTimeout, args); err != nil {
		return nil, err
	}

	return collectFrames(outDir, maxFrames), nil
}

// ExtractThumbnail grabs a single frame at the given timestamp.
func (p *FFmpegProcessor) ExtractThumbnail(ctx context.Context, input, output string, at float64, quality int) error {
	args := []string{
		"-ss", formatSeconds(at),
		"-i", input,
		"-frames:v", "1",
		"-q:v", fmt.Sprintf("%d", qualityScale(quality)),
		output,
		"-y",
	}
	return p.run(ctx, probeTimeout, args)
}

// collectFrames returns the extracted frame paths in numeric order,
// stopping at the first gap in the sequence.
func collectFrames(outDir string, maxFrames int) []string {
	var frames []string
	for i := 1; i <= maxFrames; i++ {
		path := filepath.Join(outDir, fmt.Sprintf("frame_%04d.jpg", i))
		if _, err := os.Stat(path); err != nil {
			break
		}
		frames = append(frames, path)
	}
	return frames
}
