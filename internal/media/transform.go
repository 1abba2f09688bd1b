package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Trim cuts [start, end] out of the input, re-encoding the result. The end
// time is clamped to the source's probed duration, and the seek happens
// before the decoder.
func (p *FFmpegProcessor) Trim(ctx context.Context, input, output string, start, end float64) error {
	if start < 0 || end <= start {
		return fmt.Errorf("%w: start=%.3f end=%.3f", ErrInvalidRange, start, end)
	}

	duration, err := p.Duration(ctx, input)
	if err != nil {
		return fmt.Errorf("probe duration: %w", err)
	}
	if end > duration {
		end = duration
	}
	if end <= start {
		return fmt.Errorf("%w: start=%.3f is beyond source duration %.3f", ErrInvalidRange, start, duration)
	}

	args := []string{
		"-ss", formatSeconds(start),
		"-i", input,
		"-t", formatSeconds(end - start),
		"-c:v", "libx264",
		"-preset", "fast",
		"-c:a", "aac",
		output,
		"-y",
	}
	return p.run(ctx, encodeTimeout, args)
}

// Resize scales the video up to width, preserving aspect ratio with the
// height forced even. A source already at or above the target width passes
// through as a byte-identical copy.
func (p *FFmpegProcessor) Resize(ctx context.Context, input, output string, width int) (StreamInfo, error) {
	if width <= 0 {
		return StreamInfo{}, fmt.Errorf("%w: got %d", ErrInvalidWidth, width)
	}

	info, err := p.ProbeStream(ctx, input)
	if err != nil {
		return StreamInfo{}, fmt.Errorf("probe stream: %w", err)
	}

	if info.Width >= width {
		return info, p.copyFile(input, output)
	}

	if err := p.scaleToWidth(ctx, input, output, width); err != nil {
		return StreamInfo{}, err
	}
	return p.ProbeStream(ctx, output)
}

// NormalizeWidth applies the shared compatibility policy: widths below min
// are upscaled to min, widths below target are upscaled to target, and
// anything at or above target passes through unchanged.
func (p *FFmpegProcessor) NormalizeWidth(ctx context.Context, input, output string, minWidth, targetWidth int) (StreamInfo, error) {
	if minWidth <= 0 || targetWidth <= 0 || minWidth > targetWidth {
		return StreamInfo{}, fmt.Errorf("%w: min=%d target=%d", ErrInvalidWidth, minWidth, targetWidth)
	}

	info, err := p.ProbeStream(ctx, input)
	if err != nil {
		return StreamInfo{}, fmt.Errorf("probe stream: %w", err)
	}

	var want int
	switch {
	case info.Width < minWidth:
		want = minWidth
	case info.Width < targetWidth:
		want = targetWidth
	default:
		return info, p.copyFile(input, output)
	}

	if err := p.scaleToWidth(ctx, input, output, want); err != nil {
		return StreamInfo{}, err
	}
	return p.ProbeStream(ctx, output)
}

// NormalizePAR rescales anamorphic sources to square pixels. Sources that
// are already 1:1 pass through as byte-identical copies.
func (p *FFmpegProcessor) NormalizePAR(ctx context.Context, input, output string) (StreamInfo, error) {
	info, err := p.ProbeStream(ctx, input)
	if err != nil {
		return StreamInfo{}, fmt.Errorf("probe stream: %w", err)
	}

	if info.SquarePixels() {
		return info, p.copyFile(input, output)
	}

	args := []string{
		"-i", input,
		"-vf", "scale=iw*sar:ih,setsar=1",
		"-c:v", "libx264",
		"-preset", "fast",
		"-c:a", "copy",
		output,
		"-y",
	}
	if err := p.run(ctx, encodeTimeout, args); err != nil {
		return StreamInfo{}, err
	}

	return p.ProbeStream(ctx, output)
}

// ExtendDuration pads the video with black filler (and silence, when the
// source has an audio track) until the probed duration reaches target.
// A source already at or beyond target is copied unchanged.
func (p *FFmpegProcessor) ExtendDuration(ctx context.Context, input, output string, target float64) error {
	if target <= 0 {
		return fmt.Errorf("%w: got %.3f", ErrInvalidDuration, target)
	}

	duration, err := p.Duration(ctx, input)
	if err != nil {
		return fmt.Errorf("probe duration: %w", err)
	}

	if duration >= target {
		return p.copyFile(input, output)
	}

	info, err := p.ProbeStream(ctx, input)
	if err != nil {
		return fmt.Errorf("probe stream: %w", err)
	}

	deficit := target - duration
	rate := info.FrameRate
	if rate <= 0 {
		rate = 25
	}
	black := fmt.Sprintf("color=c=black:s=%dx%d:r=%g:d=%s", info.Width, info.Height, rate, formatSeconds(deficit))

	var args []string
	if info.HasAudio {
		silence := fmt.Sprintf("anullsrc=r=44100:cl=stereo:d=%s", formatSeconds(deficit))
		args = []string{
			"-i", input,
			"-f", "lavfi", "-i", black,
			"-f", "lavfi", "-i", silence,
			"-filter_complex", "[1:v]setsar=1[pad];[0:v][0:a][pad][2:a]concat=n=2:v=1:a=1[v][a]",
			"-map", "[v]",
			"-map", "[a]",
			"-c:v", "libx264",
			"-preset", "fast",
			"-c:a", "aac",
			output,
			"-y",
		}
	} else {
		args = []string{
			"-i", input,
			"-f", "lavfi", "-i", black,
			"-filter_complex", "[1:v]setsar=1[pad];[0:v][pad]concat=n=2:v=1:a=0[v]",
			"-map", "[v]",
			"-c:v", "libx264",
			"-preset", "fast",
			output,
			"-y",
		}
	}

	return p.run(ctx, encodeTimeout, args)
}

// Concat joins 2-20 inputs with the concat demuxer and stream copy. The
// input count is checked before any subprocess is spawned.
func (p *FFmpegProcessor) Concat(ctx context.Context, inputs []string, output string) error {
	if len(inputs) < 2 {
		return fmt.Errorf("%w: got %d", ErrTooFewInputs, len(inputs))
	}
	if len(inputs) > 20 {
		return fmt.Errorf("%w: got %d", ErrTooManyInputs, len(inputs))
	}

	listFile, err := writeConcatList(filepath.Dir(output), inputs)
	if err != nil {
		return fmt.Errorf("create concat list: %w", err)
	}
	defer func() { _ = os.Remove(listFile) }()

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c", "copy",
		output,
		"-y",
	}
	return p.run(ctx, concatTimeout, args)
}

// scaleToWidth re-encodes the input at the given width, height derived from
// the aspect ratio and forced even by the -2 divisor.
func (p *FFmpegProcessor) scaleToWidth(ctx context.Context, input, output string, width int) error {
	args := []string{
		"-i", input,
		"-vf", fmt.Sprintf("scale=%d:-2", width),
		"-c:v", "libx264",
		"-preset", "fast",
		"-c:a", "copy",
		output,
		"-y",
	}
	return p.run(ctx, encodeTimeout, args)
}

// writeConcatList writes the list file the concat demuxer consumes,
// quote-escaping each path.
func writeConcatList(dir string, inputs []string) (string, error) {
	f, err := os.CreateTemp(dir, "concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = f.Close() }()

	for _, path := range inputs {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("get absolute path for %s: %w", path, err)
		}
		escaped := strings.ReplaceAll(absPath, "'", "'\\''")
		if _, err := fmt.Fprintf(f, "file '%s'\n", escaped); err != nil {
			return "", fmt.Errorf("write concat list: %w", err)
		}
	}

	return f.Name(), nil
}
