package media

import "context"

// Processor defines the video operations the HTTP service exposes.
// Implementations shell out to ffmpeg/ffprobe.
type Processor interface {
	// Version returns the tool's version banner line.
	Version(ctx context.Context) (string, error)

	// Duration returns a file's duration in seconds.
	Duration(ctx context.Context, path string) (float64, error)

	// ProbeStream describes the first video stream of a file.
	ProbeStream(ctx context.Context, path string) (StreamInfo, error)

	// ExtractFrames samples one frame every intervalSec seconds, capped at
	// maxFrames, and returns the written JPEG paths in order.
	ExtractFrames(ctx context.Context, input, outDir string, intervalSec float64, maxFrames, quality int) ([]string, error)

	// ExtractRange samples up to maxFrames frames evenly across [start, end].
	ExtractRange(ctx context.Context, input, outDir string, start, end float64, maxFrames, quality int) ([]string, error)

	// ExtractThumbnail grabs a single frame at the given timestamp.
	ExtractThumbnail(ctx context.Context, input, output string, at float64, quality int) error

	// Trim cuts [start, end] out of the input, clamping end to the source
	// duration.
	Trim(ctx context.Context, input, output string, start, end float64) error

	// Resize scales the video to the target width, passing through sources
	// already at or above it. Returns the output stream info.
	Resize(ctx context.Context, input, output string, width int) (StreamInfo, error)

	// NormalizeWidth upscales widths below min to min and widths below
	// target to target; wider sources pass through unchanged.
	NormalizeWidth(ctx context.Context, input, output string, minWidth, targetWidth int) (StreamInfo, error)

	// NormalizePAR rescales anamorphic sources to square pixels.
	NormalizePAR(ctx context.Context, input, output string) (StreamInfo, error)

	// ExtendDuration pads the video with black filler until it reaches the
	// target duration.
	ExtendDuration(ctx context.Context, input, output string, target float64) error

	// Concat joins 2-20 inputs with stream copy.
	Concat(ctx context.Context, inputs []string, output string) error
}

var _ Processor = (*FFmpegProcessor)(nil)
