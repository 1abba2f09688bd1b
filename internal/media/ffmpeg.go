// Package media wraps the ffmpeg and ffprobe command-line tools. Every
// operation persists to files inside a caller-provided directory, shells out
// synchronously with an operation-specific timeout, and surfaces the tool's
// stderr on failure.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Static errors for media operations.
var (
	// ErrInvalidInterval is returned when the frame interval is not positive.
	ErrInvalidInterval = errors.New("invalid interval: must be positive")
	// ErrInvalidFrameCount is returned when the frame cap is out of range.
	ErrInvalidFrameCount = errors.New("invalid max frames: must be between 1 and 100")
	// ErrInvalidRange is returned when start/end times are not ordered.
	ErrInvalidRange = errors.New("invalid range: start must be non-negative and before end")
	// ErrInvalidWidth is returned when the target width is not positive.
	ErrInvalidWidth = errors.New("invalid width: must be positive")
	// ErrInvalidDuration is returned when the target duration is not positive.
	ErrInvalidDuration = errors.New("invalid duration: must be positive")
	// ErrTooFewInputs is returned when concatenation gets fewer than 2 inputs.
	ErrTooFewInputs = errors.New("concat requires at least 2 inputs")
	// ErrTooManyInputs is returned when concatenation gets more than 20 inputs.
	ErrTooManyInputs = errors.New("concat accepts at most 20 inputs")
	// ErrNoVideoStream is returned when a file has no video stream to probe.
	ErrNoVideoStream = errors.New("no video stream found")
	// ErrFFprobeExecution is returned when an ffprobe invocation fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
)

// Per-invocation timeouts. Version and stream probes are cheap; anything
// that re-encodes needs room, and concatenation the most.
const (
	versionTimeout = 5 * time.Second
	probeTimeout   = 30 * time.Second
	framesTimeout  = 120 * time.Second
	encodeTimeout  = 300 * time.Second
	concatTimeout  = 600 * time.Second
)

// FFmpegProcessor drives ffmpeg and ffprobe as subprocesses.
type FFmpegProcessor struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpegProcessor creates an FFmpegProcessor. Empty paths default to "ffmpeg" and
// "ffprobe" resolved via PATH.
func NewFFmpegProcessor(ffmpegPath, ffprobePath string) *FFmpegProcessor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpegProcessor{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// Version returns the first line of `ffmpeg -version`.
func (p *FFmpegProcessor) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, "-version")

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("ffmpeg version timed out: %w", ctx.Err())
		}
		return "", fmt.Errorf("ffmpeg version: %w", err)
	}

	line, _, _ := strings.Cut(stdout.String(), "\n")
	return strings.TrimSpace(line), nil
}

// run executes ffmpeg with the given arguments under the given timeout and
// returns an error carrying stderr output if the command fails.
func (p *FFmpegProcessor) run(ctx context.Context, timeout time.Duration, args []string) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg aborted: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return nil
}

// copyFile copies a file from src to dst. Used for the byte-identical
// passthrough paths of resize, PAR normalization and duration extension.
func (p *FFmpegProcessor) copyFile(src, dst string) error {
	input, err := os.ReadFile(src) // #nosec G304 - src lives in a request-scoped dir
	if err != nil {
		return fmt.Errorf("read source file: %w", err)
	}
	if err := os.WriteFile(dst, input, 0600); err != nil {
		return fmt.Errorf("write destination file: %w", err)
	}
	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// qualityScale maps a 0-100 quality onto ffmpeg's inverted 1-31 q:v scale.
func qualityScale(quality int) int {
	q := 31 - quality/3
	if q < 1 {
		q = 1
	}
	if q > 31 {
		q = 31
	}
	return q
}

// formatSeconds renders a seconds value the way ffmpeg expects it on the
// command line.
func formatSeconds(v float64) string {
	return fmt.Sprintf("%.3f", v)
}
