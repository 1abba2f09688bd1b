package scene

import "context"

// Detector defines the scene detection operation the HTTP service exposes.
type Detector interface {
	// Detect returns the scenes of input, using workDir for intermediate
	// files. Thumbnails are extracted from the original input when
	// requested.
	Detect(ctx context.Context, input, workDir string, threshold float64, withThumbnails bool) ([]Scene, error)
}

var _ Detector = (*FFmpegDetector)(nil)
