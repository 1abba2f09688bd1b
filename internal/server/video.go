package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/balkhaev/trender/internal/media"
	"github.com/balkhaev/trender/internal/scene"
	"github.com/balkhaev/trender/internal/storage"
)

// maxUploadBytes caps the parsed size of multipart uploads.
const maxUploadBytes = 512 << 20

// VideoDefaults are the fallback parameter values for frame extraction.
type VideoDefaults struct {
	IntervalSec float64
	MaxFrames   int
	Quality     int
}

// VideoHandlers contains the HTTP handlers for the video tool service.
type VideoHandlers struct {
	proc     media.Processor
	detector scene.Detector
	store    storage.Store
	defaults VideoDefaults
	validate *validator.Validate
	logger   *slog.Logger
}

// NewVideoHandlers creates handlers for the video tool endpoints.
func NewVideoHandlers(proc media.Processor, detector scene.Detector, store storage.Store, defaults VideoDefaults, logger *slog.Logger) *VideoHandlers {
	return &VideoHandlers{
		proc:     proc,
		detector: detector,
		store:    store,
		defaults: defaults,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// HealthCheck handles GET /health requests.
func (h *VideoHandlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Status handles GET /status requests, reporting the tool version.
func (h *VideoHandlers) Status(w http.ResponseWriter, r *http.Request) {
	version, err := h.proc.Version(r.Context())
	if err != nil {
		h.logger.Error("ffmpeg not available", "error", err)
		writeJSON(w, http.StatusInternalServerError, VideoStatusResponse{Status: "error"})
		return
	}
	writeJSON(w, http.StatusOK, VideoStatusResponse{Status: "ok", FFmpegVersion: version})
}

// ExtractFrames handles POST /extract-frames requests.
func (h *VideoHandlers) ExtractFrames(w http.ResponseWriter, r *http.Request) {
	params := extractFramesParams{
		IntervalSec: formFloat(r, "interval_sec", h.defaults.IntervalSec),
		MaxFrames:   formInt(r, "max_frames", h.defaults.MaxFrames),
		Quality:     formInt(r, "quality", h.defaults.Quality),
	}
	if err := h.validate.Struct(params); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed: "+err.Error(), "VALIDATION_ERROR")
		return
	}

	input, dir, cleanup, ok := h.saveUpload(w, r, "frames")
	if !ok {
		return
	}
	defer cleanup()

	h.framesResponse(r.Context(), w, input, dir, params)
}

// ExtractFramesFromBytes handles POST /extract-frames-from-bytes requests.
// The request body is the raw video; parameters arrive as query values.
func (h *VideoHandlers) ExtractFramesFromBytes(w http.ResponseWriter, r *http.Request) {
	params := extractFramesParams{
		IntervalSec: queryFloat(r, "interval_sec", h.defaults.IntervalSec),
		MaxFrames:   queryInt(r, "max_frames", h.defaults.MaxFrames),
		Quality:     queryInt(r, "quality", h.defaults.Quality),
	}
	if err := h.validate.Struct(params); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed: "+err.Error(), "VALIDATION_ERROR")
		return
	}

	input, err := h.store.SaveTemp(r.Context(), "input.mp4", io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body: "+err.Error(), "INVALID_REQUEST")
		return
	}
	defer os.Remove(input)

	dir, cleanup, err := h.store.Scope("frames")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create working directory: "+err.Error(), "STORAGE_ERROR")
		return
	}
	defer cleanup()

	h.framesResponse(r.Context(), w, input, dir, params)
}

// framesResponse runs frame extraction and writes the JSON payload shared
// by both extraction endpoints.
func (h *VideoHandlers) framesResponse(ctx context.Context, w http.ResponseWriter, input, dir string, params extractFramesParams) {
	outDir := filepath.Join(dir, "out")
	if err := os.Mkdir(outDir, 0o750); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create output directory: "+err.Error(), "STORAGE_ERROR")
		return
	}

	frames, err := h.proc.ExtractFrames(ctx, input, outDir, params.IntervalSec, params.MaxFrames, params.Quality)
	if err != nil {
		h.opError(w, "extract frames", err)
		return
	}
	if len(frames) == 0 {
		writeJSON(w, http.StatusOK, FramesResponse{
			Success:     false,
			Frames:      []string{},
			IntervalSec: params.IntervalSec,
			Error:       "no frames extracted from video",
		})
		return
	}

	encoded, err := encodeFrames(frames)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read frames: "+err.Error(), "STORAGE_ERROR")
		return
	}

	resp := FramesResponse{
		Success:     true,
		Frames:      encoded,
		Count:       len(encoded),
		IntervalSec: params.IntervalSec,
	}
	if dur, err := h.proc.Duration(ctx, input); err == nil {
		resp.DurationSec = &dur
	}
	writeJSON(w, http.StatusOK, resp)
}

// ExtractRange handles POST /extract-range requests.
func (h *VideoHandlers) ExtractRange(w http.ResponseWriter, r *http.Request) {
	params := rangeParams{
		StartTime: formFloat(r, "start_time", 0),
		EndTime:   formFloat(r, "end_time", 0),
		MaxFrames: formInt(r, "max_frames", h.defaults.MaxFrames),
		Quality:   formInt(r, "quality", h.defaults.Quality),
	}
	if err := h.validate.Struct(params); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed: "+err.Error(), "VALIDATION_ERROR")
		return
	}

	input, dir, cleanup, ok := h.saveUpload(w, r, "range")
	if !ok {
		return
	}
	defer cleanup()

	outDir := filepath.Join(dir, "out")
	if err := os.Mkdir(outDir, 0o750); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create output directory: "+err.Error(), "STORAGE_ERROR")
		return
	}

	frames, err := h.proc.ExtractRange(r.Context(), input, outDir, params.StartTime, params.EndTime, params.MaxFrames, params.Quality)
	if err != nil {
		h.opError(w, "extract range", err)
		return
	}
	if len(frames) == 0 {
		writeJSON(w, http.StatusOK, FramesResponse{
			Success: false,
			Frames:  []string{},
			Error:   "no frames extracted from video",
		})
		return
	}

	encoded, err := encodeFrames(frames)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read frames: "+err.Error(), "STORAGE_ERROR")
		return
	}

	interval := 0.0
	if params.MaxFrames > 1 {
		interval = (params.EndTime - params.StartTime) / float64(params.MaxFrames)
	}
	writeJSON(w, http.StatusOK, FramesResponse{
		Success:     true,
		Frames:      encoded,
		Count:       len(encoded),
		IntervalSec: interval,
	})
}

// Trim handles POST /trim requests.
func (h *VideoHandlers) Trim(w http.ResponseWriter, r *http.Request) {
	params := trimParams{
		StartTime: formFloat(r, "start_time", 0),
		EndTime:   formFloat(r, "end_time", 0),
	}
	if err := h.validate.Struct(params); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed: "+err.Error(), "VALIDATION_ERROR")
		return
	}

	input, dir, cleanup, ok := h.saveUpload(w, r, "trim")
	if !ok {
		return
	}
	defer cleanup()

	output := filepath.Join(dir, "trimmed.mp4")
	if err := h.proc.Trim(r.Context(), input, output, params.StartTime, params.EndTime); err != nil {
		h.opError(w, "trim", err)
		return
	}

	h.sendFile(w, output, "trimmed.mp4", nil)
}

// Resize handles POST /resize requests.
func (h *VideoHandlers) Resize(w http.ResponseWriter, r *http.Request) {
	params := resizeParams{Width: formInt(r, "width", 0)}
	if err := h.validate.Struct(params); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed: "+err.Error(), "VALIDATION_ERROR")
		return
	}

	input, dir, cleanup, ok := h.saveUpload(w, r, "resize")
	if !ok {
		return
	}
	defer cleanup()

	output := filepath.Join(dir, "resized.mp4")
	info, err := h.proc.Resize(r.Context(), input, output, params.Width)
	if err != nil {
		h.opError(w, "resize", err)
		return
	}

	h.sendFile(w, output, "resized.mp4", map[string]string{
		"X-Width":  strconv.Itoa(info.Width),
		"X-Height": strconv.Itoa(info.Height),
	})
}

// NormalizeWidth handles POST /normalize-width requests.
func (h *VideoHandlers) NormalizeWidth(w http.ResponseWriter, r *http.Request) {
	params := normalizeWidthParams{
		MinWidth:    formInt(r, "min_width", 0),
		TargetWidth: formInt(r, "target_width", 0),
	}
	if err := h.validate.Struct(params); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed: "+err.Error(), "VALIDATION_ERROR")
		return
	}

	input, dir, cleanup, ok := h.saveUpload(w, r, "normwidth")
	if !ok {
		return
	}
	defer cleanup()

	output := filepath.Join(dir, "normalized.mp4")
	info, err := h.proc.NormalizeWidth(r.Context(), input, output, params.MinWidth, params.TargetWidth)
	if err != nil {
		h.opError(w, "normalize width", err)
		return
	}

	h.sendFile(w, output, "normalized.mp4", map[string]string{
		"X-Width":  strconv.Itoa(info.Width),
		"X-Height": strconv.Itoa(info.Height),
	})
}

// NormalizePAR handles POST /normalize-par requests.
func (h *VideoHandlers) NormalizePAR(w http.ResponseWriter, r *http.Request) {
	input, dir, cleanup, ok := h.saveUpload(w, r, "normpar")
	if !ok {
		return
	}
	defer cleanup()

	output := filepath.Join(dir, "square.mp4")
	info, err := h.proc.NormalizePAR(r.Context(), input, output)
	if err != nil {
		h.opError(w, "normalize par", err)
		return
	}

	h.sendFile(w, output, "square.mp4", map[string]string{
		"X-Width":  strconv.Itoa(info.Width),
		"X-Height": strconv.Itoa(info.Height),
	})
}

// Extend handles POST /extend requests.
func (h *VideoHandlers) Extend(w http.ResponseWriter, r *http.Request) {
	params := extendParams{TargetDuration: formFloat(r, "target_duration", 0)}
	if err := h.validate.Struct(params); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed: "+err.Error(), "VALIDATION_ERROR")
		return
	}

	input, dir, cleanup, ok := h.saveUpload(w, r, "extend")
	if !ok {
		return
	}
	defer cleanup()

	output := filepath.Join(dir, "extended.mp4")
	if err := h.proc.ExtendDuration(r.Context(), input, output, params.TargetDuration); err != nil {
		h.opError(w, "extend", err)
		return
	}

	h.sendFile(w, output, "extended.mp4", nil)
}

// DetectScenes handles POST /detect-scenes requests.
func (h *VideoHandlers) DetectScenes(w http.ResponseWriter, r *http.Request) {
	params := scenesParams{
		Threshold:  formFloat(r, "threshold", 0.4),
		Thumbnails: formBool(r, "thumbnails"),
	}
	if err := h.validate.Struct(params); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed: "+err.Error(), "VALIDATION_ERROR")
		return
	}

	input, dir, cleanup, ok := h.saveUpload(w, r, "scenes")
	if !ok {
		return
	}
	defer cleanup()

	scenes, err := h.detector.Detect(r.Context(), input, dir, params.Threshold, params.Thumbnails)
	if err != nil {
		h.opError(w, "detect scenes", err)
		return
	}

	records := make([]SceneRecord, 0, len(scenes))
	for _, s := range scenes {
		rec := SceneRecord{
			Index:      s.Index,
			StartTime:  s.StartTime,
			EndTime:    s.EndTime,
			StartFrame: s.StartFrame,
			EndFrame:   s.EndFrame,
		}
		if s.ThumbnailPath != "" {
			data, err := os.ReadFile(s.ThumbnailPath)
			if err == nil {
				rec.Thumbnail = base64.StdEncoding.EncodeToString(data)
			}
		}
		records = append(records, rec)
	}
	writeJSON(w, http.StatusOK, ScenesResponse{Success: true, Scenes: records, Count: len(records)})
}

// Concat handles POST /concat requests. Input count limits are enforced
// before anything touches disk.
func (h *VideoHandlers) Concat(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error(), "INVALID_REQUEST")
		return
	}
	files := r.MultipartForm.File["videos"]
	if len(files) < 2 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("concat needs at least 2 videos, got %d", len(files)), "VALIDATION_ERROR")
		return
	}
	if len(files) > 20 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("concat accepts at most 20 videos, got %d", len(files)), "VALIDATION_ERROR")
		return
	}

	dir, cleanup, err := h.store.Scope("concat")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create working directory: "+err.Error(), "STORAGE_ERROR")
		return
	}
	defer cleanup()

	inputs := make([]string, 0, len(files))
	for i, fh := range files {
		path := filepath.Join(dir, fmt.Sprintf("part_%02d.mp4", i))
		if err := saveMultipartFile(fh, path); err != nil {
			writeError(w, http.StatusBadRequest, "failed to save video: "+err.Error(), "INVALID_REQUEST")
			return
		}
		inputs = append(inputs, path)
	}

	output := filepath.Join(dir, "joined.mp4")
	if err := h.proc.Concat(r.Context(), inputs, output); err != nil {
		h.opError(w, "concat", err)
		return
	}

	h.sendFile(w, output, "joined.mp4", nil)
}

// saveUpload parses the multipart form, saves the "video" part into a fresh
// scoped directory, and returns the saved path. When ok is false a response
// has already been written.
func (h *VideoHandlers) saveUpload(w http.ResponseWriter, r *http.Request, prefix string) (input, dir string, cleanup func(), ok bool) {
	file, header, err := r.FormFile("video")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing video file: "+err.Error(), "INVALID_REQUEST")
		return "", "", nil, false
	}
	defer file.Close()

	dir, cleanup, err = h.store.Scope(prefix)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create working directory: "+err.Error(), "STORAGE_ERROR")
		return "", "", nil, false
	}

	name := filepath.Base(header.Filename)
	if name == "" || name == "." {
		name = "input.mp4"
	}
	input = filepath.Join(dir, name)
	out, err := os.Create(input)
	if err != nil {
		cleanup()
		writeError(w, http.StatusInternalServerError, "failed to save video: "+err.Error(), "STORAGE_ERROR")
		return "", "", nil, false
	}
	_, err = io.Copy(out, file)
	out.Close()
	if err != nil {
		cleanup()
		writeError(w, http.StatusBadRequest, "failed to save video: "+err.Error(), "INVALID_REQUEST")
		return "", "", nil, false
	}
	return input, dir, cleanup, true
}

// sendFile streams a processed video back with optional extra headers.
func (h *VideoHandlers) sendFile(w http.ResponseWriter, path, filename string, headers map[string]string) {
	data, err := os.ReadFile(path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read output file: "+err.Error(), "STORAGE_ERROR")
		return
	}
	for k, v := range headers {
		w.Header().Set(k, v)
	}
	writeVideo(w, filename, data)
}

// opError maps processing errors to HTTP statuses: timeouts to 504,
// parameter errors to 400, everything else to 500.
func (h *VideoHandlers) opError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.Error("operation timed out", "op", op, "error", err)
		writeError(w, http.StatusGatewayTimeout, op+" timed out", "TIMEOUT")
	case isParamError(err):
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
	default:
		h.logger.Error("operation failed", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, op+" failed: "+err.Error(), "PROCESSING_ERROR")
	}
}

// isParamError reports whether err stems from caller-supplied parameters.
func isParamError(err error) bool {
	for _, target := range []error{
		media.ErrInvalidInterval,
		media.ErrInvalidFrameCount,
		media.ErrInvalidRange,
		media.ErrInvalidWidth,
		media.ErrInvalidDuration,
		media.ErrTooFewInputs,
		media.ErrTooManyInputs,
		scene.ErrInvalidThreshold,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func encodeFrames(paths []string) ([]string, error) {
	encoded := make([]string, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, base64.StdEncoding.EncodeToString(data))
	}
	return encoded, nil
}

func saveMultipartFile(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func formFloat(r *http.Request, name string, fallback float64) float64 {
	v := r.FormValue(name)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func formInt(r *http.Request, name string, fallback int) int {
	v := r.FormValue(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func formBool(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.FormValue(name))
	return err == nil && v
}

func queryFloat(r *http.Request, name string, fallback float64) float64 {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// NewVideoRouter creates the HTTP routes for the video tool service.
func NewVideoRouter(h *VideoHandlers, cfg Config, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("GET /status", h.Status)
	mux.HandleFunc("POST /extract-frames", h.ExtractFrames)
	mux.HandleFunc("POST /extract-frames-from-bytes", h.ExtractFramesFromBytes)
	mux.HandleFunc("POST /extract-range", h.ExtractRange)
	mux.HandleFunc("POST /trim", h.Trim)
	mux.HandleFunc("POST /resize", h.Resize)
	mux.HandleFunc("POST /normalize-width", h.NormalizeWidth)
	mux.HandleFunc("POST /normalize-par", h.NormalizePAR)
	mux.HandleFunc("POST /extend", h.Extend)
	mux.HandleFunc("POST /detect-scenes", h.DetectScenes)
	mux.HandleFunc("POST /concat", h.Concat)

	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)
	return chain(mux)
}
