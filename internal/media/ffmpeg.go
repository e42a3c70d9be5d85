package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Static errors for media operations.
var (
	// ErrFFprobeExecution is returned when ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
	// ErrNoVideoStream is returned when a probed file has no video stream.
	ErrNoVideoStream = errors.New("no video stream found")
	// ErrWatermarkRequired is returned when no watermark image path is given.
	ErrWatermarkRequired = errors.New("watermark path is required")
)

// FFmpegProcessor implements Watermarker using the ffmpeg and ffprobe CLIs.
type FFmpegProcessor struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
	logger      *slog.Logger
}

// ProcessorOption configures an FFmpegProcessor.
type ProcessorOption func(*FFmpegProcessor)

// WithFFprobePath sets the ffprobe binary used for probing dimensions.
func WithFFprobePath(path string) ProcessorOption {
	return func(p *FFmpegProcessor) {
		if path != "" {
			p.ffprobePath = path
		}
	}
}

// WithLogger sets the logger used to report probe fallbacks.
func WithLogger(logger *slog.Logger) ProcessorOption {
	return func(p *FFmpegProcessor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewFFmpegProcessor creates a new FFmpegProcessor.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpegProcessor(ffmpegPath string, opts ...ProcessorOption) *FFmpegProcessor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	p := &FFmpegProcessor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: "ffprobe",
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Apply overlays the watermark at the bottom-left corner of the video and
// replaces the video in place. The result is first written to a sibling
// temporary file which is renamed over the original only after ffmpeg
// succeeds. Audio is copied unchanged.
func (p *FFmpegProcessor) Apply(ctx context.Context, videoPath, watermarkPath string, opts WatermarkOptions) error {
	if watermarkPath == "" {
		return ErrWatermarkRequired
	}

	width, height, err := p.ProbeDimensions(ctx, videoPath)
	if err != nil {
		p.logger.Warn("probe failed, using default dimensions",
			slog.String("path", videoPath),
			slog.String("error", err.Error()),
		)
		width, height = DefaultWidth, DefaultHeight
	}

	layout := ComputeLayout(width, height, opts)
	tempPath := watermarkTempPath(videoPath)

	// Input 0 is the video and input 1 the watermark; overlayFilter refers
	// to them by index.
	args := []string{
		"-y",
		"-i", videoPath,
		"-i", watermarkPath,
		"-filter_complex", overlayFilter(layout),
		"-c:a", "copy",
		tempPath,
	}

	if err := p.runFFmpeg(ctx, args); err != nil {
		_ = os.Remove(tempPath)
		return err
	}

	if err := os.Rename(tempPath, videoPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("replace original video: %w", err)
	}

	return nil
}

// watermarkTempPath returns the sibling file the composited video is written to.
func watermarkTempPath(videoPath string) string {
	ext := filepath.Ext(videoPath)
	base := strings.TrimSuffix(filepath.Base(videoPath), ext)
	return filepath.Join(filepath.Dir(videoPath), base+"__wm"+ext)
}

// overlayFilter builds the filter graph that scales the watermark (never
// upscaling past its own width) and anchors it at the bottom-left corner.
func overlayFilter(l Layout) string {
	margin := strconv.FormatFloat(l.Margin, 'f', -1, 64)
	scale := fmt.Sprintf("[1:v]scale='min(%d,iw)':-1[wm]", l.TargetWidth)
	overlay := fmt.Sprintf("[0:v][wm]overlay=%s:main_h-overlay_h-%s", margin, margin)
	return scale + ";" + overlay
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (p *FFmpegProcessor) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		// Check if context was cancelled
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
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
