// Package video provides the upload pipeline: ingestion into the staging
// directory, optional watermark compositing and storage resolution.
package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"time"

	"github.com/klg/videobooth-api/internal/artifact"
	"github.com/klg/videobooth-api/internal/media"
	"github.com/klg/videobooth-api/internal/storage"
)

// AcceptedMediaType is the only container type accepted for upload.
const AcceptedMediaType = "video/mp4"

// DefaultMaxUploadBytes is the default payload limit (100 MiB).
const DefaultMaxUploadBytes int64 = 100 << 20

// Static errors for the upload pipeline.
var (
	// ErrNoFile is returned when the request carries no video.
	ErrNoFile = errors.New("no file uploaded")
	// ErrUnsupportedMediaType is returned for anything but video/mp4.
	ErrUnsupportedMediaType = errors.New("only MP4 videos are accepted")
	// ErrPayloadTooLarge is returned when the video exceeds the size limit.
	ErrPayloadTooLarge = errors.New("video exceeds the upload size limit")
)

// Recorder receives pipeline measurements. *metrics.Metrics implements it.
type Recorder interface {
	RecordUpload(storage string, bytes int64)
	ObserveWatermark(d time.Duration, err error)
	ObserveTransfer(backend string, d time.Duration, fallback bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordUpload(string, int64) {}

func (nopRecorder) ObserveWatermark(time.Duration, error) {}

func (nopRecorder) ObserveTransfer(string, time.Duration, bool) {}

// UploadInput describes one incoming video payload.
type UploadInput struct {
	// OriginalName is the client-side filename; only its extension is kept.
	OriginalName string
	// MediaType is the declared Content-Type of the payload.
	MediaType string
	// Body streams the payload.
	Body io.Reader
}

// Service runs the upload pipeline.
type Service struct {
	allocator     *artifact.Allocator
	local         *storage.LocalStorage
	resolver      *storage.Resolver
	watermarker   media.Watermarker
	watermarkPath string
	watermarkOpts media.WatermarkOptions
	maxBytes      int64
	recorder      Recorder
	logger        *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithWatermark enables watermark compositing with the image at path.
func WithWatermark(w media.Watermarker, path string, opts media.WatermarkOptions) ServiceOption {
	return func(s *Service) {
		s.watermarker = w
		s.watermarkPath = path
		s.watermarkOpts = opts
	}
}

// WithMaxUploadBytes overrides the payload limit.
func WithMaxUploadBytes(n int64) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// NewService creates a new Service.
func NewService(
	allocator *artifact.Allocator,
	local *storage.LocalStorage,
	resolver *storage.Resolver,
	logger *slog.Logger,
	opts ...ServiceOption,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		allocator: allocator,
		local:     local,
		resolver:  resolver,
		maxBytes:  DefaultMaxUploadBytes,
		recorder:  nopRecorder{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxUploadBytes returns the payload limit.
func (s *Service) MaxUploadBytes() int64 {
	return s.maxBytes
}

// WatermarkEnabled reports whether compositing is configured.
func (s *Service) WatermarkEnabled() bool {
	return s.watermarker != nil && s.watermarkPath != ""
}

// Local returns the staging store.
func (s *Service) Local() *storage.LocalStorage {
	return s.local
}

// Upload stages the payload, watermarks it when enabled and resolves its
// authoritative storage. Remote transfer and compositing failures do not
// fail the upload; only client input errors and local I/O errors do.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*artifact.Artifact, error) {
	if !IsAcceptedMediaType(in.MediaType) {
		return nil, fmt.Errorf("%w: got %q", ErrUnsupportedMediaType, in.MediaType)
	}
	if in.Body == nil {
		return nil, ErrNoFile
	}

	_, filename := s.allocator.Allocate(in.OriginalName, AcceptedMediaType)

	path, err := s.local.Save(ctx, filename, in.Body, s.maxBytes)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.Is(err, storage.ErrTooLarge) || errors.As(err, &maxBytesErr) {
			return nil, fmt.Errorf("%w: limit is %d bytes", ErrPayloadTooLarge, s.maxBytes)
		}
		return nil, fmt.Errorf("stage upload: %w", err)
	}

	a := artifact.New(filename, path)
	s.logger.Info("video staged",
		slog.String("video_id", a.ID),
		slog.String("filename", filename),
		slog.String("path", path),
	)

	s.applyWatermark(ctx, a)

	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}

	s.resolve(ctx, a)
	s.recorder.RecordUpload(string(a.Backend), size)

	return a, nil
}

// applyWatermark composites the watermark onto the staged file. The
// compositor leaves the original untouched on failure, so errors are logged
// and the upload continues without a watermark.
func (s *Service) applyWatermark(ctx context.Context, a *artifact.Artifact) {
	if !s.WatermarkEnabled() {
		return
	}

	if _, err := os.Stat(s.watermarkPath); err != nil {
		s.logger.Warn("watermark image unavailable, skipping",
			slog.String("watermark_path", s.watermarkPath),
			slog.String("error", err.Error()),
		)
		return
	}

	start := time.Now()
	err := s.watermarker.Apply(ctx, a.LocalPath, s.watermarkPath, s.watermarkOpts)
	s.recorder.ObserveWatermark(time.Since(start), err)
	if err != nil {
		s.logger.Error("watermark failed, keeping original video",
			slog.String("video_id", a.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Info("watermark applied",
		slog.String("video_id", a.ID),
		slog.Duration("duration", time.Since(start)),
	)
}

func (s *Service) resolve(ctx context.Context, a *artifact.Artifact) {
	start := time.Now()
	placement := s.resolver.Resolve(ctx, a.LocalPath, a.Filename)
	if remote, ok := s.resolver.RemoteBackend(); ok {
		s.recorder.ObserveTransfer(string(remote), time.Since(start), placement.Fallback)
	}

	a.Backend = placement.Backend
	a.RemotePath = placement.RemotePath
	if !placement.LocalRetained {
		a.LocalPath = ""
	}
}

// IsAcceptedMediaType reports whether the declared Content-Type is video/mp4,
// ignoring parameters and case.
func IsAcceptedMediaType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == AcceptedMediaType
}
