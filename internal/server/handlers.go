package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"

	"github.com/klg/videobooth-api/internal/links"
	"github.com/klg/videobooth-api/internal/metrics"
	"github.com/klg/videobooth-api/internal/storage"
	"github.com/klg/videobooth-api/internal/video"
)

// videoField is the multipart form field carrying the upload.
const videoField = "video"

// multipartOverhead is the allowance for boundaries and part headers on top
// of the payload limit.
const multipartOverhead int64 = 1 << 20

// Error codes returned to clients.
const (
	codeNoFile               = "NO_FILE"
	codeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	codePayloadTooLarge      = "PAYLOAD_TOO_LARGE"
	codeUploadFailed         = "UPLOAD_FAILED"
	codeVideoNotFound        = "VIDEO_NOT_FOUND"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service   *video.Service
	links     *links.Builder
	metrics   *metrics.Metrics
	validator *validator.Validate
	logger    *slog.Logger
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithMetrics enables request metrics and the /metrics endpoint.
func WithMetrics(m *metrics.Metrics) HandlerOption {
	return func(h *Handlers) {
		h.metrics = m
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *video.Service, linkBuilder *links.Builder, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:   service,
		links:     linkBuilder,
		validator: validator.New(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// UploadVideo handles POST /api/videos/upload requests.
func (h *Handlers) UploadVideo(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.service.MaxUploadBytes()+multipartOverhead)

	mr, err := r.MultipartReader()
	if err != nil {
		h.logger.Warn("upload is not a multipart request",
			slog.String("error", err.Error()),
		)
		h.reject(w, http.StatusBadRequest, "no video file provided", codeNoFile)
		return
	}

	part, err := nextVideoPart(mr)
	if err != nil {
		h.uploadError(w, err)
		return
	}
	defer func() { _ = part.Close() }()

	// Compositing and remote transfer outlive a client disconnect.
	ctx := context.WithoutCancel(r.Context())

	a, err := h.service.Upload(ctx, video.UploadInput{
		OriginalName: part.FileName(),
		MediaType:    part.Header.Get("Content-Type"),
		Body:         part,
	})
	if err != nil {
		h.uploadError(w, err)
		return
	}

	downloadURL := h.links.Build(r, a)

	h.logger.Info("video uploaded",
		slog.String("video_id", a.ID),
		slog.String("filename", a.Filename),
		slog.String("storage", string(a.Backend)),
		slog.String("download_url", downloadURL),
	)

	writeJSON(w, http.StatusOK, UploadResponse{
		Success:     true,
		VideoID:     a.ID,
		DownloadURL: downloadURL,
		Storage:     string(a.Backend),
	})
}

// DownloadVideo handles GET /api/videos/download/{filename} requests.
// Only staged local copies are served.
func (h *Handlers) DownloadVideo(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")
	if err := h.validator.Var(filename, "required,max=255,excludesall=/\\"); err != nil {
		h.notFound(w)
		return
	}

	f, err := h.service.Local().Open(r.Context(), filename)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.notFound(w)
			return
		}
		h.logger.Error("failed to open video",
			slog.String("filename", filename),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read video", codeUploadFailed)
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		h.logger.Error("failed to stat video",
			slog.String("filename", filename),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read video", codeUploadFailed)
		return
	}

	if mtype, err := mimetype.DetectReader(f); err == nil {
		w.Header().Set("Content-Type", mtype.String())
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read video", codeUploadFailed)
		return
	}

	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	if h.metrics != nil {
		h.metrics.RecordDownload("found")
	}
	http.ServeContent(w, r, filename, info.ModTime(), f)
}

// nextVideoPart advances to the first file part named "video".
// Other parts are drained and skipped.
func nextVideoPart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, video.ErrNoFile
		}
		if err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				return nil, video.ErrPayloadTooLarge
			}
			return nil, video.ErrNoFile
		}
		if part.FormName() == videoField && part.FileName() != "" {
			return part, nil
		}
		_ = part.Close()
	}
}

func (h *Handlers) uploadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, video.ErrNoFile):
		h.reject(w, http.StatusBadRequest, "no video file provided", codeNoFile)
	case errors.Is(err, video.ErrUnsupportedMediaType):
		h.reject(w, http.StatusBadRequest, "only MP4 videos are accepted", codeUnsupportedMediaType)
	case errors.Is(err, video.ErrPayloadTooLarge):
		h.reject(w, http.StatusRequestEntityTooLarge, err.Error(), codePayloadTooLarge)
	default:
		h.logger.Error("upload failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to store video", codeUploadFailed)
	}
}

func (h *Handlers) reject(w http.ResponseWriter, status int, message, code string) {
	h.logger.Warn("upload rejected",
		slog.String("code", code),
		slog.String("error", message),
	)
	if h.metrics != nil {
		h.metrics.RecordRejected(code)
	}
	writeError(w, status, message, code)
}

func (h *Handlers) notFound(w http.ResponseWriter) {
	if h.metrics != nil {
		h.metrics.RecordDownload("not_found")
	}
	writeError(w, http.StatusNotFound, "video not found", codeVideoNotFound)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
