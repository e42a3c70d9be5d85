package video

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/klg/videobooth-api/internal/artifact"
	"github.com/klg/videobooth-api/internal/media"
	"github.com/klg/videobooth-api/internal/storage"
)

// mockWatermarker implements media.Watermarker for testing.
type mockWatermarker struct {
	mock.Mock
}

func (m *mockWatermarker) Apply(ctx context.Context, videoPath, watermarkPath string, opts media.WatermarkOptions) error {
	args := m.Called(ctx, videoPath, watermarkPath, opts)
	return args.Error(0)
}

// mockRemote implements storage.Remote for testing.
type mockRemote struct {
	mock.Mock
}

func (m *mockRemote) Backend() artifact.Backend {
	return artifact.BackendFTP
}

func (m *mockRemote) Store(ctx context.Context, localPath, filename string) (string, error) {
	args := m.Called(ctx, localPath, filename)
	return args.String(0), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestService(t *testing.T, resolverOpts []storage.ResolverOption, opts ...ServiceOption) (*Service, *storage.LocalStorage) {
	t.Helper()
	local, err := storage.NewLocalStorage(filepath.Join(t.TempDir(), "uploads", "videos"))
	require.NoError(t, err)
	resolver := storage.NewResolver(local, testLogger(), resolverOpts...)
	return NewService(artifact.NewAllocator(), local, resolver, testLogger(), opts...), local
}

func stagedFiles(t *testing.T, local *storage.LocalStorage) []string {
	t.Helper()
	entries, err := os.ReadDir(local.Dir())
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func mp4Input(body string) UploadInput {
	return UploadInput{OriginalName: "result.mp4", MediaType: "video/mp4", Body: strings.NewReader(body)}
}

func TestIsAcceptedMediaType(t *testing.T) {
	assert.True(t, IsAcceptedMediaType("video/mp4"))
	assert.True(t, IsAcceptedMediaType("Video/MP4; codecs=avc1"))
	assert.False(t, IsAcceptedMediaType("video/webm"))
	assert.False(t, IsAcceptedMediaType("application/octet-stream"))
	assert.False(t, IsAcceptedMediaType(""))
}

func TestUpload_Local(t *testing.T) {
	svc, local := newTestService(t, nil)

	a, err := svc.Upload(context.Background(), mp4Input("video bytes"))
	require.NoError(t, err)

	assert.Equal(t, artifact.BackendLocal, a.Backend)
	assert.Equal(t, artifact.IDFromFilename(a.Filename), a.ID)
	assert.True(t, strings.HasSuffix(a.Filename, ".mp4"))
	assert.Equal(t, filepath.Join(local.Dir(), a.Filename), a.LocalPath)

	content, err := os.ReadFile(a.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "video bytes", string(content))
}

func TestUpload_RejectsWrongMediaType(t *testing.T) {
	svc, local := newTestService(t, nil)

	_, err := svc.Upload(context.Background(), UploadInput{
		OriginalName: "clip.webm",
		MediaType:    "video/webm",
		Body:         strings.NewReader("x"),
	})
	assert.ErrorIs(t, err, ErrUnsupportedMediaType)
	assert.Empty(t, stagedFiles(t, local))
}

func TestUpload_RejectsOversizedPayload(t *testing.T) {
	svc, local := newTestService(t, nil, WithMaxUploadBytes(16))

	_, err := svc.Upload(context.Background(), UploadInput{
		OriginalName: "big.mp4",
		MediaType:    "video/mp4",
		Body:         bytes.NewReader(make([]byte, 17)),
	})
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.Empty(t, stagedFiles(t, local))
}

func TestUpload_NilBody(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.Upload(context.Background(), UploadInput{MediaType: "video/mp4"})
	assert.ErrorIs(t, err, ErrNoFile)
}

func TestUpload_DefaultLimit(t *testing.T) {
	svc, _ := newTestService(t, nil, WithMaxUploadBytes(0))
	assert.Equal(t, DefaultMaxUploadBytes, svc.MaxUploadBytes())
}

func TestUpload_Watermark(t *testing.T) {
	logo := filepath.Join(t.TempDir(), "logo.png")
	require.NoError(t, os.WriteFile(logo, []byte("png"), 0o600))

	opts := media.WatermarkOptions{Orientation: media.OrientationPortrait}
	wm := &mockWatermarker{}
	wm.On("Apply", mock.Anything, mock.Anything, logo, opts).Return(nil)

	svc, _ := newTestService(t, nil, WithWatermark(wm, logo, opts))
	require.True(t, svc.WatermarkEnabled())

	a, err := svc.Upload(context.Background(), mp4Input("x"))
	require.NoError(t, err)

	wm.AssertCalled(t, "Apply", mock.Anything, a.LocalPath, logo, opts)
	wm.AssertNumberOfCalls(t, "Apply", 1)
}

func TestUpload_WatermarkFailureContinues(t *testing.T) {
	logo := filepath.Join(t.TempDir(), "logo.png")
	require.NoError(t, os.WriteFile(logo, []byte("png"), 0o600))

	wm := &mockWatermarker{}
	wm.On("Apply", mock.Anything, mock.Anything, logo, mock.Anything).Return(errors.New("ffmpeg exploded"))

	svc, _ := newTestService(t, nil, WithWatermark(wm, logo, media.WatermarkOptions{}))

	a, err := svc.Upload(context.Background(), mp4Input("original"))
	require.NoError(t, err)

	content, err := os.ReadFile(a.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "original", string(content))
}

func TestUpload_WatermarkImageMissingSkips(t *testing.T) {
	wm := &mockWatermarker{}
	svc, _ := newTestService(t, nil, WithWatermark(wm, filepath.Join(t.TempDir(), "missing.png"), media.WatermarkOptions{}))

	_, err := svc.Upload(context.Background(), mp4Input("x"))
	require.NoError(t, err)
	wm.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpload_RemotePromotion(t *testing.T) {
	remote := &mockRemote{}
	remote.On("Store", mock.Anything, mock.Anything, mock.Anything).Return("videos", nil)

	svc, local := newTestService(t, []storage.ResolverOption{storage.WithRemote(remote, false)})

	a, err := svc.Upload(context.Background(), mp4Input("x"))
	require.NoError(t, err)

	assert.Equal(t, artifact.BackendFTP, a.Backend)
	assert.Equal(t, "videos", a.RemotePath)
	assert.False(t, a.HasLocalCopy())
	assert.Empty(t, stagedFiles(t, local))
}

func TestUpload_RemoteFailureStaysLocal(t *testing.T) {
	remote := &mockRemote{}
	remote.On("Store", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("connection refused"))

	svc, _ := newTestService(t, []storage.ResolverOption{storage.WithRemote(remote, false)})

	a, err := svc.Upload(context.Background(), mp4Input("keep me"))
	require.NoError(t, err)

	assert.Equal(t, artifact.BackendLocal, a.Backend)
	assert.Empty(t, a.RemotePath)
	content, err := os.ReadFile(a.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(content))
}

// recorder captures pipeline measurements.
type recorder struct {
	uploads   []string
	transfers []bool
}

func (r *recorder) RecordUpload(backend string, _ int64) { r.uploads = append(r.uploads, backend) }

func (r *recorder) ObserveWatermark(_ time.Duration, _ error) {}

func (r *recorder) ObserveTransfer(_ string, _ time.Duration, fallback bool) {
	r.transfers = append(r.transfers, fallback)
}

func TestUpload_RecordsMetrics(t *testing.T) {
	remote := &mockRemote{}
	remote.On("Store", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("down"))

	rec := &recorder{}
	svc, _ := newTestService(t, []storage.ResolverOption{storage.WithRemote(remote, true)}, WithRecorder(rec))

	_, err := svc.Upload(context.Background(), mp4Input("x"))
	require.NoError(t, err)

	assert.Equal(t, []string{"local"}, rec.uploads)
	assert.Equal(t, []bool{true}, rec.transfers)
}
