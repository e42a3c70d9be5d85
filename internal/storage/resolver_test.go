package storage

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/klg/videobooth-api/internal/artifact"
)

// mockRemote implements Remote for testing.
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

func stageFile(t *testing.T, local *LocalStorage, filename string) string {
	t.Helper()
	path, err := local.Save(context.Background(), filename, strings.NewReader("bytes"), 0)
	require.NoError(t, err)
	return path
}

func TestResolver_NoRemote(t *testing.T) {
	local := setupTestStorage(t)
	path := stageFile(t, local, "a_1.mp4")

	r := NewResolver(local, testLogger())
	assert.False(t, r.RemoteEnabled())

	p := r.Resolve(context.Background(), path, "a_1.mp4")
	assert.Equal(t, Placement{Backend: artifact.BackendLocal, LocalRetained: true}, p)
	assert.FileExists(t, path)
}

func TestResolver_RemoteSuccess_DeletesLocal(t *testing.T) {
	local := setupTestStorage(t)
	path := stageFile(t, local, "a_1.mp4")

	remote := &mockRemote{}
	remote.On("Store", mock.Anything, path, "a_1.mp4").Return("videos", nil)

	r := NewResolver(local, testLogger(), WithRemote(remote, false))
	p := r.Resolve(context.Background(), path, "a_1.mp4")

	assert.Equal(t, artifact.BackendFTP, p.Backend)
	assert.Equal(t, "videos", p.RemotePath)
	assert.False(t, p.LocalRetained)
	assert.False(t, p.Fallback)
	assert.NoFileExists(t, path)
	remote.AssertExpectations(t)
}

func TestResolver_RemoteSuccess_KeepsLocal(t *testing.T) {
	local := setupTestStorage(t)
	path := stageFile(t, local, "a_1.mp4")

	remote := &mockRemote{}
	remote.On("Store", mock.Anything, path, "a_1.mp4").Return("videos", nil)

	r := NewResolver(local, testLogger(), WithRemote(remote, true))
	p := r.Resolve(context.Background(), path, "a_1.mp4")

	assert.Equal(t, artifact.BackendFTP, p.Backend)
	assert.True(t, p.LocalRetained)
	assert.FileExists(t, path)
}

func TestResolver_RemoteFailure_FallsBackToLocal(t *testing.T) {
	local := setupTestStorage(t)
	path := stageFile(t, local, "a_1.mp4")

	remote := &mockRemote{}
	remote.On("Store", mock.Anything, path, "a_1.mp4").Return("", errors.New("ftp connect: connection refused"))

	// Retention disabled must not matter on failure.
	r := NewResolver(local, testLogger(), WithRemote(remote, false))
	p := r.Resolve(context.Background(), path, "a_1.mp4")

	assert.Equal(t, artifact.BackendLocal, p.Backend)
	assert.Empty(t, p.RemotePath)
	assert.True(t, p.LocalRetained)
	assert.True(t, p.Fallback)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "bytes", string(content))
}

func TestResolver_LocalDeleteFailureStaysRemote(t *testing.T) {
	local := setupTestStorage(t)
	path := stageFile(t, local, "a_1.mp4")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancelling during the transfer makes the follow-up local delete fail.
	remote := &mockRemote{}
	remote.On("Store", mock.Anything, path, "a_1.mp4").
		Run(func(mock.Arguments) { cancel() }).
		Return("videos", nil)

	r := NewResolver(local, testLogger(), WithRemote(remote, false))
	p := r.Resolve(ctx, path, "a_1.mp4")

	assert.Equal(t, artifact.BackendFTP, p.Backend)
	assert.True(t, p.LocalRetained)
	assert.FileExists(t, path)
}
