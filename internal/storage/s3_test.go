package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klg/videobooth-api/internal/artifact"
)

func TestNewS3Remote(t *testing.T) {
	cfg := S3Config{
		Bucket:          "test-bucket",
		Region:          "us-east-1",
		Prefix:          "/videos/",
		Endpoint:        "http://localhost:4566", // LocalStack-like endpoint
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
	}

	remote, err := NewS3Remote(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, "test-bucket", remote.bucket)
	assert.Equal(t, "videos", remote.prefix)
	assert.Equal(t, artifact.BackendS3, remote.Backend())
	assert.Equal(t, "https://test-bucket.s3.us-east-1.amazonaws.com/", cfg.DisplayURL())
}

func TestS3Remote_Store_MockServer(t *testing.T) {
	var gotPath, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT method, got %s", r.Method)
		}
		gotPath = r.URL.Path
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("failed to read body: %v", err)
		}
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	remote, err := NewS3Remote(context.Background(), S3Config{
		Bucket:          "test-bucket",
		Region:          "us-east-1",
		Prefix:          "videos",
		Endpoint:        server.URL,
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
	})
	require.NoError(t, err)

	remotePath, err := remote.Store(context.Background(), writeLocalFile(t, "test content"), "id_1.mp4")
	require.NoError(t, err)

	assert.Equal(t, "videos", remotePath)
	assert.True(t, strings.HasSuffix(gotPath, "/test-bucket/videos/id_1.mp4"), "unexpected path: %s", gotPath)
	assert.Contains(t, gotBody, "test content")
}

func TestS3Remote_Store_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	remote, err := NewS3Remote(context.Background(), S3Config{
		Bucket:          "test-bucket",
		Region:          "us-east-1",
		Endpoint:        server.URL,
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
	})
	require.NoError(t, err)

	_, err = remote.Store(context.Background(), writeLocalFile(t, "x"), "id_1.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload to S3")
}
