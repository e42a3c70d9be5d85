package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IndependentRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	m1 := New()
	m2 := New()
	assert.NotSame(t, m1.Registry(), m2.Registry())
}

func TestRecordUpload(t *testing.T) {
	m := New()
	m.RecordUpload("local", 100)
	m.RecordUpload("local", 50)
	m.RecordUpload("ftp", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.uploadsTotal.WithLabelValues("local")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploadsTotal.WithLabelValues("ftp")))
	assert.Equal(t, 150.0, testutil.ToFloat64(m.uploadBytesTotal))
}

func TestObserveWatermark(t *testing.T) {
	m := New()
	m.ObserveWatermark(time.Second, nil)
	m.ObserveWatermark(time.Second, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.watermarkFailures))
}

func TestObserveTransfer(t *testing.T) {
	m := New()
	m.ObserveTransfer("ftp", time.Second, false)
	m.ObserveTransfer("ftp", time.Second, true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.transferFallbacks.WithLabelValues("ftp")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordRejected("unsupported_media_type")
	m.RecordDownload("found")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `videobooth_uploads_rejected_total{reason="unsupported_media_type"} 1`)
	assert.Contains(t, body, `videobooth_downloads_total{result="found"} 1`)
}
