package artifact

import (
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Allocator derives unique filenames for incoming uploads.
// Format: <uuid>_<unix-millis><ext>
// Example: 3f0c5b9e-6a43-4c4e-9a55-0b8d3c1f2e7a_1718000000000.mp4
type Allocator struct {
	now  func() time.Time
	last atomic.Int64
}

// AllocatorOption configures an Allocator.
type AllocatorOption func(*Allocator)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) AllocatorOption {
	return func(a *Allocator) {
		a.now = now
	}
}

// NewAllocator creates a new Allocator.
func NewAllocator(opts ...AllocatorOption) *Allocator {
	a := &Allocator{now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allocate returns the artifact ID and the filename for an upload whose
// client-side name is originalName. When originalName has no extension the
// extension registered for mediaType is used instead.
func (a *Allocator) Allocate(originalName, mediaType string) (id, filename string) {
	id = uuid.NewString()
	filename = id + "_" + strconv.FormatInt(a.timestamp(), 10) + extension(originalName, mediaType)
	return id, filename
}

// timestamp returns the current Unix time in milliseconds, forced to be
// strictly greater than any value previously returned by this allocator.
func (a *Allocator) timestamp() int64 {
	now := a.now().UnixMilli()
	for {
		last := a.last.Load()
		next := now
		if next <= last {
			next = last + 1
		}
		if a.last.CompareAndSwap(last, next) {
			return next
		}
	}
}

func extension(originalName, mediaType string) string {
	if ext := filepath.Ext(filepath.Base(originalName)); validExtension(ext) {
		return ext
	}
	if mediaType == "" {
		return ""
	}
	if mt := mimetype.Lookup(mediaType); mt != nil {
		return mt.Extension()
	}
	return ""
}

// validExtension reports whether ext is a dot followed by letters and digits.
func validExtension(ext string) bool {
	if len(ext) < 2 || ext[0] != '.' {
		return false
	}
	for _, c := range ext[1:] {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

// IDFromFilename returns the identifier segment of an allocated filename,
// i.e. everything before the first underscore.
func IDFromFilename(filename string) string {
	id, _, _ := strings.Cut(filename, "_")
	return id
}
