// Package artifact provides the UploadedArtifact model and the filename
// identity allocator used when a new video is ingested.
package artifact

// Backend identifies the storage that holds the authoritative bytes of an
// artifact.
type Backend string

const (
	// BackendLocal means the staging directory holds the authoritative copy.
	BackendLocal Backend = "local"
	// BackendFTP means the bytes were transferred to the FTP target.
	BackendFTP Backend = "ftp"
	// BackendS3 means the bytes were transferred to the S3 bucket.
	BackendS3 Backend = "s3"
)

// IsRemote returns true if the backend is not the local staging directory.
func (b Backend) IsRemote() bool {
	return b == BackendFTP || b == BackendS3
}

// Artifact represents one stored video.
type Artifact struct {
	// ID is the opaque identifier handed back to the caller.
	ID string
	// Filename is the unique name on whichever backend holds the bytes.
	Filename string
	// Backend is the authoritative storage at response time.
	Backend Backend
	// LocalPath is the staging copy. Empty once the local copy was removed.
	LocalPath string
	// RemotePath is the logical prefix on the remote backend.
	RemotePath string
	// DownloadURL is the externally resolvable URL, computed last.
	DownloadURL string
}

// New creates an artifact staged locally under the given filename.
func New(filename, localPath string) *Artifact {
	return &Artifact{
		ID:        IDFromFilename(filename),
		Filename:  filename,
		Backend:   BackendLocal,
		LocalPath: localPath,
	}
}

// HasLocalCopy reports whether the staging copy is still present.
func (a *Artifact) HasLocalCopy() bool {
	return a.LocalPath != ""
}
