// Package storage provides the staging directory for uploaded videos, the
// remote targets an artifact can be promoted to (FTP and S3), and the
// Resolver that decides which of them holds the authoritative copy.
package storage

import (
	"context"

	"github.com/klg/videobooth-api/internal/artifact"
)

// Remote is a storage target that artifacts are promoted to after staging.
type Remote interface {
	// Backend identifies the remote in responses and logs.
	Backend() artifact.Backend

	// Store transfers the file at localPath to the remote under filename,
	// unaltered, and returns the logical remote path prefix it was stored
	// under. Implementations must release any connection before returning.
	Store(ctx context.Context, localPath, filename string) (remotePath string, err error)
}
