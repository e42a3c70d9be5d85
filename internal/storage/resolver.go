package storage

import (
	"context"
	"log/slog"

	"github.com/klg/videobooth-api/internal/artifact"
)

// Placement is the outcome of resolving where an artifact lives.
type Placement struct {
	// Backend is the authoritative storage.
	Backend artifact.Backend
	// RemotePath is the remote prefix; empty for local placements.
	RemotePath string
	// LocalRetained reports whether the staging copy still exists.
	LocalRetained bool
	// Fallback is true when a remote transfer was attempted and failed.
	Fallback bool
}

// Resolver decides per upload whether the artifact stays local or is
// promoted to the configured remote. Remote failures never escape Resolve:
// they turn into a local placement with the staging copy intact.
type Resolver struct {
	local         *LocalStorage
	remote        Remote
	keepLocalCopy bool
	logger        *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithRemote enables promotion to remote. When keepLocalCopy is false the
// staging copy is deleted after a successful transfer.
func WithRemote(remote Remote, keepLocalCopy bool) ResolverOption {
	return func(r *Resolver) {
		r.remote = remote
		r.keepLocalCopy = keepLocalCopy
	}
}

// NewResolver creates a new Resolver. Without WithRemote every artifact
// stays local.
func NewResolver(local *LocalStorage, logger *slog.Logger, opts ...ResolverOption) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		local:  local,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RemoteEnabled reports whether a remote target is configured.
func (r *Resolver) RemoteEnabled() bool {
	return r.remote != nil
}

// RemoteBackend returns the configured remote backend, if any.
func (r *Resolver) RemoteBackend() (artifact.Backend, bool) {
	if r.remote == nil {
		return "", false
	}
	return r.remote.Backend(), true
}

// Resolve promotes the staged file to the remote when one is configured.
func (r *Resolver) Resolve(ctx context.Context, localPath, filename string) Placement {
	local := Placement{Backend: artifact.BackendLocal, LocalRetained: true}
	if r.remote == nil {
		return local
	}

	backend := r.remote.Backend()
	r.logger.Info("transferring artifact to remote storage",
		slog.String("filename", filename),
		slog.String("backend", string(backend)),
	)

	remotePath, err := r.remote.Store(ctx, localPath, filename)
	if err != nil {
		r.logger.Error("remote transfer failed, keeping local copy",
			slog.String("filename", filename),
			slog.String("backend", string(backend)),
			slog.String("error", err.Error()),
		)
		local.Fallback = true
		return local
	}

	placement := Placement{
		Backend:       backend,
		RemotePath:    remotePath,
		LocalRetained: true,
	}

	if !r.keepLocalCopy {
		if err := r.local.Remove(ctx, localPath); err != nil {
			r.logger.Warn("failed to remove local copy after remote transfer",
				slog.String("path", localPath),
				slog.String("error", err.Error()),
			)
		} else {
			placement.LocalRetained = false
			r.logger.Info("local copy removed after remote transfer",
				slog.String("path", localPath),
			)
		}
	}

	return placement
}
