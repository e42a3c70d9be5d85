// Package links builds the externally shareable download URL of a stored
// artifact.
package links

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/klg/videobooth-api/internal/artifact"
)

// ErrNotAbsolute is returned when a composed URL lacks a scheme or host.
var ErrNotAbsolute = errors.New("url is not absolute")

// Builder computes download URLs with a fixed precedence:
//  1. the remote backend's display base, when the artifact lives remotely;
//  2. the configured public base URL;
//  3. the scheme and host of the inbound request.
//
// A candidate that is not a valid absolute URL falls through to the next rule.
type Builder struct {
	pathPrefix   string
	publicBase   string
	displayBases map[artifact.Backend]string
	logger       *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithPublicBase sets the public base URL override. The first non-empty
// value wins, so callers pass the primary name before its alias.
func WithPublicBase(candidates ...string) Option {
	return func(b *Builder) {
		for _, c := range candidates {
			if c = strings.TrimSpace(c); c != "" {
				b.publicBase = c
				return
			}
		}
	}
}

// WithDisplayBase sets the public URL prefix under which a remote backend
// serves its files.
func WithDisplayBase(backend artifact.Backend, base string) Option {
	return func(b *Builder) {
		if base != "" {
			b.displayBases[backend] = base
		}
	}
}

// NewBuilder creates a Builder. pathPrefix is the URL path the static mount
// serves staged files under, e.g. "/uploads/videos/".
func NewBuilder(pathPrefix string, logger *slog.Logger, opts ...Option) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Builder{
		pathPrefix:   "/" + strings.Trim(pathPrefix, "/") + "/",
		displayBases: make(map[artifact.Backend]string),
		logger:       logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// PathPrefix returns the normalized URL path staged files are served under.
func (b *Builder) PathPrefix() string {
	return b.pathPrefix
}

// RelativePath returns the path of a staged file on this server.
func (b *Builder) RelativePath(filename string) string {
	return b.pathPrefix + url.PathEscape(filename)
}

// Build returns the download URL for a.
func (b *Builder) Build(r *http.Request, a *artifact.Artifact) string {
	if a.Backend.IsRemote() {
		if base, ok := b.displayBases[a.Backend]; ok {
			u, err := ComposeRemote(base, a.RemotePath, a.Filename)
			if err == nil {
				return u
			}
			b.logger.Warn("invalid display URL, falling back",
				slog.String("backend", string(a.Backend)),
				slog.String("display_url", base),
				slog.String("error", err.Error()),
			)
		}
	}

	rel := b.RelativePath(a.Filename)

	if b.publicBase != "" {
		u, err := resolveAgainst(b.publicBase, rel)
		if err == nil {
			return u
		}
		b.logger.Warn("invalid PUBLIC_BASE_URL/BASE_URL value, falling back to request host",
			slog.String("base_url", b.publicBase),
			slog.String("error", err.Error()),
		)
	}

	return FromRequest(r, rel)
}

// ComposeRemote joins a display base URL, a remote path and a filename into
// {base}/{remotePath}/{filename}. The base is normalized to end with exactly
// one slash and leading slashes are stripped from remotePath.
func ComposeRemote(displayBase, remotePath, filename string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(displayBase), "/") + "/"

	segment := strings.TrimLeft(remotePath, "/")
	if segment != "" {
		segment = strings.TrimRight(segment, "/") + "/"
	}

	return resolveAgainst(base, segment+url.PathEscape(filename))
}

// FromRequest builds {scheme}://{host}{path} from the inbound request. The
// scheme is taken from the first X-Forwarded-Proto value when present.
func FromRequest(r *http.Request, path string) string {
	return requestScheme(r) + "://" + r.Host + path
}

func requestScheme(r *http.Request) string {
	if values := r.Header.Values("X-Forwarded-Proto"); len(values) > 0 {
		first, _, _ := strings.Cut(values[0], ",")
		if proto := strings.ToLower(strings.TrimSpace(first)); validScheme(proto) {
			return proto
		}
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// validScheme reports whether s is a syntactically valid URL scheme.
func validScheme(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c >= 'a' && c <= 'z':
		case i > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return true
}

func resolveAgainst(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if !baseURL.IsAbs() || baseURL.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrNotAbsolute, base)
	}

	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse path: %w", err)
	}

	return baseURL.ResolveReference(refURL).String(), nil
}
