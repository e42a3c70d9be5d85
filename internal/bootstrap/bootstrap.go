// Package bootstrap provides dependency initialization for the videobooth API.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/klg/videobooth-api/internal/artifact"
	"github.com/klg/videobooth-api/internal/config"
	"github.com/klg/videobooth-api/internal/links"
	"github.com/klg/videobooth-api/internal/media"
	"github.com/klg/videobooth-api/internal/metrics"
	"github.com/klg/videobooth-api/internal/storage"
	"github.com/klg/videobooth-api/internal/video"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	VideoService *video.Service
	Links        *links.Builder
	Metrics      *metrics.Metrics
	// StaticDir is the staging directory served at Links.PathPrefix().
	StaticDir string
}

// remoteSetup is the selected remote backend and how its URLs are built.
type remoteSetup struct {
	remote        storage.Remote
	displayBase   string
	remotePath    string
	keepLocalCopy bool
}

// NewDependencies creates and initializes all dependencies for the application.
// It runs once at startup; request handling never re-reads the environment.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	uploadDir, err := cfg.UploadDir()
	if err != nil {
		return nil, err
	}
	pathPrefix, err := cfg.UploadPathPrefix()
	if err != nil {
		return nil, err
	}

	local, err := storage.NewLocalStorage(uploadDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("upload_dir", local.Dir()),
	)

	setup, err := initRemote(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var resolverOpts []storage.ResolverOption
	linkOpts := []links.Option{links.WithPublicBase(cfg.PublicBaseURLs()...)}
	if setup != nil {
		resolverOpts = append(resolverOpts, storage.WithRemote(setup.remote, setup.keepLocalCopy))
		linkOpts = append(linkOpts, links.WithDisplayBase(setup.remote.Backend(), setup.displayBase))
	}

	m := metrics.New()
	resolver := storage.NewResolver(local, logger, resolverOpts...)

	serviceOpts := []video.ServiceOption{
		video.WithMaxUploadBytes(cfg.MaxUploadBytes),
		video.WithRecorder(m),
	}
	if cfg.WatermarkEnabled() {
		processor := media.NewFFmpegProcessor(cfg.FFmpegPath,
			media.WithFFprobePath(cfg.FFprobePath),
			media.WithLogger(logger),
		)
		serviceOpts = append(serviceOpts, video.WithWatermark(processor, cfg.WatermarkFilePath, watermarkOptions(cfg.WatermarkLayout())))
		logger.Info("watermark enabled",
			slog.String("watermark_path", cfg.WatermarkFilePath),
		)
	}

	svc := video.NewService(artifact.NewAllocator(), local, resolver, logger, serviceOpts...)

	return &Dependencies{
		VideoService: svc,
		Links:        links.NewBuilder(pathPrefix, logger, linkOpts...),
		Metrics:      m,
		StaticDir:    local.Dir(),
	}, nil
}

// initRemote selects the remote backend. FTP wins when both FTP and S3 are
// configured. A nil setup means uploads stay local.
func initRemote(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*remoteSetup, error) {
	var setup *remoteSetup

	switch {
	case cfg.FTPEnabled():
		ftpCfg := cfg.FTP()
		remote := storage.NewFTPRemote(storage.FTPConfig{
			Host:       ftpCfg.Host,
			Port:       ftpCfg.Port,
			User:       ftpCfg.User,
			Password:   ftpCfg.Password,
			RemotePath: ftpCfg.RemotePath,
			Secure:     storage.ParseSecureMode(ftpCfg.Secure),
			Timeout:    ftpCfg.Timeout,
			Debug:      ftpCfg.Debug,
		}, logger)
		setup = &remoteSetup{
			remote:        remote,
			displayBase:   ftpCfg.DisplayURL,
			remotePath:    remote.RemotePath(),
			keepLocalCopy: ftpCfg.KeepLocalCopy,
		}
		logger.Info("FTP storage configured",
			slog.String("host", ftpCfg.Host),
			slog.Int("port", ftpCfg.Port),
			slog.String("remote_path", remote.RemotePath()),
			slog.String("secure", string(storage.ParseSecureMode(ftpCfg.Secure))),
			slog.Bool("keep_local_copy", ftpCfg.KeepLocalCopy),
		)
		if cfg.S3Enabled() {
			logger.Warn("both FTP and S3 are configured, using FTP")
		}

	case cfg.S3Enabled():
		s3Settings := cfg.S3()
		s3Cfg := storage.S3Config{
			Bucket:          s3Settings.Bucket,
			Region:          s3Settings.Region,
			Prefix:          s3Settings.Prefix,
			Endpoint:        s3Settings.Endpoint,
			AccessKeyID:     s3Settings.AccessKeyID,
			SecretAccessKey: s3Settings.SecretAccessKey,
		}
		remote, err := storage.NewS3Remote(ctx, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		displayBase := s3Settings.DisplayURL
		if displayBase == "" {
			displayBase = s3Cfg.DisplayURL()
		}
		setup = &remoteSetup{
			remote:        remote,
			displayBase:   displayBase,
			remotePath:    storage.NormalizeRemotePath(s3Settings.Prefix),
			keepLocalCopy: s3Settings.KeepLocalCopy,
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", s3Settings.Bucket),
			slog.String("region", s3Settings.Region),
			slog.Bool("keep_local_copy", s3Settings.KeepLocalCopy),
		)

	default:
		logger.Info("no remote storage configured, videos stay local")
		return nil, nil
	}

	// A display base that cannot produce an absolute URL would leave remote
	// artifacts without a working link once the local copy is gone.
	if _, err := links.ComposeRemote(setup.displayBase, setup.remotePath, "probe.mp4"); err != nil && !setup.keepLocalCopy {
		logger.Warn("invalid remote display URL, keeping local copies",
			slog.String("backend", string(setup.remote.Backend())),
			slog.String("display_url", setup.displayBase),
			slog.String("error", err.Error()),
		)
		setup.keepLocalCopy = true
	}

	return setup, nil
}

func watermarkOptions(layout config.WatermarkLayout) media.WatermarkOptions {
	return media.WatermarkOptions{
		Orientation:         media.Orientation(layout.Orientation),
		Margin:              layout.Margin,
		PortraitWidthRatio:  layout.PortraitRatio,
		LandscapeWidthRatio: layout.LandscapeRatio,
	}
}
