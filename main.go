package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/freekieb7/mortar/config"
	"github.com/freekieb7/mortar/http"
	"github.com/freekieb7/mortar/plugin"
	"github.com/freekieb7/mortar/telemetry"
)

const defaultConfigFile = "./config.conf"

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	configFile := defaultConfigFile
	if len(os.Args) > 1 {
		configFile = os.Args[1]
	}

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		slog.Info("config file not found, creating default", "path", configFile)
		if err := writeDefaultConfig(configFile); err != nil {
			return fmt.Errorf("create default config: %w", err)
		}
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config %s: %w", configFile, err)
	}
	slog.Info("configuration loaded", "path", configFile)

	tel, logger, err := telemetry.Setup(ctx, cfg.OTLPEndpoint(), "mortar")
	if err != nil {
		return fmt.Errorf("telemetry setup: %w", err)
	}
	defer tel.Shutdown(context.Background())
	slog.SetDefault(logger)

	if err := ensureDocRoot(cfg.DocRoot(), cfg.DefaultFile()); err != nil {
		return err
	}

	server := http.NewServer(http.Options{
		Port:       cfg.Port(),
		Workers:    cfg.ThreadCount(),
		QueueDepth: cfg.QueueDepth(),
		Logger:     logger,
	})

	server.Use(http.RecoverMiddleware(logger))
	server.Use(http.AccessLogMiddleware(logger))
	server.Use(http.RequestIDMiddleware())

	plugins := []http.Plugin{
		plugin.NewCORSPlugin(plugin.DefaultCORSConfig()),
		plugin.NewUploadPlugin(plugin.UploadConfig{
			Dir:         cfg.UploadDir(),
			MaxFileSize: cfg.MaxUploadSize(),
		}),
		// Capture and injection adapters are platform packages wired in by
		// their own builds; without them /stream and /api/input answer 503.
		plugin.NewScreenSharePlugin(plugin.ScreenShareConfig{
			FPSLimit:      cfg.FPSLimit(),
			DiffThreshold: 0.01,
		}, nil, nil),
		plugin.NewStaticFilesPlugin(plugin.StaticFilesConfig{
			Root:         cfg.DocRoot(),
			MountPath:    "/",
			DefaultFile:  cfg.DefaultFile(),
			CacheControl: "public, max-age=3600",
			MaxFileSize:  100 * 1024 * 1024,
		}),
	}
	if cfg.AuthToken() != "" || cfg.JWTSecret() != "" {
		plugins = append(plugins, plugin.NewAuthPlugin(plugin.AuthConfig{
			Token:             cfg.AuthToken(),
			JWTSecret:         cfg.JWTSecret(),
			ProtectedPrefixes: []string{"/api/", "/stream", "/upload"},
		}))
	} else {
		logger.Warn("no AUTH_TOKEN or JWT_SECRET configured, protected routes are open")
	}

	for _, p := range plugins {
		if err := server.AddPlugin(p); err != nil {
			return fmt.Errorf("add plugin: %w", err)
		}
	}

	// The derived context cancels when Start fails (bind error, plugin
	// abort), so the watcher goroutine unblocks and Wait surfaces the
	// startup error instead of hanging until a signal.
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.Start(); err != nil {
			return fmt.Errorf("server start: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")
		server.Stop()
		return nil
	})

	if err := group.Wait(); err != nil {
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}

func ensureDocRoot(docRoot, defaultFile string) error {
	if err := os.MkdirAll(docRoot, 0755); err != nil {
		return fmt.Errorf("create document root: %w", err)
	}

	index := filepath.Join(docRoot, defaultFile)
	if _, err := os.Stat(index); os.IsNotExist(err) {
		slog.Info("creating default landing page", "path", index)
		if err := os.WriteFile(index, []byte(defaultLandingPage), 0644); err != nil {
			return fmt.Errorf("create landing page: %w", err)
		}
	}
	return nil
}

func writeDefaultConfig(path string) error {
	content := `# mortar server configuration

# Server settings
PORT=8080
DOC_ROOT=public
THREAD_COUNT=4

# Security
AUTH_TOKEN=change_me

# Streaming
FPS_LIMIT=15
SCALE_FACTOR=2

# Uploads
MAX_UPLOAD_SIZE=52428800
UPLOAD_DIR=uploads
`
	return os.WriteFile(path, []byte(content), 0644)
}

const defaultLandingPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>mortar</title>
</head>
<body>
<h1>mortar is running</h1>
<p>Drop your files into the document root to serve them from here.</p>
</body>
</html>
`
