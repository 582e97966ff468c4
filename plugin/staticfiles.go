package plugin

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/freekieb7/mortar/filesystem"
	"github.com/freekieb7/mortar/http"
)

// StaticFilesConfig configures the static file plugin.
type StaticFilesConfig struct {
	// Root is the document root directory. Must exist.
	Root string

	// MountPath is the URL prefix the root is served under.
	MountPath string

	// DefaultFile is appended to requests that end in "/" (or equal the
	// mount path). A directory requested without the trailing slash is
	// answered with 403.
	DefaultFile string

	// CacheControl is sent with every served file.
	CacheControl string

	// MaxFileSize caps what is read into memory and served.
	MaxFileSize int64
}

func DefaultStaticFilesConfig(root string) StaticFilesConfig {
	return StaticFilesConfig{
		Root:         root,
		MountPath:    "/",
		DefaultFile:  "index.html",
		CacheControl: "public, max-age=3600",
		MaxFileSize:  100 * 1024 * 1024,
	}
}

// StaticFilesPlugin serves files from a document root mounted under a URL
// prefix, behind the canonical-root containment check. Requests escaping
// the root are logged and answered with 403.
type StaticFilesPlugin struct {
	http.PluginBase

	config        StaticFilesConfig
	canonicalRoot string
	fs            filesystem.Filesystem
	logger        *slog.Logger
}

func NewStaticFilesPlugin(config StaticFilesConfig) *StaticFilesPlugin {
	return &StaticFilesPlugin{
		config: config,
		fs:     filesystem.NewLocalFileSystem(),
		logger: slog.Default(),
	}
}

func (p *StaticFilesPlugin) Name() string        { return "StaticFiles" }
func (p *StaticFilesPlugin) Version() string     { return "2.0.0" }
func (p *StaticFilesPlugin) Description() string { return "Serves static files from a document root" }
func (p *StaticFilesPlugin) Author() string      { return "mortar" }

// Load late, after dynamic routes.
func (p *StaticFilesPlugin) Priority() int { return 900 }

func (p *StaticFilesPlugin) Initialize(server *http.Server) error {
	if p.config.MountPath == "" || !strings.HasPrefix(p.config.MountPath, "/") {
		return fmt.Errorf("static files: mount path must start with /, got %q", p.config.MountPath)
	}
	if p.config.DefaultFile == "" {
		p.config.DefaultFile = "index.html"
	}

	root, err := filesystem.CanonicalRoot(p.config.Root)
	if err != nil {
		return fmt.Errorf("static files: %w", err)
	}
	p.canonicalRoot = root

	p.logger.Info("static files plugin initialized", "root", root, "mount", p.config.MountPath)
	return nil
}

func (p *StaticFilesPlugin) RegisterRoutes(router *http.Router) error {
	pattern := p.config.MountPath
	if !strings.HasSuffix(pattern, "/") {
		pattern += "/"
	}
	pattern += "*"

	if err := router.Get(pattern, p.handle); err != nil {
		return err
	}
	return router.Head(pattern, p.handle)
}

func (p *StaticFilesPlugin) handle(ctx *http.Context) {
	requested := strings.TrimPrefix(ctx.Request.Path, strings.TrimSuffix(p.config.MountPath, "/"))
	if requested == "" || strings.HasSuffix(requested, "/") {
		requested += p.config.DefaultFile
	}

	resolved, ok := filesystem.SecurePath(p.canonicalRoot, requested)
	if !ok {
		p.logger.Warn("path traversal attempt", "path", ctx.Request.Path)
		ctx.Status(http.StatusForbidden).HTML("<h1>403 - Forbidden</h1><p>Path traversal detected.</p>")
		return
	}

	isFile, err := p.fs.IsFile(resolved)
	if err != nil || !isFile {
		exists, _ := p.fs.DirectoryExists(resolved)
		if exists {
			ctx.Status(http.StatusForbidden).HTML("<h1>403 - Forbidden</h1><p>Not a regular file.</p>")
			return
		}
		ctx.Status(http.StatusNotFound).HTML("<h1>404 - Not Found</h1>")
		return
	}

	if size, err := p.fs.FileSize(resolved); err == nil && size > p.config.MaxFileSize {
		ctx.Status(http.StatusRequestEntityTooLarge).HTML("<h1>413 - File Too Large</h1>")
		return
	}

	content, err := p.fs.ReadFile(resolved)
	if err != nil {
		p.logger.Error("failed to read file", "path", resolved, "error", err)
		ctx.Status(http.StatusInternalServerError).HTML("<h1>500 - Internal Server Error</h1>")
		return
	}

	ctx.SetHeader("Content-Type", mimeTypeByPath(resolved)).
		SetHeader("Cache-Control", p.config.CacheControl)

	if ctx.Request.Method == http.MethodHead {
		ctx.SetHeader("Content-Length", fmt.Sprintf("%d", len(content)))
		return
	}
	ctx.Body(content)
}

func (p *StaticFilesPlugin) Shutdown() {
	p.logger.Info("static files plugin shutdown")
}
