package plugin

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/freekieb7/mortar/filesystem"
	"github.com/freekieb7/mortar/http"
)

// UploadConfig configures the upload plugin.
type UploadConfig struct {
	// Dir is where uploaded files land, created at initialization.
	Dir string

	// MaxFileSize caps a single file part.
	MaxFileSize int64
}

// UploadPlugin accepts multipart/form-data POSTs on /upload and stores
// file parts under the upload directory. Client filenames are stripped of
// path separators; a name that sanitizes to nothing gets a random one.
type UploadPlugin struct {
	http.PluginBase

	config UploadConfig
	fs     filesystem.Filesystem
	logger *slog.Logger
}

func NewUploadPlugin(config UploadConfig) *UploadPlugin {
	return &UploadPlugin{
		config: config,
		fs:     filesystem.NewLocalFileSystem(),
		logger: slog.Default(),
	}
}

func (p *UploadPlugin) Name() string        { return "Upload" }
func (p *UploadPlugin) Description() string { return "Multipart file upload handling" }
func (p *UploadPlugin) Author() string      { return "mortar" }

func (p *UploadPlugin) Initialize(server *http.Server) error {
	if p.config.Dir == "" {
		return fmt.Errorf("upload: directory not configured")
	}
	if p.config.MaxFileSize <= 0 {
		p.config.MaxFileSize = 50 * 1024 * 1024
	}
	if err := p.fs.CreateDirectory(p.config.Dir); err != nil {
		return fmt.Errorf("upload: create directory: %w", err)
	}
	return nil
}

func (p *UploadPlugin) RegisterRoutes(router *http.Router) error {
	return router.Post("/upload", p.handle)
}

func (p *UploadPlugin) handle(ctx *http.Context) {
	boundary, found := http.MultipartBoundary(ctx.Request.ContentType())
	if !found {
		ctx.Status(http.StatusBadRequest).JSON(`{"error":"Missing boundary"}`)
		return
	}

	parts, err := http.ParseMultipart(ctx.Request.Body, boundary)
	if err != nil {
		ctx.Status(http.StatusBadRequest).JSON(`{"error":"Failed to parse multipart data"}`)
		return
	}

	files := http.FileParts(parts)
	if len(files) == 0 {
		ctx.Status(http.StatusBadRequest).JSON(`{"error":"No files found"}`)
		return
	}

	var saved []string
	for _, file := range files {
		if int64(len(file.Data)) > p.config.MaxFileSize {
			p.logger.Warn("uploaded file too large", "filename", file.Filename, "size", len(file.Data))
			ctx.Status(http.StatusRequestEntityTooLarge).JSON(`{"error":"File too large"}`)
			return
		}

		name := sanitizeFilename(file.Filename)
		if name == "" {
			name = uuid.NewString()
		}

		target := filepath.Join(p.config.Dir, name)
		if err := p.fs.WriteFile(target, file.Data); err != nil {
			p.logger.Error("failed to save upload", "path", target, "error", err)
			ctx.Status(http.StatusInternalServerError).JSON(`{"error":"Failed to save file"}`)
			return
		}
		p.logger.Info("saved file", "path", target)
		saved = append(saved, name)
	}

	ctx.JSON(map[string]any{
		"status":   "success",
		"uploaded": len(saved),
		"files":    saved,
	})
}

// sanitizeFilename keeps only the final path element and drops any
// remaining separators or parent references.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "." || name == ".." || name == "/" {
		return ""
	}
	return name
}
