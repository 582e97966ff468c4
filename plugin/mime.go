package plugin

import (
	"mime"
	"path/filepath"
	"strings"
)

// Fallback table for extensions the platform mime database may lack.
var mimeTypes = map[string]string{
	".html":  "text/html",
	".htm":   "text/html",
	".css":   "text/css",
	".js":    "application/javascript",
	".json":  "application/json",
	".txt":   "text/plain",
	".xml":   "application/xml",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".bmp":   "image/bmp",
	".svg":   "image/svg+xml",
	".ico":   "image/x-icon",
	".webp":  "image/webp",
	".pdf":   "application/pdf",
	".zip":   "application/zip",
	".mp4":   "video/mp4",
	".webm":  "video/webm",
	".mp3":   "audio/mpeg",
	".wasm":  "application/wasm",
	".woff":  "font/woff",
	".woff2": "font/woff2",
}

// mimeTypeByPath resolves the content type for a file path, defaulting to
// application/octet-stream.
func mimeTypeByPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	if t, found := mimeTypes[ext]; found {
		return t
	}
	return "application/octet-stream"
}
