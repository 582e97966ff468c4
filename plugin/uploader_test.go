package plugin

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/freekieb7/mortar/http"
)

func multipartUpload(boundary string, files map[string][]byte) []byte {
	var b bytes.Buffer
	for name, data := range files {
		b.WriteString("--" + boundary + "\r\n")
		b.WriteString(`Content-Disposition: form-data; name="file"; filename="` + name + `"` + "\r\n")
		b.WriteString("Content-Type: application/octet-stream\r\n")
		b.WriteString("\r\n")
		b.Write(data)
		b.WriteString("\r\n")
	}
	b.WriteString("--" + boundary + "--")
	return b.Bytes()
}

func uploadContext(boundary string, body []byte) *http.Context {
	req := &http.Request{
		Method: http.MethodPost,
		Path:   "/upload",
		Query:  map[string]string{},
		Body:   body,
	}
	req.Headers.Set("Content-Type", "multipart/form-data; boundary="+boundary)
	return http.NewContext(req, http.NewResponse())
}

func newUploadPlugin(t *testing.T, maxSize int64) (*UploadPlugin, string) {
	t.Helper()
	dir := t.TempDir()
	p := NewUploadPlugin(UploadConfig{Dir: dir, MaxFileSize: maxSize})
	if err := p.Initialize(nil); err != nil {
		t.Fatal(err)
	}
	return p, dir
}

func TestUploadSavesFiles(t *testing.T) {
	p, dir := newUploadPlugin(t, 1024)

	body := multipartUpload("B", map[string][]byte{"report.bin": {0x00, 0x01, 0xff}})
	ctx := uploadContext("B", body)
	p.handle(ctx)

	if ctx.Response.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d (%s)", ctx.Response.StatusCode, ctx.Response.Body)
	}
	if !strings.Contains(string(ctx.Response.Body), `"status":"success"`) {
		t.Errorf("Expected success report, got %s", ctx.Response.Body)
	}

	saved, err := os.ReadFile(filepath.Join(dir, "report.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(saved, []byte{0x00, 0x01, 0xff}) {
		t.Errorf("Expected byte-identical file, got %v", saved)
	}
}

func TestUploadSanitizesFilename(t *testing.T) {
	p, dir := newUploadPlugin(t, 1024)

	body := multipartUpload("B", map[string][]byte{"../../evil.sh": []byte("#!")})
	ctx := uploadContext("B", body)
	p.handle(ctx)

	if ctx.Response.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", ctx.Response.StatusCode)
	}
	if _, err := os.Stat(filepath.Join(dir, "evil.sh")); err != nil {
		t.Error("Expected file stored under its base name inside the upload dir")
	}
	if _, err := os.Stat(filepath.Join(dir, "..", "..", "evil.sh")); err == nil {
		t.Error("Expected no file outside the upload dir")
	}
}

func TestUploadRejectsOversize(t *testing.T) {
	p, dir := newUploadPlugin(t, 4)

	body := multipartUpload("B", map[string][]byte{"big.bin": []byte("too large")})
	ctx := uploadContext("B", body)
	p.handle(ctx)

	if ctx.Response.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413, got %d", ctx.Response.StatusCode)
	}
	if _, err := os.Stat(filepath.Join(dir, "big.bin")); err == nil {
		t.Error("Expected oversize file not to be written")
	}
}

func TestUploadMissingBoundary(t *testing.T) {
	p, _ := newUploadPlugin(t, 1024)

	req := &http.Request{Method: http.MethodPost, Path: "/upload", Query: map[string]string{}}
	req.Headers.Set("Content-Type", "application/json")
	ctx := http.NewContext(req, http.NewResponse())
	p.handle(ctx)

	if ctx.Response.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", ctx.Response.StatusCode)
	}
}

func TestUploadNoFileParts(t *testing.T) {
	p, _ := newUploadPlugin(t, 1024)

	var b bytes.Buffer
	b.WriteString("--B\r\n")
	b.WriteString("Content-Disposition: form-data; name=\"note\"\r\n\r\njust text\r\n")
	b.WriteString("--B--")

	ctx := uploadContext("B", b.Bytes())
	p.handle(ctx)

	if ctx.Response.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 when no file parts present, got %d", ctx.Response.StatusCode)
	}
}
