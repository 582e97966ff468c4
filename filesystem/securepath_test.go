package filesystem

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func makeRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("<h1>hi</h1>"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "css"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "css", "site.css"), []byte("body{}"), 0644); err != nil {
		t.Fatal(err)
	}
	canonical, err := CanonicalRoot(root)
	if err != nil {
		t.Fatal(err)
	}
	return canonical
}

func TestSecurePathInsideRoot(t *testing.T) {
	root := makeRoot(t)

	resolved, ok := SecurePath(root, "/index.html")
	if !ok {
		t.Fatal("Expected containment")
	}
	if resolved != filepath.Join(root, "index.html") {
		t.Errorf("Expected index.html under root, got %s", resolved)
	}

	resolved, ok = SecurePath(root, "/css/site.css")
	if !ok || !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		t.Errorf("Expected nested file contained, got %s ok=%v", resolved, ok)
	}
}

func TestSecurePathTraversalBlocked(t *testing.T) {
	root := makeRoot(t)

	escapes := []string{
		"/../etc/passwd",
		"/../../etc/passwd",
		"/css/../../etc/passwd",
		"\\..\\..\\etc\\passwd",
	}
	for _, requested := range escapes {
		if _, ok := SecurePath(root, requested); ok {
			t.Errorf("Expected escape rejected for %q", requested)
		}
	}

	// Odd-looking but non-escaping names stay contained.
	weird := []string{
		"/..%2F..%2Fetc/passwd",
		"/....//etc/passwd",
	}
	for _, requested := range weird {
		resolved, ok := SecurePath(root, requested)
		if ok && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
			t.Errorf("Escape for %q: resolved to %s", requested, resolved)
		}
	}
}

func TestSecurePathLexicalDotsCollapse(t *testing.T) {
	root := makeRoot(t)

	// Dots collapse against the virtual root, so the request stays inside.
	resolved, ok := SecurePath(root, "/css/../index.html")
	if !ok {
		t.Fatal("Expected containment after lexical collapse")
	}
	if resolved != filepath.Join(root, "index.html") {
		t.Errorf("Expected index.html, got %s", resolved)
	}
}

func TestSecurePathNonexistentStaysContained(t *testing.T) {
	root := makeRoot(t)

	resolved, ok := SecurePath(root, "/nope/missing.txt")
	if !ok {
		t.Fatal("Expected nonexistent path to pass containment")
	}
	if !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		t.Errorf("Expected contained path, got %s", resolved)
	}
}

func TestSecurePathSymlinkInsideAllowed(t *testing.T) {
	root := makeRoot(t)

	link := filepath.Join(root, "alias.html")
	if err := os.Symlink(filepath.Join(root, "index.html"), link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	resolved, ok := SecurePath(root, "/alias.html")
	if !ok {
		t.Fatal("Expected symlink inside root to be allowed")
	}
	if resolved != filepath.Join(root, "index.html") {
		t.Errorf("Expected resolution to the target, got %s", resolved)
	}
}

func TestSecurePathSymlinkEscapeBlocked(t *testing.T) {
	root := makeRoot(t)

	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(secret, []byte("s"), 0644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(root, "sneaky.txt")
	if err := os.Symlink(secret, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if _, ok := SecurePath(root, "/sneaky.txt"); ok {
		t.Error("Expected symlink escaping the root to be rejected")
	}
}

func TestCanonicalRootRejectsFilesAndMissing(t *testing.T) {
	root := makeRoot(t)

	if _, err := CanonicalRoot(filepath.Join(root, "index.html")); err == nil {
		t.Error("Expected error for non-directory root")
	}
	if _, err := CanonicalRoot(filepath.Join(root, "missing")); err == nil {
		t.Error("Expected error for missing root")
	}
}
