package content

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

var ErrPathEscapesRoot = errors.New("path escapes content root")

// Writer stores agent artifacts under a single root directory.
type Writer struct {
	fs   afero.Fs
	root string
}

// NewOSWriter roots a writer at dir on the local filesystem, creating it if needed.
func NewOSWriter(dir string) (*Writer, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create content dir: %w", err)
	}
	return &Writer{fs: afero.NewBasePathFs(afero.NewOsFs(), abs), root: abs}, nil
}

// NewWriter wraps an arbitrary filesystem; locations are reported relative to root.
func NewWriter(fs afero.Fs, root string) *Writer {
	return &Writer{fs: fs, root: root}
}

// Write stores content at relPath and returns its location.
func (w *Writer) Write(ctx context.Context, relPath string, content []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean, err := cleanRel(relPath)
	if err != nil {
		return "", err
	}
	if dir := path.Dir(clean); dir != "." {
		if err := w.fs.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create %s: %w", dir, err)
		}
	}
	tmp := clean + ".tmp"
	if err := afero.WriteFile(w.fs, tmp, content, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", clean, err)
	}
	if err := w.fs.Rename(tmp, clean); err != nil {
		_ = w.fs.Remove(tmp)
		return "", fmt.Errorf("write %s: %w", clean, err)
	}
	return filepath.Join(w.root, filepath.FromSlash(clean)), nil
}

// Read returns the content stored at relPath.
func (w *Writer) Read(relPath string) ([]byte, error) {
	clean, err := cleanRel(relPath)
	if err != nil {
		return nil, err
	}
	return afero.ReadFile(w.fs, clean)
}

func cleanRel(relPath string) (string, error) {
	p := filepath.ToSlash(strings.TrimSpace(relPath))
	if p == "" || path.IsAbs(p) || filepath.IsAbs(relPath) {
		return "", fmt.Errorf("%w: %q", ErrPathEscapesRoot, relPath)
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrPathEscapesRoot, relPath)
	}
	return clean, nil
}
