// Package pipeline turns fetched pages into ordered products and persists them.
package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

// FilesystemError reports an output directory or file that could not be
// created or written.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error {
	return e.Err
}

// JSONWriter saves a crawl as a pretty-printed JSON array named after the
// current Unix time. Two saves within the same microsecond collide.
type JSONWriter struct {
	dir string
	now func() time.Time
}

// NewJSONWriter returns a writer that places files under dir.
func NewJSONWriter(dir string) *JSONWriter {
	return &JSONWriter{dir: dir, now: time.Now}
}

// Save writes products to <dir>/<unix_timestamp>.json and returns the path.
func (jw *JSONWriter) Save(products []models.Product) (string, error) {
	if err := ensureDir(jw.dir); err != nil {
		return "", err
	}

	if products == nil {
		products = []models.Product{}
	}

	path := filepath.Join(jw.dir, timestampName(jw.now()))
	if err := writeJSON(path, products); err != nil {
		return "", err
	}

	slog.Info("saved products",
		slog.String("file", path),
		slog.Int("count", len(products)),
	)
	return path, nil
}

// Validate ensures the written file has data.
func (jw *JSONWriter) Validate(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &FilesystemError{Op: "stat", Path: path, Err: err}
	}
	if info.Size() <= 0 {
		return &FilesystemError{Op: "validate", Path: path, Err: fmt.Errorf("json file is empty")}
	}
	return nil
}

// writeJSON encodes v into a new file at path. A file that fails part way is
// removed so no partial output is left behind.
func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return &FilesystemError{Op: "create", Path: path, Err: err}
	}

	buffer := bufio.NewWriter(f)
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		discard(f, path)
		return &FilesystemError{Op: "encode", Path: path, Err: err}
	}
	if err := buffer.Flush(); err != nil {
		discard(f, path)
		return &FilesystemError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return &FilesystemError{Op: "close", Path: path, Err: err}
	}
	return nil
}

func discard(f *os.File, path string) {
	f.Close()
	if err := os.Remove(path); err != nil {
		slog.Warn("remove partial output", slog.String("file", path), slog.Any("error", err))
	}
}

func timestampName(t time.Time) string {
	return fmt.Sprintf("%d.%06d.json", t.Unix(), t.Nanosecond()/int(time.Microsecond))
}

func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &FilesystemError{Op: "create directory", Path: dir, Err: err}
	}
	return nil
}
