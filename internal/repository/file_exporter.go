package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"AgriCast/internal/domain/models"
	domrepo "AgriCast/internal/domain/repository"
)

// FileExporter writes model artifacts as <product>_<city>.json under a directory.
type FileExporter struct {
	dir string
}

func NewFileExporter(dir string) *FileExporter {
	return &FileExporter{dir: dir}
}

// Export writes artifact atomically and returns the final path.
func (e *FileExporter) Export(ctx context.Context, key models.SeriesKey, artifact []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("export dir: %w", err)
	}

	name := sanitizeFileName(key.Product) + "_" + sanitizeFileName(key.City) + ".json"
	final := filepath.Join(e.dir, name)

	tmp, err := os.CreateTemp(e.dir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("export temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(artifact); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("export write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("export close: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("export rename: %w", err)
	}
	return final, nil
}

func sanitizeFileName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == os.PathSeparator:
			return '-'
		case r < 0x20 || r == ' ':
			return '-'
		}
		return r
	}, s)
}

var _ domrepo.ModelExporter = (*FileExporter)(nil)
