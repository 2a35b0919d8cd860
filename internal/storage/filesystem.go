package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileStore saves generated images onto the local filesystem.
type FileStore struct {
	basePath string
	now      func() time.Time
}

// NewFileStore initializes a FileStore rooted at basePath, creating it if
// needed.
func NewFileStore(basePath string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath, now: time.Now}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// SaveResult writes a generated image named after the job (or the current
// time when name is empty) with an extension derived from contentType, and
// returns the full path.
func (s *FileStore) SaveResult(ctx context.Context, name, contentType string, data []byte) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	if len(data) == 0 {
		return "", errors.New("storage: empty image")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "flux-" + s.now().UTC().Format("20060102-150405")
	}
	key, err := sanitizeKey(safeName(name) + extensionFor(contentType))
	if err != nil {
		return "", err
	}
	if err := s.Write(ctx, key, data); err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, filepath.FromSlash(key)), nil
}

// Write persists data at the given relative key. Keys are cleaned to prevent
// directory traversal.
func (s *FileStore) Write(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("storage: ensure directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return fmt.Errorf("storage: write file: %w", err)
	}
	return nil
}

func extensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch mediaType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}

// safeName keeps letters, digits, dash and underscore.
func safeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
