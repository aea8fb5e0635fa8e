// Package blob stores uploaded avatar images on local disk or in S3.
package blob

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrUnsupportedType rejects files whose extension is not an allowed image type.
	ErrUnsupportedType = errors.New("blob: unsupported file type")
	// ErrNotFound is returned by Get for unknown keys.
	ErrNotFound = errors.New("blob: not found")
	// ErrInvalidKey rejects keys that could escape the store root.
	ErrInvalidKey = errors.New("blob: invalid key")
)

var allowedExtensions = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"webp": "image/webp",
}

// Store keeps opaque objects addressed by key.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
}

// AllowedExtension returns the content type for filename when its extension
// is an allowed image type.
func AllowedExtension(filename string) (string, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	ct, ok := allowedExtensions[ext]
	return ct, ok
}

// NewKey returns a collision-free key for an upload named filename:
// a random hex prefix, an underscore and the sanitised base name.
func NewKey(filename string) (string, error) {
	if _, ok := AllowedExtension(filename); !ok {
		return "", ErrUnsupportedType
	}
	prefix := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "_" + sanitize(filename), nil
}

// ContentType guesses the stored type of key from its extension.
func ContentType(key string) string {
	if ct, ok := AllowedExtension(key); ok {
		return ct
	}
	return "application/octet-stream"
}

func validKey(key string) bool {
	return key != "" && key == sanitize(key) && !strings.HasPrefix(key, ".")
}

func sanitize(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), "._")
	if out == "" {
		return "file"
	}
	return out
}
