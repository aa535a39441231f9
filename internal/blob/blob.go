// Package blob stores uploaded diligence documents and hands back a URL
// for each stored object.
package blob

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"diligencego/internal/config"
)

// ErrInvalidKey rejects keys that are empty or escape the store root.
var ErrInvalidKey = errors.New("invalid object key")

// Store writes an object and returns a URL a reader can fetch it from.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// New builds the backend selected in cfg.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalStore(cfg.Root, cfg.PublicBaseURL)
	case "s3":
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}

// SubmissionKey is the object key of one submission document.
func SubmissionKey(submissionID, docType, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		name = "document"
	}
	return fmt.Sprintf("submissions/%s/%s-%s", submissionID, docType, name)
}

// SubmissionIDFromKey returns the submission a SubmissionKey belongs to.
func SubmissionIDFromKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(strings.TrimPrefix(key, "/"), "submissions/")
	if !ok {
		return "", false
	}
	id, name, ok := strings.Cut(rest, "/")
	if !ok || id == "" || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return id, true
}

func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned != key || strings.HasPrefix(cleaned, "../") || cleaned == ".." {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
