package blob

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps objects under a directory on disk.
type LocalStore struct {
	root    string
	baseURL string
}

// NewLocalStore creates root if needed. When baseURL is set, object URLs
// are baseURL + "/files/" + key; otherwise they are file:// URLs.
func NewLocalStore(root, baseURL string) (*LocalStore, error) {
	if root == "" {
		root = "./data/blobs"
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalStore{root: abs, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Put writes data below the root. Existing objects are overwritten.
func (s *LocalStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dest, err := s.Path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	tmp := dest + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("commit object: %w", err)
	}
	return s.url(key, dest), nil
}

// Path returns the file path of key, rejecting keys outside the root.
func (s *LocalStore) Path(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(s.root, filepath.FromSlash(cleaned))
	rel, err := filepath.Rel(s.root, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}
	return dest, nil
}

// LocalPath maps a URL produced by this store back to its file path.
func (s *LocalStore) LocalPath(raw string) (string, bool) {
	if s.baseURL != "" && strings.HasPrefix(raw, s.baseURL+"/files/") {
		key, err := url.PathUnescape(strings.TrimPrefix(raw, s.baseURL+"/files/"))
		if err != nil {
			return "", false
		}
		p, err := s.Path(key)
		return p, err == nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "file" {
		return "", false
	}
	p := filepath.FromSlash(u.Path)
	rel, err := filepath.Rel(s.root, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return p, true
}

func (s *LocalStore) url(key, dest string) string {
	if s.baseURL != "" {
		return s.baseURL + "/files/" + (&url.URL{Path: key}).EscapedPath()
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(dest)}).String()
}
