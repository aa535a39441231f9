package blob

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diligencego/internal/config"
)

func TestSubmissionKey(t *testing.T) {
	assert.Equal(t, "submissions/abc/capTable-cap.pdf", SubmissionKey("abc", "capTable", "cap.pdf"))
	assert.Equal(t, "submissions/abc/capTable-passwd", SubmissionKey("abc", "capTable", "../../etc/passwd"))
	assert.Equal(t, "submissions/abc/capTable-x.pdf", SubmissionKey("abc", "capTable", `C:\docs\x.pdf`))
	assert.Equal(t, "submissions/abc/capTable-document", SubmissionKey("abc", "capTable", ""))
}

func TestSubmissionIDFromKey(t *testing.T) {
	id, ok := SubmissionIDFromKey(SubmissionKey("abc", "capTable", "cap.pdf"))
	assert.True(t, ok)
	assert.Equal(t, "abc", id)

	id, ok = SubmissionIDFromKey("/submissions/abc/capTable-cap.pdf")
	assert.True(t, ok)
	assert.Equal(t, "abc", id)

	for _, key := range []string{"", "other/abc/x.pdf", "submissions/abc", "submissions//x.pdf", "submissions/abc/../def/x.pdf"} {
		_, ok := SubmissionIDFromKey(key)
		assert.False(t, ok, key)
	}
}

func TestLocalStorePutFileURL(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root, "")
	require.NoError(t, err)

	key := SubmissionKey("sub-1", "balanceSheet", "balance sheet.pdf")
	u, err := store.Put(context.Background(), key, "application/pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "file://"), u)

	p, ok := store.LocalPath(u)
	require.True(t, ok)
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))
	assert.Equal(t, filepath.Join(root, "submissions", "sub-1", "balanceSheet-balance sheet.pdf"), p)
}

func TestLocalStorePublicURL(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "http://localhost:8090/")
	require.NoError(t, err)

	u, err := store.Put(context.Background(), "submissions/s/capTable-a b.pdf", "application/pdf", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8090/files/submissions/s/capTable-a%20b.pdf", u)

	p, ok := store.LocalPath(u)
	require.True(t, ok)
	assert.FileExists(t, p)

	_, ok = store.LocalPath("https://elsewhere.example/x.pdf")
	assert.False(t, ok)
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "")
	require.NoError(t, err)
	for _, key := range []string{"", "../escape", "a/../../b", "/.."} {
		_, err := store.Put(context.Background(), key, "text/plain", []byte("x"))
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
	_, ok := store.LocalPath("file:///etc/passwd")
	assert.False(t, ok)
}

func TestS3StorePutAndPresign(t *testing.T) {
	var (
		mu       sync.Mutex
		gotPath  string
		gotBody  string
		gotCType string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if r.Method == http.MethodPut {
			body, _ := io.ReadAll(r.Body)
			gotPath = r.URL.Path
			gotBody = string(body)
			gotCType = r.Header.Get("Content-Type")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store, err := NewS3Store(context.Background(), config.StorageConfig{
		Bucket:    "diligence",
		Region:    "us-east-1",
		Endpoint:  srv.URL,
		AccessKey: "test",
		SecretKey: "test",
	})
	require.NoError(t, err)

	u, err := store.Put(context.Background(), "submissions/s1/capTable-cap.txt", "text/plain", []byte("cap table"))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/diligence/submissions/s1/capTable-cap.txt", gotPath)
	assert.Contains(t, gotBody, "cap table")
	assert.Equal(t, "text/plain", gotCType)
	assert.True(t, strings.HasPrefix(u, srv.URL+"/diligence/submissions/s1/capTable-cap.txt?"), u)
	assert.Contains(t, u, "X-Amz-Signature=")
}

func TestS3StorePublicBase(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store, err := NewS3Store(context.Background(), config.StorageConfig{
		Bucket:        "diligence",
		Region:        "us-east-1",
		Endpoint:      srv.URL,
		AccessKey:     "test",
		SecretKey:     "test",
		PublicBaseURL: "https://cdn.example.com/",
	})
	require.NoError(t, err)
	u, err := store.Put(context.Background(), "submissions/s1/x.pdf", "application/pdf", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/submissions/s1/x.pdf", u)
}

func TestNewSelectsBackend(t *testing.T) {
	s, err := New(context.Background(), config.StorageConfig{Backend: "local", Root: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, s)

	_, err = New(context.Background(), config.StorageConfig{Backend: "ftp"})
	assert.Error(t, err)
}
