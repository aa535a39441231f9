package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diligencego/internal/catalog"
	"diligencego/internal/models"
)

type stubDriver struct {
	inputs       []string
	selectIdx    []int
	inputPos     int
	selectPos    int
	rejected     int
	infoMessages []string
}

// Input mimics survey: an empty answer takes the default and a failed
// validator re-asks with the next scripted answer.
func (s *stubDriver) Input(_ context.Context, cfg InputConfig) (string, error) {
	for {
		if s.inputPos >= len(s.inputs) {
			return "", fmt.Errorf("no input scripted for %q", cfg.Message)
		}
		val := s.inputs[s.inputPos]
		s.inputPos++
		if val == "" {
			val = cfg.Default
		}
		if cfg.Validator != nil {
			if err := cfg.Validator(val); err != nil {
				s.rejected++
				continue
			}
		}
		return val, nil
	}
}

func (s *stubDriver) Password(ctx context.Context, cfg InputConfig) (string, error) {
	return s.Input(ctx, cfg)
}

func (s *stubDriver) Select(_ context.Context, cfg SelectConfig) (int, error) {
	if s.selectPos >= len(s.selectIdx) {
		return -1, fmt.Errorf("no select scripted for %q", cfg.Message)
	}
	val := s.selectIdx[s.selectPos]
	s.selectPos++
	return val, nil
}

func (s *stubDriver) Info(_ context.Context, msg string) error {
	s.infoMessages = append(s.infoMessages, msg)
	return nil
}

func (s *stubDriver) sawInfo(substr string) bool {
	for _, m := range s.infoMessages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

type fakeAPI struct {
	mu       sync.Mutex
	fields   map[string]string
	files    map[string]string
	submits  int
	reject   string
	failWith string
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "secret123" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid email or password"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"token": "tok-1"})
	})
	mux.HandleFunc("/api/submissions", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.submits++
		f.fields = make(map[string]string)
		for k, v := range r.MultipartForm.Value {
			f.fields[k] = v[0]
		}
		f.files = make(map[string]string)
		for k, v := range r.MultipartForm.File {
			f.files[k] = v[0].Filename
		}
		reject := f.reject
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if reject != "" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": reject})
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "submissionId": "sub-1"})
	})
	mux.HandleFunc("/api/submissions/sub-1/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		processing := models.Submission{ID: "sub-1", Status: models.StatusProcessing, Report: models.ReportPending}
		writeEvent(w, "snapshot", processing)
		if f.failWith != "" {
			writeEvent(w, "error", map[string]string{"message": f.failWith})
			return
		}
		done := models.Submission{ID: "sub-1", Status: models.StatusCompleted, Report: "Looks solid."}
		writeEvent(w, "snapshot", done)
		writeEvent(w, "done", done)
	})
	return mux
}

func (f *fakeAPI) snapshot() (int, map[string]string, map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits, f.fields, f.files
}

func writeEvent(w http.ResponseWriter, event string, payload any) {
	data, _ := json.Marshal(payload)
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", data)
	if fl, ok := w.(http.Flusher); ok {
		fl.Flush()
	}
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL+"/", srv.Client())
	require.NoError(t, c.Login(context.Background(), "founder@example.com", "secret123"))
	return c
}

func writeDocuments(t *testing.T, industry catalog.Industry) []string {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for _, d := range catalog.RequiredDocuments(industry) {
		p := filepath.Join(dir, string(d)+".txt")
		require.NoError(t, os.WriteFile(p, []byte("contents of "+d.Label()), 0o600))
		paths = append(paths, p)
	}
	return paths
}

func industryIndex(i catalog.Industry) int {
	for idx, ind := range catalog.Industries() {
		if ind == i {
			return idx
		}
	}
	return -1
}

func TestRunnerSubmitsAndFollowsReport(t *testing.T) {
	api := &fakeAPI{}
	client := newTestClient(t, api)
	paths := writeDocuments(t, catalog.SaaS)

	inputs := []string{"Acme Labs", "founder@example.com", "2020", "twelve", "12"}
	inputs = append(inputs, filepath.Join(t.TempDir(), "missing.pdf"))
	inputs = append(inputs, paths...)
	driver := &stubDriver{
		inputs:    inputs,
		selectIdx: []int{industryIndex(catalog.SaaS), 0},
	}

	sub, err := NewRunner(driver, client, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, sub.Status)
	assert.Equal(t, "Looks solid.", sub.Report)
	assert.Equal(t, 2, driver.rejected)

	submits, fields, files := api.snapshot()
	assert.Equal(t, 1, submits)
	assert.Equal(t, "Acme Labs", fields["startupName"])
	assert.Equal(t, "2020", fields["yearOfRegistration"])
	assert.Equal(t, "12", fields["numberOfEmployees"])
	assert.Equal(t, "SaaS", fields["field"])
	assert.Len(t, files, len(paths))
	assert.Equal(t, "capTable.txt", files[string(catalog.CapTable)])

	assert.True(t, driver.sawInfo("Step 1 of 3: Basic Details (33%)"))
	assert.True(t, driver.sawInfo("Step 3 of 3: Review & Submit (100%)"))
	assert.True(t, driver.sawInfo("Status: processing"))
	assert.True(t, driver.sawInfo("Looks solid."))
}

func TestRunnerReasksInvalidDetails(t *testing.T) {
	api := &fakeAPI{}
	client := newTestClient(t, api)
	paths := writeDocuments(t, catalog.EdTech)

	inputs := []string{"A", "founder@example.com", "1800", "3"}
	// Second pass keeps the email and employee count.
	inputs = append(inputs, "Acme", "", "2019", "")
	inputs = append(inputs, paths...)
	driver := &stubDriver{
		inputs:    inputs,
		selectIdx: []int{industryIndex(catalog.EdTech), industryIndex(catalog.EdTech), 0},
	}

	_, err := NewRunner(driver, client, nil).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, driver.sawInfo("Startup name must be at least 2 characters."))
	assert.True(t, driver.sawInfo("Invalid year."))
	_, fields, _ := api.snapshot()
	assert.Equal(t, "Acme", fields["startupName"])
	assert.Equal(t, "founder@example.com", fields["email"])
	assert.Equal(t, "3", fields["numberOfEmployees"])
}

func TestRunnerEditDocumentsFromReview(t *testing.T) {
	api := &fakeAPI{}
	client := newTestClient(t, api)
	paths := writeDocuments(t, catalog.SaaS)

	inputs := []string{"Acme Labs", "founder@example.com", "2020", "12"}
	inputs = append(inputs, paths...)
	// Going back re-asks every slot with the previous path as default.
	inputs = append(inputs, make([]string, len(paths))...)
	driver := &stubDriver{
		inputs:    inputs,
		selectIdx: []int{industryIndex(catalog.SaaS), 1, 0},
	}

	_, err := NewRunner(driver, client, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(inputs), driver.inputPos)
	_, _, files := api.snapshot()
	assert.Len(t, files, len(paths))
}

func TestRunnerCancelFromReview(t *testing.T) {
	api := &fakeAPI{}
	client := newTestClient(t, api)
	paths := writeDocuments(t, catalog.SaaS)

	inputs := append([]string{"Acme Labs", "founder@example.com", "2020", "12"}, paths...)
	driver := &stubDriver{
		inputs:    inputs,
		selectIdx: []int{industryIndex(catalog.SaaS), 3},
	}

	_, err := NewRunner(driver, client, nil).Run(context.Background())
	assert.ErrorIs(t, err, ErrAborted)
	submits, _, _ := api.snapshot()
	assert.Zero(t, submits)
}

func TestRunnerReportsServerRejection(t *testing.T) {
	api := &fakeAPI{reject: "Missing required documents: Cap Table"}
	client := newTestClient(t, api)
	paths := writeDocuments(t, catalog.SaaS)

	inputs := append([]string{"Acme Labs", "founder@example.com", "2020", "12"}, paths...)
	driver := &stubDriver{
		inputs:    inputs,
		selectIdx: []int{industryIndex(catalog.SaaS), 0},
	}

	_, err := NewRunner(driver, client, nil).Run(context.Background())
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "Missing required documents")
}

func TestClientWatchStreamError(t *testing.T) {
	api := &fakeAPI{failWith: "stream ended before the submission settled"}
	client := newTestClient(t, api)

	var seen []models.Status
	_, err := client.Watch(context.Background(), "sub-1", func(s *models.Submission) {
		seen = append(seen, s.Status)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream ended")
	assert.Equal(t, []models.Status{models.StatusProcessing}, seen)
}

func TestClientLoginFailure(t *testing.T) {
	srv := httptest.NewServer((&fakeAPI{}).handler(t))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, srv.Client())
	err := c.Login(context.Background(), "founder@example.com", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid email or password")

	_, err = c.Submit(context.Background(), models.BasicDetails{}, nil)
	assert.Error(t, err)
}

func TestTranslateSurveyErr(t *testing.T) {
	other := errors.New("boom")
	assert.Same(t, other, translateSurveyErr(other))
	assert.Equal(t, 2, indexOf([]string{"a", "b", "c"}, "c"))
	assert.Equal(t, -1, indexOf([]string{"a"}, "z"))
}
