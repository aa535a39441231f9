package wizard

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"diligencego/internal/catalog"
	"diligencego/internal/models"
	"diligencego/internal/submission"
)

// ErrRejected wraps a failure message returned by the server.
var ErrRejected = errors.New("submission rejected")

// Client talks to the diligence API with a bearer token.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Minute}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// Login stores the token used by later calls.
func (c *Client) Login(ctx context.Context, email, password string) error {
	var body struct {
		Token string `json:"token"`
		Error string `json:"error"`
	}
	status, err := c.postJSON(ctx, "/api/auth/login", map[string]string{"email": email, "password": password}, &body)
	if err != nil {
		return err
	}
	if status != http.StatusOK || body.Token == "" {
		return fmt.Errorf("login failed: %s", firstNonEmpty(body.Error, http.StatusText(status)))
	}
	c.token = body.Token
	return nil
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, email, password string) error {
	var body struct {
		Error string `json:"error"`
	}
	status, err := c.postJSON(ctx, "/api/auth/register", map[string]string{"email": email, "password": password}, &body)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("register failed: %s", firstNonEmpty(body.Error, http.StatusText(status)))
	}
	return nil
}

// Submit uploads the form as multipart data and returns the new id.
func (c *Client) Submit(ctx context.Context, details models.BasicDetails, docs map[catalog.DocumentType]Attachment) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"startupName", details.StartupName},
		{"email", details.Email},
		{"yearOfRegistration", strconv.Itoa(details.YearOfRegistration)},
		{"numberOfEmployees", strconv.Itoa(details.NumberOfEmployees)},
		{"field", string(details.Field)},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return "", fmt.Errorf("write field %s: %w", f[0], err)
		}
	}
	for _, docType := range catalog.DocumentTypes() {
		att, ok := docs[docType]
		if !ok {
			continue
		}
		part, err := w.CreateFormFile(string(docType), att.Filename)
		if err != nil {
			return "", fmt.Errorf("create part %s: %w", docType, err)
		}
		if _, err := part.Write(att.Data); err != nil {
			return "", fmt.Errorf("write part %s: %w", docType, err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/submissions", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}
	defer resp.Body.Close()
	var result submission.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode submit response (%d): %w", resp.StatusCode, err)
	}
	if !result.Success {
		return result.SubmissionID, fmt.Errorf("%w: %s", ErrRejected, firstNonEmpty(result.Error, resp.Status))
	}
	return result.SubmissionID, nil
}

// Watch follows the live stream of a submission. onSnapshot sees every
// intermediate record; the settled record is returned.
func (c *Client) Watch(ctx context.Context, id string, onSnapshot func(*models.Submission)) (*models.Submission, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/submissions/"+id+"/events", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("open stream: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 8<<20)
	var event string
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteString("\n")
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case line == "":
			if event == "" && data.Len() == 0 {
				continue
			}
			sub, done, err := handleEvent(event, data.String(), onSnapshot)
			if err != nil || done {
				return sub, err
			}
			event = ""
			data.Reset()
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}
	return nil, errors.New("stream closed before the submission settled")
}

func handleEvent(event, data string, onSnapshot func(*models.Submission)) (*models.Submission, bool, error) {
	switch event {
	case "snapshot", "done":
		var sub models.Submission
		if err := json.Unmarshal([]byte(data), &sub); err != nil {
			return nil, false, fmt.Errorf("decode %s event: %w", event, err)
		}
		if event == "done" {
			return &sub, true, nil
		}
		if onSnapshot != nil {
			onSnapshot(&sub)
		}
		return nil, false, nil
	case "error":
		var payload struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal([]byte(data), &payload)
		return nil, true, fmt.Errorf("stream error: %s", firstNonEmpty(payload.Message, data))
	default:
		return nil, false, nil
	}
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) (int, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return 0, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return resp.StatusCode, fmt.Errorf("decode %s response: %w", path, err)
	}
	return resp.StatusCode, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
