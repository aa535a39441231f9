package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"diligencego/internal/catalog"
	"diligencego/internal/models"
	"diligencego/internal/report"
	"diligencego/internal/storage"
	"diligencego/internal/submission"
)

const (
	defaultMaxUploadBytes = 50 << 20
	multipartMemory       = 32 << 20
	sniffLen              = 512
)

var allowedContentTypes = []string{
	"text/plain",
	"text/markdown",
	"application/pdf",
	"application/json",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"image/",
}

// Word files sniff as generic containers; the extension decides.
var containerTypes = map[string]map[string]string{
	"application/zip": {
		".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	},
	"application/octet-stream": {
		".doc": "application/msword",
	},
}

var errUnsupportedType = errors.New("unsupported file type")

func isAllowedContentType(ct string) bool {
	for _, allowed := range allowedContentTypes {
		if strings.HasPrefix(ct, allowed) {
			return true
		}
	}
	return false
}

func (h *Handler) createSubmission(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, submission.Result{Error: "file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, submission.Result{Error: "invalid multipart form"})
		return
	}
	details := models.BasicDetails{
		StartupName:        c.PostForm("startupName"),
		Email:              c.PostForm("email"),
		YearOfRegistration: formInt(c, "yearOfRegistration"),
		NumberOfEmployees:  formInt(c, "numberOfEmployees"),
		Field:              catalog.Industry(c.PostForm("field")),
	}
	uploads, err := readUploads(c.Request.MultipartForm)
	if err != nil {
		if errors.Is(err, errUnsupportedType) {
			c.JSON(http.StatusBadRequest, submission.Result{Error: err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, submission.Result{Error: "open file failed"})
		return
	}

	id, err := h.submissions.Submit(c.Request.Context(), userID, details, uploads)
	result := submission.NewResult(id, err)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, result)
	case errors.Is(err, models.ErrInvalidDetails), errors.Is(err, submission.ErrMissingDocuments):
		c.JSON(http.StatusBadRequest, result)
	default:
		h.logger.Error("submit diligence report", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, result)
	}
}

func formInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(c.PostForm(key)))
	if err != nil {
		return 0
	}
	return n
}

// readUploads takes the first file of every known document type key and
// ignores the other file fields.
func readUploads(form *multipart.Form) (map[catalog.DocumentType]submission.Upload, error) {
	uploads := make(map[catalog.DocumentType]submission.Upload)
	if form == nil {
		return uploads, nil
	}
	for key, headers := range form.File {
		docType, ok := catalog.ParseDocumentType(key)
		if !ok || len(headers) == 0 {
			continue
		}
		up, err := readUpload(headers[0])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", docType, err)
		}
		uploads[docType] = up
	}
	return uploads, nil
}

func readUpload(fh *multipart.FileHeader) (submission.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return submission.Upload{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return submission.Upload{}, err
	}
	contentType := sniffContentType(fh.Filename, data)
	if !isAllowedContentType(contentType) {
		return submission.Upload{}, errUnsupportedType
	}
	return submission.Upload{Filename: fh.Filename, ContentType: contentType, Data: data}, nil
}

func sniffContentType(filename string, data []byte) string {
	ct := http.DetectContentType(data[:min(len(data), sniffLen)])
	if byExt, ok := containerTypes[ct]; ok {
		if refined, ok := byExt[strings.ToLower(filepath.Ext(filename))]; ok {
			return refined
		}
	}
	return ct
}

func (h *Handler) listSubmissions(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	subs, err := h.submissions.List(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(subs) == 0 {
		c.JSON(http.StatusOK, gin.H{"submissions": make([]*models.Submission, 0)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"submissions": subs})
}

func (h *Handler) getSubmission(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	sub, err := h.submissions.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.writeLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *Handler) summarizeSubmission(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	sum, err := h.submissions.Summarize(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, report.ErrNoDocuments) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.writeLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *Handler) writeLookupError(c *gin.Context, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "submission not found"})
		return
	}
	h.logger.Error("load submission", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "load submission failed"})
}

func (h *Handler) watchSubmission(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	// Cancelling stops the watcher when the client write fails.
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	snapshots, err := h.viewer.Watch(ctx, userID, c.Param("id"))
	if err != nil {
		h.writeLookupError(c, err)
		return
	}
	// SSE Request construction
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sendEvent := func(event string, payload interface{}) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "event: %s\n", event); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	var last *models.Submission
	for sub := range snapshots {
		last = sub
		if err := sendEvent("snapshot", sub); err != nil {
			return
		}
	}
	if last != nil && last.Status.Terminal() {
		_ = sendEvent("done", last)
		return
	}
	if ctx.Err() == nil {
		_ = sendEvent("error", gin.H{"message": "stream ended before the submission settled"})
	}
}
