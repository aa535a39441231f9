package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"diligencego/internal/auth"
	"diligencego/internal/blob"
	"diligencego/internal/catalog"
	"diligencego/internal/logger"
	"diligencego/internal/models"
	"diligencego/internal/report"
	"diligencego/internal/storage"
	"diligencego/internal/submission"
)

// SubmissionService is the submission pipeline seen from HTTP.
type SubmissionService interface {
	Submit(ctx context.Context, owner string, details models.BasicDetails, uploads map[catalog.DocumentType]submission.Upload) (string, error)
	Get(ctx context.Context, owner, id string) (*models.Submission, error)
	List(ctx context.Context, owner string) ([]*models.Submission, error)
	Summarize(ctx context.Context, owner, id string) (*report.Summary, error)
}

// DocumentReporter drafts a report from a single base64 document.
type DocumentReporter interface {
	GenerateFromDocument(ctx context.Context, fileBase64 string) (string, error)
}

// Watcher streams a submission until it settles.
type Watcher interface {
	Watch(ctx context.Context, owner, id string) (<-chan *models.Submission, error)
}

// Handler wires HTTP routes to the submission pipeline, the report
// generator and the live viewer.
type Handler struct {
	submissions    SubmissionService
	reporter       DocumentReporter
	viewer         Watcher
	auth           *auth.Service
	files          *blob.LocalStore
	maxUploadBytes int64
	logger         *zap.Logger
}

// Option configures a Handler.
type Option func(*Handler)

func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) { h.logger = logger.OrNop(l) }
}

// WithLocalFiles serves objects of the local blob backend under /files.
func WithLocalFiles(store *blob.LocalStore) Option {
	return func(h *Handler) { h.files = store }
}

// WithMaxUploadBytes caps request bodies that carry documents.
func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// NewHandler constructs a Handler instance.
func NewHandler(submissions SubmissionService, reporter DocumentReporter, viewer Watcher, authService *auth.Service, opts ...Option) *Handler {
	h := &Handler{
		submissions:    submissions,
		reporter:       reporter,
		viewer:         viewer,
		auth:           authService,
		maxUploadBytes: defaultMaxUploadBytes,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) authorizedUserID(c *gin.Context) (string, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return "", false
	}
	return userID, true
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if h.files != nil {
		router.GET("/files/*key", h.auth.Middleware(), h.serveFile)
	}

	api := router.Group("/api")
	api.POST("/auth/register", h.registerUser)
	api.POST("/auth/login", h.loginUser)
	api.GET("/industries", h.listIndustries)
	api.GET("/required-documents", h.requiredDocuments)
	api.POST("/generate-report", h.generateReport)
	api.POST("/diligence/new", h.generateReport)

	protected := api.Group("")
	protected.Use(h.auth.Middleware(), h.auth.CSRFMiddleware())
	protected.POST("/auth/logout", h.logoutUser)
	protected.GET("/auth/me", h.currentUser)
	protected.POST("/submissions", h.createSubmission)
	protected.GET("/submissions", h.listSubmissions)
	protected.GET("/submissions/:id", h.getSubmission)
	protected.GET("/submissions/:id/events", h.watchSubmission)
	protected.POST("/submissions/:id/summary", h.summarizeSubmission)
}

// User create&login interface
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func userPayload(user *models.User) gin.H {
	return gin.H{
		"id":         user.ID,
		"email":      user.Email,
		"created_at": user.CreatedAt,
	}
}

func (h *Handler) registerUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.auth.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, auth.ErrInvalidEmail), errors.Is(err, auth.ErrWeakPassword):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("register user", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "register failed"})
		}
		return
	}
	c.JSON(http.StatusCreated, userPayload(user))
}

func (h *Handler) loginUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, authToken, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("login", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	h.setAuthCookies(c, authToken, csrfToken)
	c.JSON(http.StatusOK, gin.H{
		"user":  userPayload(user),
		"token": authToken,
	})
}

func (h *Handler) logoutUser(c *gin.Context) {
	if _, ok := h.authorizedUserID(c); !ok {
		return
	}
	if authToken, ok := auth.AuthTokenFromContext(c); ok {
		if err := h.auth.RevokeToken(c.Request.Context(), authToken); err != nil {
			h.logger.Warn("revoke token", zap.Error(err))
		}
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) currentUser(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	user, err := h.auth.UserByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		h.logger.Error("load user", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load user failed"})
		return
	}
	c.JSON(http.StatusOK, userPayload(user))
}

type documentInfo struct {
	Type  catalog.DocumentType `json:"type"`
	Label string               `json:"label"`
}

func documentsOf(industry catalog.Industry) []documentInfo {
	docs := catalog.RequiredDocuments(industry)
	out := make([]documentInfo, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentInfo{Type: d, Label: d.Label()})
	}
	return out
}

func (h *Handler) listIndustries(c *gin.Context) {
	industries := catalog.Industries()
	out := make([]gin.H, 0, len(industries))
	for _, ind := range industries {
		out = append(out, gin.H{"name": ind, "documents": documentsOf(ind)})
	}
	c.JSON(http.StatusOK, gin.H{"industries": out, "default": catalog.DefaultIndustry})
}

func (h *Handler) requiredDocuments(c *gin.Context) {
	industry, ok := catalog.ParseIndustry(c.Query("industry"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please select a valid industry."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"industry": industry, "documents": documentsOf(industry)})
}

// serveFile hands out stored documents to the owner of their submission.
func (h *Handler) serveFile(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	key := strings.TrimPrefix(c.Param("key"), "/")
	id, ok := blob.SubmissionIDFromKey(key)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	if _, err := h.submissions.Get(c.Request.Context(), userID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}
		h.logger.Error("load submission for file", zap.String("submission_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load file failed"})
		return
	}
	p, err := h.files.Path(key)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	c.File(p)
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	setCookie(c, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	setCookie(c, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.AuthCookieName(), h.auth.CSRFCookieName()} {
		setCookie(c, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.AuthCookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func setCookie(c *gin.Context, ck *http.Cookie) {
	if ck == nil {
		return
	}
	http.SetCookie(c.Writer, ck)
}
