package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"

	"diligencego/internal/config"
	"diligencego/internal/redis"
	"diligencego/internal/storage"
)

func openUserStore(t *testing.T) *storage.UserStore {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {
				DSN: ":memory:",
			},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return storage.NewUserStore(db)
}

func newRedisCacheClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	client, err := redis.NewRedisClient(&config.Config{
		Redis: config.RedisConfig{Host: mr.Host(), Port: port},
	})
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestRegisterAndLogin(t *testing.T) {
	svc := NewService(openUserStore(t), nil, "secret", time.Hour)
	ctx := context.Background()

	user, err := svc.Register(ctx, "  Founder@Example.com ", "hunter22")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Email != "founder@example.com" || user.PasswordHash == "hunter22" {
		t.Fatalf("unexpected user %+v", user)
	}
	if _, err := svc.Register(ctx, "founder@example.com", "another1"); !errors.Is(err, storage.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	got, token, err := svc.Login(ctx, "FOUNDER@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got.ID != user.ID || token == "" {
		t.Fatalf("login returned %+v %q", got, token)
	}
	claims, err := svc.ValidateToken(ctx, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Subject != user.ID || claims.Email != user.Email || claims.ID == "" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if _, _, err := svc.Login(ctx, "founder@example.com", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestRegisterRejectsBadInput(t *testing.T) {
	svc := NewService(openUserStore(t), nil, "secret", time.Hour)
	if _, err := svc.Register(context.Background(), "not-an-email", "hunter22"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
	if _, err := svc.Register(context.Background(), "a@b.co", "12345"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	store := openUserStore(t)
	svc := NewService(store, nil, "secret", time.Hour)
	other := NewService(store, nil, "different", time.Hour)
	user, err := svc.Register(context.Background(), "a@b.co", "hunter22")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	token, err := other.IssueToken(user)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := svc.ValidateToken(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := svc.ValidateToken(context.Background(), "garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
}

func TestValidateExpiredToken(t *testing.T) {
	svc := NewService(openUserStore(t), nil, "secret", time.Minute)
	user, err := svc.Register(context.Background(), "a@b.co", "hunter22")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	token, err := svc.IssueToken(user)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := svc.ValidateToken(context.Background(), token); err == nil {
		t.Fatalf("expected expiration error")
	}
}

func TestRevokeTokenUsesRedis(t *testing.T) {
	cache, mr := newRedisCacheClient(t)
	svc := NewService(openUserStore(t), cache, "secret", time.Hour)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "a@b.co", "hunter22"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, token, err := svc.Login(ctx, "a@b.co", "hunter22")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	claims, err := svc.ValidateToken(ctx, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if err := svc.RevokeToken(ctx, token); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	key := revokedKey(claims.ID)
	if !mr.Exists(key) {
		t.Fatalf("expected deny-list key %s", key)
	}
	if ttl := mr.TTL(key); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("unexpected deny-list ttl %v", ttl)
	}
	if _, err := svc.ValidateToken(ctx, token); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}

	_, fresh, err := svc.Login(ctx, "a@b.co", "hunter22")
	if err != nil {
		t.Fatalf("second Login: %v", err)
	}
	if _, err := svc.ValidateToken(ctx, fresh); err != nil {
		t.Fatalf("fresh token should stay valid: %v", err)
	}
	if err := svc.RevokeToken(ctx, "garbage"); err != nil {
		t.Fatalf("revoking garbage should be a no-op: %v", err)
	}
}

func newAuthRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	protected := r.Group("/", svc.Middleware(), svc.CSRFMiddleware())
	handler := func(c *gin.Context) {
		id, _ := UserIDFromContext(c)
		c.JSON(http.StatusOK, gin.H{"id": id})
	}
	protected.GET("/me", handler)
	protected.POST("/me", handler)
	return r
}

func TestMiddlewareAndCSRF(t *testing.T) {
	svc := NewService(openUserStore(t), nil, "secret", time.Hour)
	user, err := svc.Register(context.Background(), "a@b.co", "hunter22")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	token, err := svc.IssueToken(user)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	router := newAuthRouter(svc)

	cases := []struct {
		name   string
		method string
		setup  func(*http.Request)
		want   int
	}{
		{"no token", http.MethodGet, func(r *http.Request) {}, http.StatusUnauthorized},
		{"bearer get", http.MethodGet, func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK},
		{"bearer post skips csrf", http.MethodPost, func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK},
		{"cookie get", http.MethodGet, func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "auth_token", Value: token})
		}, http.StatusOK},
		{"cookie post without csrf", http.MethodPost, func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "auth_token", Value: token})
		}, http.StatusForbidden},
		{"cookie post with csrf", http.MethodPost, func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "auth_token", Value: token})
			r.AddCookie(&http.Cookie{Name: "csrf_token", Value: "abc"})
			r.Header.Set("X-CSRF-Token", "abc")
		}, http.StatusOK},
		{"cookie post with mismatched csrf", http.MethodPost, func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "auth_token", Value: token})
			r.AddCookie(&http.Cookie{Name: "csrf_token", Value: "abc"})
			r.Header.Set("X-CSRF-Token", "abd")
		}, http.StatusForbidden},
		{"lowercase bearer", http.MethodPost, func(r *http.Request) { r.Header.Set("Authorization", "bearer "+token) }, http.StatusOK},
		{"bad token", http.MethodGet, func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/me", nil)
			tc.setup(req)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}
