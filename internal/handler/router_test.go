package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/libman/internal/auth"
	"github.com/hitoshi/libman/internal/middleware"
	"github.com/hitoshi/libman/internal/model"
	"github.com/hitoshi/libman/internal/token"
)

type pingOK struct{}

func (pingOK) Ping() error { return nil }

// newTestRouter は実際のトークンマネージャーを使ったテスト用ルーターを構築する。
func newTestRouter(t *testing.T) (http.Handler, *token.Manager) {
	t.Helper()

	tokens := token.NewManager("test-secret", time.Hour)
	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	deps := &RouterDeps{
		TokenVerifier:     tokens,
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		HealthChecker:     pingOK{},
		AuthService: &mockAuthService{
			loginFn: func(ctx context.Context, email, plain string) (*auth.LoginResult, error) {
				return &auth.LoginResult{Token: "signed", Role: model.RoleStudent, UserID: "user-1"}, nil
			},
		},
		CatalogService: &mockCatalogService{},
		LendingService: &mockLendingService{},
	}

	return NewRouter(deps), tokens
}

func TestRouter_HealthEndpointIsPublic(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestRouter_LoginIsPublic(t *testing.T) {
	router, _ := newTestRouter(t)

	body := `{"email":"taro@example.com","password":"secret123"}`
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString(body))
	req.RemoteAddr = "192.0.2.10:50000"
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestRouter_ProtectedRoutesRequireToken(t *testing.T) {
	router, _ := newTestRouter(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/books/search"},
		{http.MethodGet, "/student/issued"},
		{http.MethodPost, "/student/issue/book-1"},
		{http.MethodGet, "/admin/books"},
	}

	for _, p := range paths {
		req := httptest.NewRequest(p.method, p.path, nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Result().StatusCode != http.StatusUnauthorized {
			t.Errorf("%s %s: status = %d, want %d", p.method, p.path, w.Result().StatusCode, http.StatusUnauthorized)
		}
	}
}

func TestRouter_AdminRoutesRejectStudents(t *testing.T) {
	router, tokens := newTestRouter(t)

	studentToken, err := tokens.Issue("user-1", model.RoleStudent)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/books", nil)
	req.Header.Set("Authorization", "Bearer "+studentToken)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusForbidden)
	}
}

func TestRouter_AdminRoutesAllowAdmins(t *testing.T) {
	router, tokens := newTestRouter(t)

	adminToken, err := tokens.Issue("admin-1", model.RoleAdmin)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/books", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestRouter_StudentRoutesAllowStudents(t *testing.T) {
	router, tokens := newTestRouter(t)

	studentToken, err := tokens.Issue("user-1", model.RoleStudent)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/student/issued", nil)
	req.Header.Set("Authorization", "Bearer "+studentToken)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestRouter_SetsSecurityHeaders(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if got := w.Result().Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := w.Result().Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}
