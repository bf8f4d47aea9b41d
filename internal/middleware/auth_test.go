package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/libman/internal/model"
)

type stubVerifier struct {
	userID string
	role   model.Role
	err    error
}

func (s *stubVerifier) VerifyIdentity(tokenString string) (string, model.Role, error) {
	if s.err != nil {
		return "", "", s.err
	}
	return s.userID, s.role, nil
}

func TestAuthMiddleware_InjectsUserIntoContext(t *testing.T) {
	verifier := &stubVerifier{userID: "user-1", role: model.RoleStudent}
	mw := NewAuthMiddleware(verifier)

	var gotUserID string
	var gotRole model.Role
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = UserIDFromContext(r.Context())
		gotRole, _ = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/books/search", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if gotUserID != "user-1" {
		t.Errorf("user ID = %q, want %q", gotUserID, "user-1")
	}
	if gotRole != model.RoleStudent {
		t.Errorf("role = %s, want student", gotRole)
	}
}

func TestAuthMiddleware_RejectsMissingOrMalformedHeader(t *testing.T) {
	verifier := &stubVerifier{userID: "user-1", role: model.RoleStudent}
	mw := NewAuthMiddleware(verifier)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	tests := []struct {
		name   string
		header string
	}{
		{name: "ヘッダーなし", header: ""},
		{name: "スキームなし", header: "valid-token"},
		{name: "Bearer以外のスキーム", header: "Basic dXNlcjpwYXNz"},
		{name: "トークン空", header: "Bearer "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/books/search", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Result().StatusCode != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
			}
		})
	}
}

func TestAuthMiddleware_RejectsInvalidToken(t *testing.T) {
	verifier := &stubVerifier{err: fmt.Errorf("failed to parse token")}
	mw := NewAuthMiddleware(verifier)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/books/search", nil)
	req.Header.Set("Authorization", "Bearer expired-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestRequireAdminMiddleware(t *testing.T) {
	mw := NewRequireAdminMiddleware()

	tests := []struct {
		name       string
		role       model.Role
		wantStatus int
	}{
		{name: "管理者は通過", role: model.RoleAdmin, wantStatus: http.StatusOK},
		{name: "学生は拒否", role: model.RoleStudent, wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/admin/book", nil)
			req = req.WithContext(ContextWithUser(req.Context(), "user-1", tt.role))
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Result().StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Result().StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestRequireAdminMiddleware_RejectsUnauthenticated(t *testing.T) {
	mw := NewRequireAdminMiddleware()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodPost, "/admin/book", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusForbidden)
	}
}

// 認証・認可の拒否レスポンスがハンドラー層と同じ統一JSONフォーマットであることを検証
func TestAuthMiddleware_RejectionBodyFormat(t *testing.T) {
	noCall := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	})

	t.Run("401はUNAUTHORIZED", func(t *testing.T) {
		handler := NewAuthMiddleware(&stubVerifier{err: fmt.Errorf("failed to parse token")})(noCall)

		req := httptest.NewRequest(http.MethodGet, "/books/search", nil)
		req.Header.Set("Authorization", "Bearer expired-token")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assertUnifiedErrorBody(t, w, "UNAUTHORIZED")
	})

	t.Run("403はFORBIDDEN", func(t *testing.T) {
		handler := NewRequireAdminMiddleware()(noCall)

		req := httptest.NewRequest(http.MethodPost, "/admin/book", nil)
		req = req.WithContext(ContextWithUser(req.Context(), "user-1", model.RoleStudent))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assertUnifiedErrorBody(t, w, "FORBIDDEN")
	})
}

func assertUnifiedErrorBody(t *testing.T, w *httptest.ResponseRecorder, wantCode string) {
	t.Helper()
	resp := w.Result()
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != wantCode {
		t.Errorf("code = %q, want %q", body.Code, wantCode)
	}
}

func TestUserIDFromContext_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	if _, err := UserIDFromContext(req.Context()); err == nil {
		t.Error("expected error for missing user ID")
	}
	if _, err := RoleFromContext(req.Context()); err == nil {
		t.Error("expected error for missing role")
	}
}
