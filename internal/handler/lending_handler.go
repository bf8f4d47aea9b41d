package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/libman/internal/lending"
	"github.com/hitoshi/libman/internal/middleware"
	"github.com/hitoshi/libman/internal/model"
)

// LendingServiceInterface は貸出ハンドラーが必要とするサービスインターフェース。
type LendingServiceInterface interface {
	// IssueBook は蔵書を利用者に貸し出す。
	IssueBook(ctx context.Context, userID, bookID string) (*model.Issue, error)
	// ReturnBook は貸出中の蔵書を返却済みにする。
	ReturnBook(ctx context.Context, userID, bookID string) error
	// ListOutstandingForUser は利用者の貸出中一覧を延滞料金付きで返す。
	ListOutstandingForUser(ctx context.Context, userID string) ([]lending.OutstandingLoan, error)
	// ListHistoryForUser は利用者の貸出履歴を返す。
	ListHistoryForUser(ctx context.Context, userID string) ([]lending.HistoryEntry, error)
	// ListCurrentlyIssued は全利用者の貸出中一覧を返す。
	ListCurrentlyIssued(ctx context.Context) ([]lending.CurrentLoan, error)
	// ListAllHistory は全利用者の貸出履歴を返す。
	ListAllHistory(ctx context.Context) ([]lending.HistoryRecord, error)
}

// LendingHandler は貸出・返却と貸出状況照会のHTTPハンドラー。
type LendingHandler struct {
	service LendingServiceInterface
}

// NewLendingHandler はLendingHandlerを生成する。
func NewLendingHandler(service LendingServiceInterface) *LendingHandler {
	return &LendingHandler{service: service}
}

// issueResponse は貸出のAPIレスポンス。
type issueResponse struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	BookID   string `json:"book_id"`
	IssuedAt string `json:"issued_at"`
}

// IssueBook は貸出を処理する。
// POST /student/issue/{book_id}?user_id=
func (h *LendingHandler) IssueBook(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveUserID(w, r)
	if !ok {
		return
	}
	bookID := chi.URLParam(r, "book_id")

	issue, err := h.service.IssueBook(r.Context(), userID, bookID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, issueResponse{
		ID:       issue.ID,
		UserID:   issue.UserID,
		BookID:   issue.BookID,
		IssuedAt: issue.IssuedAt.Format(time.RFC3339),
	})
}

// ReturnBook は返却を処理する。
// POST /student/return/{book_id}?user_id=
func (h *LendingHandler) ReturnBook(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveUserID(w, r)
	if !ok {
		return
	}
	bookID := chi.URLParam(r, "book_id")

	if err := h.service.ReturnBook(r.Context(), userID, bookID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListOutstanding は利用者の貸出中一覧を返す。
// GET /student/issued?user_id=
func (h *LendingHandler) ListOutstanding(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveUserID(w, r)
	if !ok {
		return
	}

	loans, err := h.service.ListOutstandingForUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loans)
}

// ListHistory は利用者の貸出履歴を返す。
// GET /student/history?user_id=
func (h *LendingHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveUserID(w, r)
	if !ok {
		return
	}

	entries, err := h.service.ListHistoryForUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

// ListCurrentlyIssued は全利用者の貸出中一覧を返す。
// GET /admin/issued
func (h *LendingHandler) ListCurrentlyIssued(w http.ResponseWriter, r *http.Request) {
	loans, err := h.service.ListCurrentlyIssued(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loans)
}

// ListAllHistory は全利用者の貸出履歴を返す。
// GET /admin/history
func (h *LendingHandler) ListAllHistory(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListAllHistory(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, records)
}

// resolveUserID は操作対象のユーザーIDを決定する。
// user_idクエリパラメータが指定された場合、認証済みユーザー本人か管理者のみ許可する。
// 未指定の場合は認証済みユーザー自身を対象とする。
func (h *LendingHandler) resolveUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	authUserID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
			Code:     "UNAUTHORIZED",
			Message:  "認証が必要です。",
			Category: "auth",
			Action:   "ログインしてください。",
		})
		return "", false
	}

	target := r.URL.Query().Get("user_id")
	if target == "" {
		return authUserID, true
	}
	if target == authUserID {
		return target, true
	}

	// 他ユーザーの指定は管理者のみ
	role, err := middleware.RoleFromContext(r.Context())
	if err != nil || role != model.RoleAdmin {
		writeAPIErrorResponse(w, http.StatusForbidden, &model.APIError{
			Code:     "FORBIDDEN",
			Message:  "他のユーザーを指定できるのは管理者のみです。",
			Category: "auth",
			Action:   "user_idを指定しないか、管理者としてログインしてください。",
		})
		return "", false
	}

	return target, true
}
