package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/libman/internal/model"
)

// CatalogServiceInterface は蔵書ハンドラーが必要とするサービスインターフェース。
type CatalogServiceInterface interface {
	// AddBook は蔵書を追加する。
	AddBook(ctx context.Context, title string, total int) (*model.Book, error)
	// ListBooks は全蔵書を返す。
	ListBooks(ctx context.Context) ([]*model.Book, error)
	// SearchBooks はタイトルの部分一致で蔵書を検索する。
	SearchBooks(ctx context.Context, term string) ([]*model.Book, error)
	// DeleteBook は蔵書を削除する。
	DeleteBook(ctx context.Context, bookID string) error
	// ReduceCopies は蔵書の部数を削減し、削減後の部数を返す。
	ReduceCopies(ctx context.Context, bookID string, qty int) (int, error)
}

// CatalogHandler は蔵書管理のHTTPハンドラー。
type CatalogHandler struct {
	service CatalogServiceInterface
}

// NewCatalogHandler はCatalogHandlerを生成する。
func NewCatalogHandler(service CatalogServiceInterface) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// addBookRequest は蔵書追加リクエストのボディ。
type addBookRequest struct {
	Title string `json:"title" validate:"required,max=200"`
	Total int    `json:"total" validate:"min=0"`
}

// bookResponse は蔵書情報のAPIレスポンス。
type bookResponse struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Total int    `json:"total"`
}

// reduceCopiesResponse は部数削減のAPIレスポンス。
type reduceCopiesResponse struct {
	ID    string `json:"id"`
	Total int    `json:"total"`
}

// AddBook は蔵書追加を処理する。
// POST /admin/book
func (h *CatalogHandler) AddBook(w http.ResponseWriter, r *http.Request) {
	var req addBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w, "リクエストボディの解析に失敗しました。")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeInvalidRequest(w, "入力内容が不正です: "+err.Error())
		return
	}

	book, err := h.service.AddBook(r.Context(), req.Title, req.Total)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toBookResponse(book))
}

// ListBooks は全蔵書一覧を返す。
// GET /admin/books
func (h *CatalogHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.ListBooks(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toBookResponses(books))
}

// SearchBooks はタイトル検索を処理する。検索語が空の場合は全件を返す。
// GET /books/search?q=
func (h *CatalogHandler) SearchBooks(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")

	books, err := h.service.SearchBooks(r.Context(), term)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toBookResponses(books))
}

// DeleteBook は蔵書削除を処理する。
// DELETE /admin/book/{id}
func (h *CatalogHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "id")

	if err := h.service.DeleteBook(r.Context(), bookID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ReduceCopies は部数削減を処理する。
// PATCH /admin/book/{id}/reduce?qty=N
func (h *CatalogHandler) ReduceCopies(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "id")

	qty, err := strconv.Atoi(r.URL.Query().Get("qty"))
	if err != nil {
		writeInvalidRequest(w, "qtyには整数を指定してください。")
		return
	}

	remaining, err := h.service.ReduceCopies(r.Context(), bookID, qty)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reduceCopiesResponse{
		ID:    bookID,
		Total: remaining,
	})
}

// toBookResponse はmodel.BookからAPIレスポンスに変換する。
func toBookResponse(book *model.Book) bookResponse {
	return bookResponse{
		ID:    book.ID,
		Title: book.Title,
		Total: book.Total,
	}
}

// toBookResponses は蔵書一覧をAPIレスポンスに変換する。
func toBookResponses(books []*model.Book) []bookResponse {
	res := make([]bookResponse, 0, len(books))
	for _, book := range books {
		res = append(res, toBookResponse(book))
	}
	return res
}
