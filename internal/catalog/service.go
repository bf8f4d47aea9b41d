// Package catalog は蔵書管理のビジネスロジックを提供する。
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/libman/internal/model"
	"github.com/hitoshi/libman/internal/repository"
)

// Service は蔵書の追加・検索・削除・部数管理を行う。
type Service struct {
	bookRepo repository.BookRepository
	now      func() time.Time
}

// NewService は蔵書サービスを生成する。
func NewService(bookRepo repository.BookRepository) *Service {
	return &Service{
		bookRepo: bookRepo,
		now:      time.Now,
	}
}

// AddBook は蔵書を追加する。
// 同一タイトルが登録済みの場合はDUPLICATE_TITLE、
// 部数が負の場合はINVALID_QUANTITYを返す。部数0の登録は許可する。
func (s *Service) AddBook(ctx context.Context, title string, total int) (*model.Book, error) {
	if total < 0 {
		return nil, model.NewInvalidQuantityError(total)
	}

	book := &model.Book{
		ID:        uuid.NewString(),
		Title:     title,
		Total:     total,
		CreatedAt: s.now().UTC(),
	}

	if err := s.bookRepo.Create(ctx, book); err != nil {
		return nil, err
	}

	slog.Info("蔵書を追加しました",
		slog.String("book_id", book.ID),
		slog.String("title", book.Title),
		slog.Int("total", book.Total),
	)

	return book, nil
}

// ListBooks は全蔵書を登録順で返す。
func (s *Service) ListBooks(ctx context.Context) ([]*model.Book, error) {
	books, err := s.bookRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("蔵書一覧の取得に失敗しました: %w", err)
	}
	return books, nil
}

// SearchBooks はタイトルの部分一致（大文字小文字無視）で蔵書を検索する。
// 検索語が空の場合は全件を返す。
func (s *Service) SearchBooks(ctx context.Context, term string) ([]*model.Book, error) {
	books, err := s.bookRepo.Search(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("蔵書の検索に失敗しました: %w", err)
	}
	return books, nil
}

// DeleteBook は蔵書を削除する。
// 貸出中の部数がある場合はBOOK_IN_USE、存在しない場合はBOOK_NOT_FOUNDを返す。
func (s *Service) DeleteBook(ctx context.Context, bookID string) error {
	if err := s.bookRepo.Delete(ctx, bookID); err != nil {
		return err
	}

	slog.Info("蔵書を削除しました", slog.String("book_id", bookID))
	return nil
}

// ReduceCopies は蔵書の部数をqtyだけ削減し、削減後の部数を返す。
// qtyが1未満の場合はINVALID_QUANTITY、
// 貸出中を除いた部数を超える削減はINSUFFICIENT_AVAILABLEを返す。
func (s *Service) ReduceCopies(ctx context.Context, bookID string, qty int) (int, error) {
	if qty < 1 {
		return 0, model.NewInvalidQuantityError(qty)
	}

	remaining, err := s.bookRepo.ReduceTotal(ctx, bookID, qty)
	if err != nil {
		return 0, err
	}

	slog.Info("蔵書の部数を削減しました",
		slog.String("book_id", bookID),
		slog.Int("reduced", qty),
		slog.Int("remaining", remaining),
	)

	return remaining, nil
}
