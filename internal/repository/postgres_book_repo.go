package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/libman/internal/model"
)

// PostgresBookRepo はPostgreSQLを使用した蔵書リポジトリ。
type PostgresBookRepo struct {
	db *sql.DB
}

// NewPostgresBookRepo はPostgresBookRepoを生成する。
func NewPostgresBookRepo(db *sql.DB) *PostgresBookRepo {
	return &PostgresBookRepo{db: db}
}

// Create は蔵書を作成する。
// タイトルの一意制約違反はDUPLICATE_TITLEに変換する。
func (r *PostgresBookRepo) Create(ctx context.Context, book *model.Book) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO books (id, title, total, created_at) VALUES ($1, $2, $3, $4)`,
		book.ID, book.Title, book.Total, book.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, constraintBooksTitle) {
			return model.NewDuplicateTitleError(book.Title)
		}
		return fmt.Errorf("failed to insert book: %w", err)
	}

	return nil
}

// List は全蔵書を登録順で返す。
func (r *PostgresBookRepo) List(ctx context.Context) ([]*model.Book, error) {
	return r.queryBooks(ctx,
		`SELECT id, title, total, created_at FROM books ORDER BY created_at, id`)
}

// Search はタイトルの大文字小文字無視の部分一致で蔵書を検索する。
// termが空の場合は全件を返す。
func (r *PostgresBookRepo) Search(ctx context.Context, term string) ([]*model.Book, error) {
	if term == "" {
		return r.List(ctx)
	}
	return r.queryBooks(ctx,
		`SELECT id, title, total, created_at FROM books
		 WHERE title ILIKE '%' || $1 || '%' ORDER BY created_at, id`,
		term)
}

// Delete は指定IDの蔵書を削除する。
// 貸出中チェックと削除を1トランザクションで実行する。
func (r *PostgresBookRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 蔵書行をロックして存在確認
	var exists bool
	err = tx.QueryRowContext(ctx,
		`SELECT true FROM books WHERE id = $1 FOR UPDATE`, id,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return model.NewBookNotFoundError(id)
	}
	if err != nil {
		return fmt.Errorf("failed to lock book: %w", err)
	}

	// 貸出中のIssueが残っている間は削除不可
	var outstanding int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM issues WHERE book_id = $1 AND returned_at IS NULL`, id,
	).Scan(&outstanding)
	if err != nil {
		return fmt.Errorf("failed to count outstanding issues: %w", err)
	}
	if outstanding > 0 {
		return model.NewBookInUseError()
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete book: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ReduceTotal は蔵書の部数をqtyだけ削減し、削減後の部数を返す。
// 削減可能部数は total - 貸出中件数。読み取りと更新を1トランザクションで実行する。
func (r *PostgresBookRepo) ReduceTotal(ctx context.Context, id string, qty int) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var total int
	err = tx.QueryRowContext(ctx,
		`SELECT total FROM books WHERE id = $1 FOR UPDATE`, id,
	).Scan(&total)
	if err == sql.ErrNoRows {
		return 0, model.NewBookNotFoundError(id)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to lock book: %w", err)
	}

	var outstanding int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM issues WHERE book_id = $1 AND returned_at IS NULL`, id,
	).Scan(&outstanding)
	if err != nil {
		return 0, fmt.Errorf("failed to count outstanding issues: %w", err)
	}

	available := total - outstanding
	if available < 0 {
		available = 0
	}
	if qty > available {
		return 0, model.NewInsufficientAvailableError(available)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE books SET total = total - $1 WHERE id = $2`, qty, id,
	); err != nil {
		return 0, fmt.Errorf("failed to reduce book total: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return total - qty, nil
}

// queryBooks は蔵書一覧クエリを実行して結果をスキャンする。
func (r *PostgresBookRepo) queryBooks(ctx context.Context, query string, args ...any) ([]*model.Book, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query books: %w", err)
	}
	defer rows.Close()

	var books []*model.Book
	for rows.Next() {
		book := &model.Book{}
		if err := rows.Scan(&book.ID, &book.Title, &book.Total, &book.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate books: %w", err)
	}

	return books, nil
}

// compile-time interface check
var _ BookRepository = (*PostgresBookRepo)(nil)
