package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/libman/internal/model"
)

// PostgresIssueRepo はPostgreSQLを使用した貸出記録リポジトリ。
// 貸出・返却は在庫の読み取りと更新を同一トランザクションで直列化する。
type PostgresIssueRepo struct {
	db *sql.DB
}

// NewPostgresIssueRepo はPostgresIssueRepoを生成する。
func NewPostgresIssueRepo(db *sql.DB) *PostgresIssueRepo {
	return &PostgresIssueRepo{db: db}
}

// Issue は貸出ポリシーを1トランザクション内で評価し、貸出記録を作成する。
// ロック順序はユーザー行→蔵書行で固定し、同一ユーザー・同一蔵書への
// 並行貸出を直列化する（最後の1冊の二重貸出を防ぐ）。
func (r *PostgresIssueRepo) Issue(ctx context.Context, issue *model.Issue, maxBooks int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 1. ユーザー行をロックし、同一ユーザーの貸出を直列化する
	var exists bool
	err = tx.QueryRowContext(ctx,
		`SELECT true FROM users WHERE id = $1 FOR UPDATE`, issue.UserID,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return model.NewUserNotFoundError()
	}
	if err != nil {
		return fmt.Errorf("failed to lock user: %w", err)
	}

	// 2. 貸出上限チェック
	var outstanding int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM issues WHERE user_id = $1 AND returned_at IS NULL`,
		issue.UserID,
	).Scan(&outstanding)
	if err != nil {
		return fmt.Errorf("failed to count outstanding issues: %w", err)
	}
	if outstanding >= maxBooks {
		return model.NewLimitReachedError(maxBooks)
	}

	// 3. 蔵書行をロックして在庫チェック
	var total int
	err = tx.QueryRowContext(ctx,
		`SELECT total FROM books WHERE id = $1 FOR UPDATE`, issue.BookID,
	).Scan(&total)
	if err == sql.ErrNoRows {
		return model.NewBookUnavailableError()
	}
	if err != nil {
		return fmt.Errorf("failed to lock book: %w", err)
	}
	if total <= 0 {
		return model.NewBookUnavailableError()
	}

	// 4. 同一(ユーザー, 蔵書)の貸出中レコードの重複チェック
	var already bool
	err = tx.QueryRowContext(ctx,
		`SELECT true FROM issues
		 WHERE user_id = $1 AND book_id = $2 AND returned_at IS NULL`,
		issue.UserID, issue.BookID,
	).Scan(&already)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to check outstanding issue: %w", err)
	}
	if already {
		return model.NewAlreadyIssuedError()
	}

	// 5. 在庫を1減らして貸出記録を挿入
	if _, err := tx.ExecContext(ctx,
		`UPDATE books SET total = total - 1 WHERE id = $1`, issue.BookID,
	); err != nil {
		return fmt.Errorf("failed to decrement book total: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO issues (id, user_id, book_id, issued_at, returned_at)
		 VALUES ($1, $2, $3, $4, NULL)`,
		issue.ID, issue.UserID, issue.BookID, issue.IssuedAt,
	)
	if err != nil {
		// 部分ユニークインデックスが最後の防衛線
		if isUniqueViolation(err, constraintOutstandingIssue) {
			return model.NewAlreadyIssuedError()
		}
		return fmt.Errorf("failed to insert issue: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Return は貸出中の記録にreturnedAtを設定し、在庫を1増やす。
// 記録は削除しない（履歴を保持する）。
func (r *PostgresIssueRepo) Return(ctx context.Context, userID, bookID string, returnedAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var issueID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM issues
		 WHERE user_id = $1 AND book_id = $2 AND returned_at IS NULL
		 FOR UPDATE`,
		userID, bookID,
	).Scan(&issueID)
	if err == sql.ErrNoRows {
		return model.NewNotIssuedError()
	}
	if err != nil {
		return fmt.Errorf("failed to find outstanding issue: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE issues SET returned_at = $1 WHERE id = $2`, returnedAt, issueID,
	); err != nil {
		return fmt.Errorf("failed to mark issue returned: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE books SET total = total + 1 WHERE id = $1`, bookID,
	); err != nil {
		return fmt.Errorf("failed to increment book total: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListOutstandingByUser はユーザーの貸出中一覧を蔵書情報付きで返す。
func (r *PostgresIssueRepo) ListOutstandingByUser(ctx context.Context, userID string) ([]OutstandingIssueRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT books.id, books.title, issues.issued_at
		 FROM issues
		 JOIN books ON books.id = issues.book_id
		 WHERE issues.user_id = $1 AND issues.returned_at IS NULL
		 ORDER BY issues.issued_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query outstanding issues: %w", err)
	}
	defer rows.Close()

	var results []OutstandingIssueRow
	for rows.Next() {
		var row OutstandingIssueRow
		if err := rows.Scan(&row.BookID, &row.BookTitle, &row.IssuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outstanding issue: %w", err)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outstanding issues: %w", err)
	}

	return results, nil
}

// ListHistoryByUser はユーザーの全貸出履歴をissued_at降順で返す。
func (r *PostgresIssueRepo) ListHistoryByUser(ctx context.Context, userID string) ([]HistoryRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT books.title, issues.issued_at, issues.returned_at
		 FROM issues
		 JOIN books ON books.id = issues.book_id
		 WHERE issues.user_id = $1
		 ORDER BY issues.issued_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query issue history: %w", err)
	}
	defer rows.Close()

	var results []HistoryRow
	for rows.Next() {
		var row HistoryRow
		if err := rows.Scan(&row.BookTitle, &row.IssuedAt, &row.ReturnedAt); err != nil {
			return nil, fmt.Errorf("failed to scan issue history: %w", err)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate issue history: %w", err)
	}

	return results, nil
}

// ListAllOutstanding は全ユーザーの貸出中一覧をユーザー・蔵書情報付きで返す。
func (r *PostgresIssueRepo) ListAllOutstanding(ctx context.Context) ([]OutstandingLoanRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT users.name, users.email, books.title, issues.issued_at
		 FROM issues
		 JOIN users ON users.id = issues.user_id
		 JOIN books ON books.id = issues.book_id
		 WHERE issues.returned_at IS NULL
		 ORDER BY issues.issued_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query all outstanding issues: %w", err)
	}
	defer rows.Close()

	var results []OutstandingLoanRow
	for rows.Next() {
		var row OutstandingLoanRow
		if err := rows.Scan(&row.StudentName, &row.Email, &row.BookTitle, &row.IssuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outstanding loan: %w", err)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outstanding loans: %w", err)
	}

	return results, nil
}

// ListAllHistory は全貸出履歴をissued_at降順で返す。
func (r *PostgresIssueRepo) ListAllHistory(ctx context.Context) ([]LoanHistoryRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT users.name, books.title, issues.issued_at, issues.returned_at
		 FROM issues
		 JOIN users ON users.id = issues.user_id
		 JOIN books ON books.id = issues.book_id
		 ORDER BY issues.issued_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query all issue history: %w", err)
	}
	defer rows.Close()

	var results []LoanHistoryRow
	for rows.Next() {
		var row LoanHistoryRow
		if err := rows.Scan(&row.StudentName, &row.BookTitle, &row.IssuedAt, &row.ReturnedAt); err != nil {
			return nil, fmt.Errorf("failed to scan loan history: %w", err)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate loan history: %w", err)
	}

	return results, nil
}

// compile-time interface check
var _ IssueRepository = (*PostgresIssueRepo)(nil)
