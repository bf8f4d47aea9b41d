// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/libman/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。
	// メールアドレスの一意制約違反はmodel.NewDuplicateEmailError()に変換して返す。
	Create(ctx context.Context, user *model.User) error

	// FindByEmail は指定メールアドレスのユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// BookRepository は蔵書データの永続化インターフェース。
// 削除・部数削減は貸出中チェックを含むため、同一トランザクション内で実行する。
type BookRepository interface {
	// Create は蔵書を作成する。
	// タイトルの一意制約違反はmodel.NewDuplicateTitleError()に変換して返す。
	Create(ctx context.Context, book *model.Book) error

	// List は全蔵書を登録順で返す。
	List(ctx context.Context) ([]*model.Book, error)

	// Search はタイトルの大文字小文字無視の部分一致で蔵書を検索する。
	// termが空の場合は全件を返す。
	Search(ctx context.Context, term string) ([]*model.Book, error)

	// Delete は指定IDの蔵書を削除する。
	// 貸出中のIssueが1件でも存在する場合はBOOK_IN_USE、
	// 蔵書が存在しない場合はBOOK_NOT_FOUNDを返す。
	Delete(ctx context.Context, id string) error

	// ReduceTotal は蔵書の部数をqtyだけ削減し、削減後の部数を返す。
	// 削減可能部数は total - 貸出中件数。超過時はINSUFFICIENT_AVAILABLE、
	// 蔵書が存在しない場合はBOOK_NOT_FOUNDを返す。
	ReduceTotal(ctx context.Context, id string, qty int) (int, error)
}

// IssueRepository は貸出記録の永続化インターフェース。
// 貸出・返却は在庫の読み取りと更新を1トランザクションで直列化する。
type IssueRepository interface {
	// Issue は貸出ポリシーを1トランザクション内で評価し、貸出記録を作成する。
	// ユーザー行と蔵書行をロックした上で、順に
	// 貸出中件数>=maxBooks → LIMIT_REACHED、
	// 蔵書なし/在庫なし → BOOK_UNAVAILABLE、
	// 同一(ユーザー,蔵書)の貸出中あり → ALREADY_ISSUED
	// を判定し、通過した場合に在庫を1減らして記録を挿入する。
	Issue(ctx context.Context, issue *model.Issue, maxBooks int) error

	// Return は貸出中の記録にreturnedAtを設定し、在庫を1増やす。
	// 1トランザクションで実行する。貸出中の記録がない場合はNOT_ISSUEDを返す。
	Return(ctx context.Context, userID, bookID string, returnedAt time.Time) error

	// ListOutstandingByUser はユーザーの貸出中一覧を蔵書情報付きで返す。
	ListOutstandingByUser(ctx context.Context, userID string) ([]OutstandingIssueRow, error)

	// ListHistoryByUser はユーザーの全貸出履歴をissued_at降順で返す。
	ListHistoryByUser(ctx context.Context, userID string) ([]HistoryRow, error)

	// ListAllOutstanding は全ユーザーの貸出中一覧をユーザー・蔵書情報付きで返す。
	ListAllOutstanding(ctx context.Context) ([]OutstandingLoanRow, error)

	// ListAllHistory は全貸出履歴をissued_at降順で返す。
	ListAllHistory(ctx context.Context) ([]LoanHistoryRow, error)
}

// OutstandingIssueRow はユーザーの貸出中一覧の1行。
type OutstandingIssueRow struct {
	BookID    string
	BookTitle string
	IssuedAt  time.Time
}

// HistoryRow はユーザーの貸出履歴の1行。
type HistoryRow struct {
	BookTitle  string
	IssuedAt   time.Time
	ReturnedAt *time.Time
}

// OutstandingLoanRow は管理者向け貸出中一覧の1行。
type OutstandingLoanRow struct {
	StudentName string
	Email       string
	BookTitle   string
	IssuedAt    time.Time
}

// LoanHistoryRow は管理者向け全履歴の1行。
type LoanHistoryRow struct {
	StudentName string
	BookTitle   string
	IssuedAt    time.Time
	ReturnedAt  *time.Time
}
