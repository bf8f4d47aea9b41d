// Package lending は貸出・返却・延滞料金のビジネスロジックを提供する。
package lending

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/libman/internal/config"
	"github.com/hitoshi/libman/internal/model"
	"github.com/hitoshi/libman/internal/repository"
)

// MetricsRecorder は貸出関連のメトリクスを記録する。
type MetricsRecorder interface {
	RecordIssue()
	RecordReturn()
	RecordIssueRejected(reason string)
}

// OutstandingLoan は利用者の貸出中一覧の1件。経過日数と現時点の延滞料金を含む。
type OutstandingLoan struct {
	BookID    string    `json:"book_id"`
	BookTitle string    `json:"book_title"`
	IssuedAt  time.Time `json:"issued_at"`
	Days      int       `json:"days"`
	Fine      int       `json:"fine"`
}

// HistoryEntry は利用者の貸出履歴の1件。
// 返却済みの場合は返却時点、貸出中の場合は現時点までの日数と料金を含む。
type HistoryEntry struct {
	BookTitle  string     `json:"book_title"`
	IssuedAt   time.Time  `json:"issued_at"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
	Days       int        `json:"days"`
	Fine       int        `json:"fine"`
}

// CurrentLoan は管理者向け貸出中一覧の1件。
type CurrentLoan struct {
	StudentName string    `json:"student_name"`
	Email       string    `json:"email"`
	BookTitle   string    `json:"book_title"`
	IssuedAt    time.Time `json:"issued_at"`
	Days        int       `json:"days"`
}

// HistoryRecord は管理者向け全履歴の1件。
type HistoryRecord struct {
	StudentName string     `json:"student_name"`
	BookTitle   string     `json:"book_title"`
	IssuedAt    time.Time  `json:"issued_at"`
	ReturnedAt  *time.Time `json:"returned_at,omitempty"`
	Days        int        `json:"days"`
	Fine        int        `json:"fine"`
}

// Service は貸出ポリシーに基づく貸出・返却と延滞料金の算出を行う。
type Service struct {
	issueRepo repository.IssueRepository
	userRepo  repository.UserRepository
	policy    config.LendingPolicy
	metrics   MetricsRecorder
	now       func() time.Time
}

// NewService は貸出サービスを生成する。metricsはnil可。
func NewService(issueRepo repository.IssueRepository, userRepo repository.UserRepository, policy config.LendingPolicy, metrics MetricsRecorder) *Service {
	return &Service{
		issueRepo: issueRepo,
		userRepo:  userRepo,
		policy:    policy,
		metrics:   metrics,
		now:       time.Now,
	}
}

// IssueBook は蔵書を利用者に貸し出す。
// 上限到達・在庫なし・重複貸出の判定はリポジトリのトランザクション内で行われる。
func (s *Service) IssueBook(ctx context.Context, userID, bookID string) (*model.Issue, error) {
	issue := &model.Issue{
		ID:       uuid.NewString(),
		UserID:   userID,
		BookID:   bookID,
		IssuedAt: s.now().UTC(),
	}

	if err := s.issueRepo.Issue(ctx, issue, s.policy.MaxBooks); err != nil {
		s.recordRejection(err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordIssue()
	}
	slog.Info("蔵書を貸し出しました",
		slog.String("issue_id", issue.ID),
		slog.String("user_id", userID),
		slog.String("book_id", bookID),
	)

	return issue, nil
}

// ReturnBook は貸出中の蔵書を返却済みにする。
// 貸出中の記録がない場合はNOT_ISSUEDを返す。
func (s *Service) ReturnBook(ctx context.Context, userID, bookID string) error {
	if err := s.issueRepo.Return(ctx, userID, bookID, s.now().UTC()); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordReturn()
	}
	slog.Info("蔵書が返却されました",
		slog.String("user_id", userID),
		slog.String("book_id", bookID),
	)

	return nil
}

// ComputeFine は貸出日数に対する延滞料金を返す。
// 無料期間内は0、超過分は1日あたりの料金を乗じる。
func (s *Service) ComputeFine(days int) int {
	overdue := days - s.policy.FreeDays
	if overdue <= 0 {
		return 0
	}
	return overdue * s.policy.FinePerDay
}

// ListOutstandingForUser は利用者の貸出中一覧を経過日数・延滞料金付きで返す。
// ユーザーが存在しない場合はUSER_NOT_FOUNDを返す。
func (s *Service) ListOutstandingForUser(ctx context.Context, userID string) ([]OutstandingLoan, error) {
	if err := s.ensureUserExists(ctx, userID); err != nil {
		return nil, err
	}

	rows, err := s.issueRepo.ListOutstandingByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("貸出中一覧の取得に失敗しました: %w", err)
	}

	now := s.now().UTC()
	loans := make([]OutstandingLoan, 0, len(rows))
	for _, row := range rows {
		days := daysBetween(row.IssuedAt, now)
		loans = append(loans, OutstandingLoan{
			BookID:    row.BookID,
			BookTitle: row.BookTitle,
			IssuedAt:  row.IssuedAt,
			Days:      days,
			Fine:      s.ComputeFine(days),
		})
	}
	return loans, nil
}

// ListHistoryForUser は利用者の全貸出履歴を新しい順で返す。
// 返却済みの記録は返却時点で確定した料金、貸出中の記録は現時点の料金を含む。
// ユーザーが存在しない場合はUSER_NOT_FOUNDを返す。
func (s *Service) ListHistoryForUser(ctx context.Context, userID string) ([]HistoryEntry, error) {
	if err := s.ensureUserExists(ctx, userID); err != nil {
		return nil, err
	}

	rows, err := s.issueRepo.ListHistoryByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("貸出履歴の取得に失敗しました: %w", err)
	}

	now := s.now().UTC()
	entries := make([]HistoryEntry, 0, len(rows))
	for _, row := range rows {
		days := s.loanDays(row.IssuedAt, row.ReturnedAt, now)
		entries = append(entries, HistoryEntry{
			BookTitle:  row.BookTitle,
			IssuedAt:   row.IssuedAt,
			ReturnedAt: row.ReturnedAt,
			Days:       days,
			Fine:       s.ComputeFine(days),
		})
	}
	return entries, nil
}

// ListCurrentlyIssued は全利用者の貸出中一覧を返す（管理者向け）。
func (s *Service) ListCurrentlyIssued(ctx context.Context) ([]CurrentLoan, error) {
	rows, err := s.issueRepo.ListAllOutstanding(ctx)
	if err != nil {
		return nil, fmt.Errorf("貸出中一覧の取得に失敗しました: %w", err)
	}

	now := s.now().UTC()
	loans := make([]CurrentLoan, 0, len(rows))
	for _, row := range rows {
		loans = append(loans, CurrentLoan{
			StudentName: row.StudentName,
			Email:       row.Email,
			BookTitle:   row.BookTitle,
			IssuedAt:    row.IssuedAt,
			Days:        daysBetween(row.IssuedAt, now),
		})
	}
	return loans, nil
}

// ListAllHistory は全利用者の貸出履歴を新しい順で返す（管理者向け）。
func (s *Service) ListAllHistory(ctx context.Context) ([]HistoryRecord, error) {
	rows, err := s.issueRepo.ListAllHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("貸出履歴の取得に失敗しました: %w", err)
	}

	now := s.now().UTC()
	records := make([]HistoryRecord, 0, len(rows))
	for _, row := range rows {
		days := s.loanDays(row.IssuedAt, row.ReturnedAt, now)
		records = append(records, HistoryRecord{
			StudentName: row.StudentName,
			BookTitle:   row.BookTitle,
			IssuedAt:    row.IssuedAt,
			ReturnedAt:  row.ReturnedAt,
			Days:        days,
			Fine:        s.ComputeFine(days),
		})
	}
	return records, nil
}

// ensureUserExists は対象ユーザーの存在を確認する。
// 管理者が存在しないuser_idを指定した場合に空一覧でなくUSER_NOT_FOUNDを返すための確認。
func (s *Service) ensureUserExists(ctx context.Context, userID string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}
	return nil
}

// loanDays は貸出日数を返す。返却済みなら返却時点まで、貸出中なら現時点まで。
func (s *Service) loanDays(issuedAt time.Time, returnedAt *time.Time, now time.Time) int {
	if returnedAt != nil {
		return daysBetween(issuedAt, *returnedAt)
	}
	return daysBetween(issuedAt, now)
}

// recordRejection はポリシー違反による貸出拒否をメトリクスに記録する。
func (s *Service) recordRejection(err error) {
	if s.metrics == nil {
		return
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		return
	}
	switch apiErr.Code {
	case model.ErrCodeLimitReached, model.ErrCodeBookUnavailable, model.ErrCodeAlreadyIssued:
		s.metrics.RecordIssueRejected(apiErr.Code)
	}
}

// daysBetween は2時刻間の経過日数（24時間単位の切り捨て）を返す。負にはならない。
func daysBetween(from, to time.Time) int {
	days := int(to.Sub(from).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
