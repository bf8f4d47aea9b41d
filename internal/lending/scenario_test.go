package lending

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/libman/internal/catalog"
	"github.com/hitoshi/libman/internal/model"
	"github.com/hitoshi/libman/internal/repository"
)

// memoryStore は貸出フローをサービス層から通しで検証するための
// インメモリ実装。PostgreSQL実装と同じポリシー判定・在庫増減を行う。
type memoryStore struct {
	users     map[string]*model.User
	books     map[string]*model.Book
	bookOrder []string
	issues    []*model.Issue
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users: make(map[string]*model.User),
		books: make(map[string]*model.Book),
	}
}

func (s *memoryStore) addUser(user *model.User) {
	s.users[user.ID] = user
}

func (s *memoryStore) outstandingByUser(userID string) int {
	count := 0
	for _, issue := range s.issues {
		if issue.UserID == userID && issue.Outstanding() {
			count++
		}
	}
	return count
}

func (s *memoryStore) outstandingByBook(bookID string) int {
	count := 0
	for _, issue := range s.issues {
		if issue.BookID == bookID && issue.Outstanding() {
			count++
		}
	}
	return count
}

func (s *memoryStore) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	for _, user := range s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) FindByID(ctx context.Context, id string) (*model.User, error) {
	return s.users[id], nil
}

// --- repository.BookRepository ---

func (s *memoryStore) List(ctx context.Context) ([]*model.Book, error) {
	books := make([]*model.Book, 0, len(s.bookOrder))
	for _, id := range s.bookOrder {
		books = append(books, s.books[id])
	}
	return books, nil
}

func (s *memoryStore) Search(ctx context.Context, term string) ([]*model.Book, error) {
	books, _ := s.List(ctx)
	if term == "" {
		return books, nil
	}
	matched := make([]*model.Book, 0, len(books))
	for _, book := range books {
		if strings.Contains(strings.ToLower(book.Title), strings.ToLower(term)) {
			matched = append(matched, book)
		}
	}
	return matched, nil
}

func (s *memoryStore) Delete(ctx context.Context, id string) error {
	if _, ok := s.books[id]; !ok {
		return model.NewBookNotFoundError(id)
	}
	if s.outstandingByBook(id) > 0 {
		return model.NewBookInUseError()
	}
	delete(s.books, id)
	for i, bookID := range s.bookOrder {
		if bookID == id {
			s.bookOrder = append(s.bookOrder[:i], s.bookOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (s *memoryStore) ReduceTotal(ctx context.Context, id string, qty int) (int, error) {
	book, ok := s.books[id]
	if !ok {
		return 0, model.NewBookNotFoundError(id)
	}
	available := book.Total - s.outstandingByBook(id)
	if available < 0 {
		available = 0
	}
	if qty > available {
		return 0, model.NewInsufficientAvailableError(available)
	}
	book.Total -= qty
	return book.Total, nil
}

// --- repository.IssueRepository ---

func (s *memoryStore) Issue(ctx context.Context, issue *model.Issue, maxBooks int) error {
	if _, ok := s.users[issue.UserID]; !ok {
		return model.NewUserNotFoundError()
	}
	if s.outstandingByUser(issue.UserID) >= maxBooks {
		return model.NewLimitReachedError(maxBooks)
	}
	book, ok := s.books[issue.BookID]
	if !ok || book.Total <= 0 {
		return model.NewBookUnavailableError()
	}
	for _, existing := range s.issues {
		if existing.UserID == issue.UserID && existing.BookID == issue.BookID && existing.Outstanding() {
			return model.NewAlreadyIssuedError()
		}
	}

	book.Total--
	stored := *issue
	s.issues = append(s.issues, &stored)
	return nil
}

func (s *memoryStore) Return(ctx context.Context, userID, bookID string, returnedAt time.Time) error {
	for _, issue := range s.issues {
		if issue.UserID == userID && issue.BookID == bookID && issue.Outstanding() {
			at := returnedAt
			issue.ReturnedAt = &at
			s.books[bookID].Total++
			return nil
		}
	}
	return model.NewNotIssuedError()
}

func (s *memoryStore) ListOutstandingByUser(ctx context.Context, userID string) ([]repository.OutstandingIssueRow, error) {
	var rows []repository.OutstandingIssueRow
	for _, issue := range s.issues {
		if issue.UserID == userID && issue.Outstanding() {
			rows = append(rows, repository.OutstandingIssueRow{
				BookID:    issue.BookID,
				BookTitle: s.books[issue.BookID].Title,
				IssuedAt:  issue.IssuedAt,
			})
		}
	}
	return rows, nil
}

func (s *memoryStore) ListHistoryByUser(ctx context.Context, userID string) ([]repository.HistoryRow, error) {
	var rows []repository.HistoryRow
	for _, issue := range s.issues {
		if issue.UserID == userID {
			rows = append(rows, repository.HistoryRow{
				BookTitle:  s.books[issue.BookID].Title,
				IssuedAt:   issue.IssuedAt,
				ReturnedAt: issue.ReturnedAt,
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].IssuedAt.After(rows[j].IssuedAt) })
	return rows, nil
}

func (s *memoryStore) ListAllOutstanding(ctx context.Context) ([]repository.OutstandingLoanRow, error) {
	var rows []repository.OutstandingLoanRow
	for _, issue := range s.issues {
		if issue.Outstanding() {
			user := s.users[issue.UserID]
			rows = append(rows, repository.OutstandingLoanRow{
				StudentName: user.Name,
				Email:       user.Email,
				BookTitle:   s.books[issue.BookID].Title,
				IssuedAt:    issue.IssuedAt,
			})
		}
	}
	return rows, nil
}

func (s *memoryStore) ListAllHistory(ctx context.Context) ([]repository.LoanHistoryRow, error) {
	var rows []repository.LoanHistoryRow
	for _, issue := range s.issues {
		rows = append(rows, repository.LoanHistoryRow{
			StudentName: s.users[issue.UserID].Name,
			BookTitle:   s.books[issue.BookID].Title,
			IssuedAt:    issue.IssuedAt,
			ReturnedAt:  issue.ReturnedAt,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].IssuedAt.After(rows[j].IssuedAt) })
	return rows, nil
}

// memoryBookRepo はmemoryStoreのCreateを蔵書用に差し替えるアダプタ。
// UserRepositoryとBookRepositoryでCreateのシグネチャが衝突するため分離する。
type memoryBookRepo struct {
	*memoryStore
}

func (r *memoryBookRepo) Create(ctx context.Context, book *model.Book) error {
	for _, existing := range r.books {
		if existing.Title == book.Title {
			return model.NewDuplicateTitleError(book.Title)
		}
	}
	stored := *book
	r.books[book.ID] = &stored
	r.bookOrder = append(r.bookOrder, book.ID)
	return nil
}

type memoryUserRepo struct {
	*memoryStore
}

func (r *memoryUserRepo) Create(ctx context.Context, user *model.User) error {
	r.addUser(user)
	return nil
}

// 蔵書追加から貸出・返却・履歴までの一連の流れを通しで検証する。
// 在庫の増減、貸出上限、確定した延滞料金が段階ごとに一致すること。
func TestLendingFlow_EndToEnd(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	bookRepo := &memoryBookRepo{store}
	userRepo := &memoryUserRepo{store}

	studentA := &model.User{ID: "user-a", Name: "山田太郎", Email: "taro@example.com", Role: model.RoleStudent}
	studentB := &model.User{ID: "user-b", Name: "鈴木花子", Email: "hanako@example.com", Role: model.RoleStudent}
	store.addUser(studentA)
	store.addUser(studentB)

	catalogSvc := catalog.NewService(bookRepo)

	current := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	lendingSvc := NewService(store, userRepo, defaultPolicy(), nil)
	lendingSvc.now = func() time.Time { return current }

	// 管理者が3冊入りの蔵書を登録する
	book, err := catalogSvc.AddBook(ctx, "坊っちゃん", 3)
	if err != nil {
		t.Fatalf("AddBook returned error: %v", err)
	}

	// Aが借りる: 在庫 3 → 2
	if _, err := lendingSvc.IssueBook(ctx, studentA.ID, book.ID); err != nil {
		t.Fatalf("issue for A returned error: %v", err)
	}
	if got := store.books[book.ID].Total; got != 2 {
		t.Errorf("total after A issues = %d, want 2", got)
	}

	// Bが借りる: 在庫 2 → 1
	if _, err := lendingSvc.IssueBook(ctx, studentB.ID, book.ID); err != nil {
		t.Fatalf("issue for B returned error: %v", err)
	}
	if got := store.books[book.ID].Total; got != 1 {
		t.Errorf("total after B issues = %d, want 1", got)
	}

	// Aが同じ本を重複して借りることはできない
	_, err = lendingSvc.IssueBook(ctx, studentA.ID, book.ID)
	assertAPIErrorCode(t, err, model.ErrCodeAlreadyIssued)

	// 9日後にAが返却する: 在庫 1 → 2、無料期間7日を2日超過
	current = current.AddDate(0, 0, 9)
	if err := lendingSvc.ReturnBook(ctx, studentA.ID, book.ID); err != nil {
		t.Fatalf("return for A returned error: %v", err)
	}
	if got := store.books[book.ID].Total; got != 2 {
		t.Errorf("total after A returns = %d, want 2", got)
	}

	// Aの貸出中一覧は空になる
	outstanding, err := lendingSvc.ListOutstandingForUser(ctx, studentA.ID)
	if err != nil {
		t.Fatalf("ListOutstandingForUser returned error: %v", err)
	}
	if len(outstanding) != 0 {
		t.Errorf("A outstanding = %d, want 0", len(outstanding))
	}

	// Aの履歴には返却済みの1件が残り、料金は返却時点で確定する
	history, err := lendingSvc.ListHistoryForUser(ctx, studentA.ID)
	if err != nil {
		t.Fatalf("ListHistoryForUser returned error: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("A history = %d entries, want 1", len(history))
	}
	closed := history[0]
	if closed.ReturnedAt == nil {
		t.Fatal("history entry is not marked returned")
	}
	if closed.Days != 9 {
		t.Errorf("history days = %d, want 9", closed.Days)
	}
	if closed.Fine != 10 {
		t.Errorf("history fine = %d, want 10", closed.Fine)
	}

	// Bはまだ借りたまま: 管理者向け一覧に1件
	loans, err := lendingSvc.ListCurrentlyIssued(ctx)
	if err != nil {
		t.Fatalf("ListCurrentlyIssued returned error: %v", err)
	}
	if len(loans) != 1 || loans[0].StudentName != studentB.Name {
		t.Fatalf("currently issued = %+v, want 1 loan by %s", loans, studentB.Name)
	}

	// 貸出中の蔵書は削除できない
	err = catalogSvc.DeleteBook(ctx, book.ID)
	assertAPIErrorCode(t, err, model.ErrCodeBookInUse)

	// Aが上限の2冊まで借り、3冊目でLIMIT_REACHEDになる
	second, err := catalogSvc.AddBook(ctx, "吾輩は猫である", 1)
	if err != nil {
		t.Fatalf("AddBook returned error: %v", err)
	}
	third, err := catalogSvc.AddBook(ctx, "こころ", 1)
	if err != nil {
		t.Fatalf("AddBook returned error: %v", err)
	}
	if _, err := lendingSvc.IssueBook(ctx, studentA.ID, book.ID); err != nil {
		t.Fatalf("reissue for A returned error: %v", err)
	}
	if _, err := lendingSvc.IssueBook(ctx, studentA.ID, second.ID); err != nil {
		t.Fatalf("second issue for A returned error: %v", err)
	}
	_, err = lendingSvc.IssueBook(ctx, studentA.ID, third.ID)
	assertAPIErrorCode(t, err, model.ErrCodeLimitReached)

	// 全履歴には返却済みと貸出中が混在する
	records, err := lendingSvc.ListAllHistory(ctx)
	if err != nil {
		t.Fatalf("ListAllHistory returned error: %v", err)
	}
	if len(records) != 4 {
		t.Errorf("all history = %d records, want 4", len(records))
	}
}
