// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, lending, catalog, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeDuplicateEmail        = "DUPLICATE_EMAIL"
	ErrCodeDuplicateTitle        = "DUPLICATE_TITLE"
	ErrCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	ErrCodeLimitReached          = "LIMIT_REACHED"
	ErrCodeBookUnavailable       = "BOOK_UNAVAILABLE"
	ErrCodeAlreadyIssued         = "ALREADY_ISSUED"
	ErrCodeNotIssued             = "NOT_ISSUED"
	ErrCodeBookNotFound          = "BOOK_NOT_FOUND"
	ErrCodeInvalidQuantity       = "INVALID_QUANTITY"
	ErrCodeInsufficientAvailable = "INSUFFICIENT_AVAILABLE"
	ErrCodeBookInUse             = "BOOK_IN_USE"
	ErrCodeInvalidRole           = "INVALID_ROLE"
	ErrCodeUserNotFound          = "USER_NOT_FOUND"
)

// NewDuplicateEmailError は登録済みメールアドレスでの再登録エラーを生成する。
func NewDuplicateEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEmail,
		Message:  "このメールアドレスはすでに登録されています。",
		Category: "auth",
		Action:   "別のメールアドレスで登録するか、ログインしてください。",
	}
}

// NewDuplicateTitleError は登録済みタイトルでの蔵書追加エラーを生成する。
func NewDuplicateTitleError(title string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateTitle,
		Message:  fmt.Sprintf("このタイトルはすでに登録されています: %s", title),
		Category: "catalog",
		Action:   "既存の蔵書の部数を増やすか、別のタイトルで登録してください。",
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// ユーザー列挙を防ぐため、メール未登録とパスワード不一致を区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewLimitReachedError は貸出上限到達エラーを生成する。
func NewLimitReachedError(maxBooks int) *APIError {
	return &APIError{
		Code:     ErrCodeLimitReached,
		Message:  fmt.Sprintf("貸出上限（%d冊）に達しています。", maxBooks),
		Category: "lending",
		Action:   "借りている本を返却してから再度お試しください。",
	}
}

// NewBookUnavailableError は在庫なし・蔵書未登録エラーを生成する。
func NewBookUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeBookUnavailable,
		Message:  "この本は現在貸出できません。",
		Category: "lending",
		Action:   "返却されるのを待つか、別の本をお探しください。",
	}
}

// NewAlreadyIssuedError は同一ユーザーへの重複貸出エラーを生成する。
func NewAlreadyIssuedError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyIssued,
		Message:  "この本はすでに借りています。",
		Category: "lending",
		Action:   "返却してから再度借りてください。",
	}
}

// NewNotIssuedError は未貸出の本の返却エラーを生成する。
func NewNotIssuedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotIssued,
		Message:  "この本は貸出記録がないか、すでに返却済みです。",
		Category: "lending",
		Action:   "貸出中の本の一覧を確認してください。",
	}
}

// NewBookNotFoundError は蔵書未検出エラーを生成する。
func NewBookNotFoundError(bookID string) *APIError {
	return &APIError{
		Code:     ErrCodeBookNotFound,
		Message:  fmt.Sprintf("指定された蔵書が見つかりません: %s", bookID),
		Category: "catalog",
		Action:   "蔵書IDを確認してください。",
	}
}

// NewInvalidQuantityError は不正な部数指定エラーを生成する。
func NewInvalidQuantityError(qty int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidQuantity,
		Message:  fmt.Sprintf("部数は1以上を指定してください: %d", qty),
		Category: "validation",
		Action:   "正の整数を指定してください。",
	}
}

// NewInsufficientAvailableError は削減可能部数を超えた削減要求エラーを生成する。
func NewInsufficientAvailableError(available int) *APIError {
	return &APIError{
		Code:     ErrCodeInsufficientAvailable,
		Message:  fmt.Sprintf("削減できるのは%d部までです。", available),
		Category: "catalog",
		Action:   "貸出中の部数を除いた範囲で指定してください。",
	}
}

// NewBookInUseError は貸出中の蔵書の削除エラーを生成する。
func NewBookInUseError() *APIError {
	return &APIError{
		Code:     ErrCodeBookInUse,
		Message:  "この蔵書は現在貸出中のため削除できません。",
		Category: "catalog",
		Action:   "すべて返却されてから削除してください。",
	}
}

// NewInvalidRoleError は未定義ロールでの登録エラーを生成する。
func NewInvalidRoleError(role string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRole,
		Message:  fmt.Sprintf("無効なロールです: %s", role),
		Category: "validation",
		Action:   "admin または student を指定してください。",
	}
}

// NewUserNotFoundError はユーザー未検出エラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}
