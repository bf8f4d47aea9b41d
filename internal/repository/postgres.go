package repository

import (
	"errors"

	"github.com/lib/pq"
)

// 一意制約名（マイグレーションのDDLと対応する）
const (
	constraintUsersEmail       = "users_email_key"
	constraintBooksTitle       = "books_title_key"
	constraintOutstandingIssue = "uq_issues_outstanding_user_book"
)

// isUniqueViolation は指定した一意制約の違反エラーであるかを判定する。
// ストアレベルの整合性違反はここで検出し、呼び出し側でドメインエラーに変換する。
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "23505" && pqErr.Constraint == constraint
}
