package model

import "time"

// Issue は1冊の本を1人のユーザーに貸し出した記録を表す。
// ReturnedAtがnilの間は貸出中（outstanding）。返却時に削除はせず
// ReturnedAtを設定することで履歴を保持する。
type Issue struct {
	ID         string
	UserID     string
	BookID     string
	IssuedAt   time.Time
	ReturnedAt *time.Time
}

// Outstanding は貸出中（未返却）であるかを返す。
func (i *Issue) Outstanding() bool {
	return i.ReturnedAt == nil
}
