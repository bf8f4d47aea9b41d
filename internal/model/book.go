package model

import "time"

// Book は蔵書を表す。
// Totalは「現在貸出可能な部数」であり、貸出で1減り返却で1増える。
// Total >= 0 が常に成り立つ（DB側のCHECK制約でも保証する）。
type Book struct {
	ID        string
	Title     string
	Total     int
	CreatedAt time.Time
}
