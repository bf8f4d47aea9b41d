// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの役割を表す。
type Role string

const (
	// RoleAdmin は管理者（蔵書管理と全体レポート閲覧が可能）。
	RoleAdmin Role = "admin"
	// RoleStudent は学生（貸出・返却・自身の履歴閲覧が可能）。
	RoleStudent Role = "student"
)

// IsValid はRoleが定義済みの値であるかを返す。
func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleStudent
}

// User はサービス利用ユーザーを表す。
// Emailは全ユーザーで一意。PasswordHashにはbcryptハッシュを保持する。
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}
