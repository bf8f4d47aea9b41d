// Package token は署名付きアクセストークンの発行と検証を提供する。
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/libman/internal/model"
)

// Claims はアクセストークンに含めるクレーム。
// SubjectにユーザーID、Roleに役割を保持する。
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Manager はHS256署名のJWTを発行・検証する。
// 秘密鍵と有効期間はグローバル状態ではなくコンストラクタで注入する。
type Manager struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewManager はManagerを生成する。
func NewManager(secret string, expiry time.Duration) *Manager {
	return &Manager{
		secret: []byte(secret),
		expiry: expiry,
		now:    time.Now,
	}
}

// Issue は指定ユーザーのアクセストークンを発行する。
func (m *Manager) Issue(userID string, role model.Role) (string, error) {
	now := m.now()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify はトークンを検証し、有効な場合はクレームを返す。
// 署名不正・期限切れ・署名方式の不一致はすべてエラーになる。
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return m.now() }))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}

	return claims, nil
}

// VerifyIdentity はトークンを検証し、ユーザーIDとロールを返す。
// 認証ミドルウェアから利用する。
func (m *Manager) VerifyIdentity(tokenString string) (string, model.Role, error) {
	claims, err := m.Verify(tokenString)
	if err != nil {
		return "", "", err
	}
	role := model.Role(claims.Role)
	if !role.IsValid() {
		return "", "", fmt.Errorf("unknown role in token: %q", claims.Role)
	}
	return claims.Subject, role, nil
}
