// Package auth はユーザー登録と認証のドメインロジックを提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/libman/internal/model"
	"github.com/hitoshi/libman/internal/repository"
)

// PasswordHasher はパスワードのハッシュ化と検証のインターフェース。
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(hashed, plain string) bool
}

// TokenIssuer は署名付きアクセストークン発行のインターフェース。
type TokenIssuer interface {
	Issue(userID string, role model.Role) (string, error)
}

// MetricsRecorder は認証関連メトリクス記録のインターフェース。
type MetricsRecorder interface {
	RecordRegistration()
	RecordLoginSuccess()
	RecordLoginFailure()
}

// LoginResult は認証成功時に返す情報。
type LoginResult struct {
	Token  string
	Role   model.Role
	UserID string
}

// Service はユーザー登録・認証のサービス層。
// ハッシュポリシーとトークン発行はコンストラクタで注入する。
type Service struct {
	userRepo repository.UserRepository
	hasher   PasswordHasher
	tokens   TokenIssuer
	metrics  MetricsRecorder
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// metricsはnilでもよい。
func NewService(
	userRepo repository.UserRepository,
	hasher PasswordHasher,
	tokens TokenIssuer,
	metrics MetricsRecorder,
) *Service {
	return &Service{
		userRepo: userRepo,
		hasher:   hasher,
		tokens:   tokens,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Register は新規ユーザーを登録する。
// メールアドレスが登録済みの場合はDUPLICATE_EMAILを返す
// （ストアの一意制約違反をリポジトリ層がドメインエラーに変換する）。
func (s *Service) Register(ctx context.Context, name, email, plain string, role model.Role) (*model.User, error) {
	if !role.IsValid() {
		return nil, model.NewInvalidRoleError(string(role))
	}

	hashed, err := s.hasher.Hash(plain)
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	user := &model.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hashed,
		Role:         role,
		CreatedAt:    s.now().UTC(),
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordRegistration()
	}
	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)

	return user, nil
}

// Login はメールアドレスとパスワードで認証し、アクセストークンを発行する。
// メール未登録とパスワード不一致はどちらもINVALID_CREDENTIALSを返し、
// 呼び出し側からは区別できない（ユーザー列挙を防ぐ）。
func (s *Service) Login(ctx context.Context, email, plain string) (*LoginResult, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil || !s.hasher.Verify(user.PasswordHash, plain) {
		if s.metrics != nil {
			s.metrics.RecordLoginFailure()
		}
		return nil, model.NewInvalidCredentialsError()
	}

	tok, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("トークンの発行に失敗しました: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordLoginSuccess()
	}
	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)

	return &LoginResult{
		Token:  tok,
		Role:   user.Role,
		UserID: user.ID,
	}, nil
}
