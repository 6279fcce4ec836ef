package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// CredentialStore はユーザーと認証情報を保存する。
type CredentialStore interface {
	// Create はパスワードをハッシュ化してユーザーを登録する。
	// ユーザー名かメールアドレスが登録済みなら ErrUserExists を返す。
	Create(ctx context.Context, username, password, email string) (User, error)
	// Lookup はユーザー名でユーザーを取得する。
	Lookup(ctx context.Context, username string) (User, error)
	// Verify はユーザー名とパスワードを照合する。
	// 一致しない場合とユーザーが存在しない場合は、どちらも ErrInvalidCredentials を返す。
	Verify(ctx context.Context, username, password string) (User, error)
	// Get はIDでユーザーを取得する。
	Get(ctx context.Context, id string) (User, error)
	// Update はプロフィールを部分更新し、更新後のユーザーを返す。
	Update(ctx context.Context, id string, upd UserUpdate) (User, error)
}

// StoreOption はCredentialStore実装の設定を変更する関数。
type StoreOption func(*credentials)

// WithBcryptCost はパスワードハッシュのコストを設定する。
func WithBcryptCost(cost int) StoreOption {
	return func(c *credentials) {
		c.cost = cost
	}
}

// WithClock は登録日時・更新日時に使う時計を設定する。
func WithClock(now func() time.Time) StoreOption {
	return func(c *credentials) {
		c.now = now
	}
}

// credentials はSQLiteとPostgreSQLの実装で共通のパスワード処理。
type credentials struct {
	cost  int
	now   func() time.Time
	newID func() string
	// dummyHash は存在しないユーザーの照合にも同じ時間をかけるためのハッシュ。
	dummyHash []byte
}

func newCredentials(opts []StoreOption) (credentials, error) {
	c := credentials{
		cost:  bcrypt.DefaultCost,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(&c)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("postboard"), c.cost)
	if err != nil {
		return credentials{}, fmt.Errorf("パスワードハッシュの初期化に失敗: %w", err)
	}
	c.dummyHash = hash
	return c, nil
}

// timestamp はデータベースの精度に揃えた現在時刻を返す。
func (c credentials) timestamp() time.Time {
	return c.now().UTC().Truncate(time.Microsecond)
}

// newUser はパスワードをハッシュ化した新規ユーザーを組み立てる。
func (c credentials) newUser(username, password, email string) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), c.cost)
	if err != nil {
		return User{}, fmt.Errorf("パスワードのハッシュ化に失敗: %w", err)
	}
	now := c.timestamp()
	return User{
		ID:           c.newID(),
		Username:     username,
		PasswordHash: string(hash),
		Email:        email,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// verify はLookupの結果とパスワードを照合する。
func (c credentials) verify(u User, lookupErr error, password string) (User, error) {
	if errors.Is(lookupErr, ErrUserNotFound) {
		_ = bcrypt.CompareHashAndPassword(c.dummyHash, []byte(password))
		return User{}, ErrInvalidCredentials
	}
	if lookupErr != nil {
		return User{}, lookupErr
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}
