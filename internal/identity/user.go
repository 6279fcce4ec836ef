package identity

import (
	"errors"
	"time"
)

var (
	// ErrUserNotFound はユーザーが存在しないことを示す。
	ErrUserNotFound = errors.New("ユーザーが見つかりません")
	// ErrInvalidCredentials はユーザー名かパスワードが誤っていることを示す。
	ErrInvalidCredentials = errors.New("ユーザー名またはパスワードが正しくありません")
	// ErrUserExists はユーザー名かメールアドレスが登録済みであることを示す。
	ErrUserExists = errors.New("ユーザー名またはメールアドレスは登録済みです")
)

// User は登録済みのユーザー。
type User struct {
	// ID はユーザーの一意識別子（UUID）。セッションのusrクレームに入る。
	ID string `json:"id"`
	// Username はログインに使う名前。
	Username string `json:"username"`
	// PasswordHash はbcryptでハッシュ化したパスワード。レスポンスには含めない。
	PasswordHash string `json:"-"`
	// Email はメールアドレス。
	Email string `json:"email"`
	// FirstName は名。
	FirstName *string `json:"first_name"`
	// LastName は姓。
	LastName *string `json:"last_name"`
	// DateOfBirth は生年月日（YYYY-MM-DD）。
	DateOfBirth *string `json:"date_of_birth"`
	// PhoneNumber は電話番号。
	PhoneNumber *string `json:"phone_number"`
	// CreatedAt は登録日時。
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt は最終更新日時。
	UpdatedAt time.Time `json:"updated_at"`
}

// UserUpdate はプロフィールの部分更新。nilのフィールドは変更しない。
type UserUpdate struct {
	FirstName   *string
	LastName    *string
	DateOfBirth *string
	PhoneNumber *string
}
