package identity

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/postboard/pkg/migration"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrations embed.FS

// userColumns はusersテーブルから読み出す列。scanUserの順序と一致させる。
const userColumns = `id, username, password_hash, email, first_name, last_name,
	date_of_birth, phone_number, created_at, updated_at`

// SQLiteStore はSQLiteにユーザーを保存するCredentialStore。
type SQLiteStore struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
	credentials
}

// OpenSQLite はpathのSQLiteデータベースを開き、マイグレーションを適用する。
// pathが ":memory:" ならインメモリデータベースを使う。
func OpenSQLite(ctx context.Context, path string, opts ...StoreOption) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	db.SetMaxOpenConns(1)

	store, err := NewSQLiteStore(ctx, db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStore は開いたデータベースにマイグレーションを適用してStoreを生成する。
func NewSQLiteStore(ctx context.Context, db *sql.DB, opts ...StoreOption) (*SQLiteStore, error) {
	creds, err := newCredentials(opts)
	if err != nil {
		return nil, err
	}
	if err := migration.Run(ctx, db, migrations, "migrations"); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return &SQLiteStore{db: db, credentials: creds}, nil
}

// Close はデータベース接続を閉じる。
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Create はユーザーを登録する。
func (s *SQLiteStore) Create(ctx context.Context, username, password, email string) (User, error) {
	u, err := s.newUser(username, password, email)
	if err != nil {
		return User{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, u.Email,
		u.CreatedAt.Format(time.RFC3339Nano), u.UpdatedAt.Format(time.RFC3339Nano),
	)
	if isUniqueViolation(err) {
		return User{}, ErrUserExists
	}
	if err != nil {
		return User{}, fmt.Errorf("ユーザーの登録に失敗: %w", err)
	}
	return u, nil
}

// Lookup はユーザー名でユーザーを取得する。
func (s *SQLiteStore) Lookup(ctx context.Context, username string) (User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username)
	return scanSQLiteUser(row)
}

// Verify はユーザー名とパスワードを照合する。
func (s *SQLiteStore) Verify(ctx context.Context, username, password string) (User, error) {
	u, err := s.Lookup(ctx, username)
	return s.verify(u, err, password)
}

// Get はIDでユーザーを取得する。
func (s *SQLiteStore) Get(ctx context.Context, id string) (User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	return scanSQLiteUser(row)
}

// Update はプロフィールを部分更新する。
func (s *SQLiteStore) Update(ctx context.Context, id string, upd UserUpdate) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE users SET
			first_name = COALESCE(?, first_name),
			last_name = COALESCE(?, last_name),
			date_of_birth = COALESCE(?, date_of_birth),
			phone_number = COALESCE(?, phone_number),
			updated_at = ?
		WHERE id = ?
		RETURNING `+userColumns,
		upd.FirstName, upd.LastName, upd.DateOfBirth, upd.PhoneNumber,
		s.timestamp().Format(time.RFC3339Nano), id,
	)
	return scanSQLiteUser(row)
}

// scanSQLiteUser は1行をUserに変換する。
func scanSQLiteUser(row *sql.Row) (User, error) {
	var (
		u                    User
		firstName, lastName  sql.NullString
		dateOfBirth, phone   sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Email,
		&firstName, &lastName, &dateOfBirth, &phone, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}

	u.FirstName = nullableString(firstName)
	u.LastName = nullableString(lastName)
	u.DateOfBirth = nullableString(dateOfBirth)
	u.PhoneNumber = nullableString(phone)
	if u.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return User{}, fmt.Errorf("created_at の解析に失敗: %w", err)
	}
	if u.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return User{}, fmt.Errorf("updated_at の解析に失敗: %w", err)
	}
	return u, nil
}

func nullableString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

// isUniqueViolation はSQLiteの一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
