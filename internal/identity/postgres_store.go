package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresSchema はusersテーブルの定義。起動時に毎回適用する。
const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    email TEXT NOT NULL UNIQUE,
    first_name TEXT,
    last_name TEXT,
    date_of_birth TEXT,
    phone_number TEXT,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
)`

// PostgresStore はPostgreSQLにユーザーを保存するCredentialStore。
type PostgresStore struct {
	pool *pgxpool.Pool
	credentials
}

// OpenPostgres はdsnのPostgreSQLに接続し、テーブルを作成する。
func OpenPostgres(ctx context.Context, dsn string, opts ...StoreOption) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("PostgreSQLへの接続に失敗: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("PostgreSQLへの疎通確認に失敗: %w", err)
	}

	store, err := NewPostgresStore(ctx, pool, opts...)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore は接続プールからStoreを生成し、テーブルが無ければ作成する。
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	creds, err := newCredentials(opts)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return &PostgresStore{pool: pool, credentials: creds}, nil
}

// Close は接続プールを閉じる。
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Create はユーザーを登録する。
func (s *PostgresStore) Create(ctx context.Context, username, password, email string) (User, error) {
	u, err := s.newUser(username, password, email)
	if err != nil {
		return User{}, err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO users (id, username, password_hash, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Username, u.PasswordHash, u.Email, u.CreatedAt, u.UpdatedAt,
	)
	if isPgUniqueViolation(err) {
		return User{}, ErrUserExists
	}
	if err != nil {
		return User{}, fmt.Errorf("ユーザーの登録に失敗: %w", err)
	}
	return u, nil
}

// Lookup はユーザー名でユーザーを取得する。
func (s *PostgresStore) Lookup(ctx context.Context, username string) (User, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE username = $1", username)
	return scanPgUser(row)
}

// Verify はユーザー名とパスワードを照合する。
func (s *PostgresStore) Verify(ctx context.Context, username, password string) (User, error) {
	u, err := s.Lookup(ctx, username)
	return s.verify(u, err, password)
}

// Get はIDでユーザーを取得する。
func (s *PostgresStore) Get(ctx context.Context, id string) (User, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
	return scanPgUser(row)
}

// Update はプロフィールを部分更新する。
func (s *PostgresStore) Update(ctx context.Context, id string, upd UserUpdate) (User, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE users SET
			first_name = COALESCE($1, first_name),
			last_name = COALESCE($2, last_name),
			date_of_birth = COALESCE($3, date_of_birth),
			phone_number = COALESCE($4, phone_number),
			updated_at = $5
		WHERE id = $6
		RETURNING `+userColumns,
		upd.FirstName, upd.LastName, upd.DateOfBirth, upd.PhoneNumber, s.timestamp(), id,
	)
	return scanPgUser(row)
}

// scanPgUser は1行をUserに変換する。
func scanPgUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Email,
		&u.FirstName, &u.LastName, &u.DateOfBirth, &u.PhoneNumber, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

// isPgUniqueViolation は一意制約違反（SQLSTATE 23505）かどうかを判定する。
func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
