package post

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/postboard/pkg/migration"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteStore はSQLiteに投稿を保存するStore。
type SQLiteStore struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// OpenSQLite はpathのSQLiteデータベースを開き、マイグレーションを適用する。
// pathが ":memory:" ならインメモリデータベースを使う。
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	// SQLiteの書き込みは1接続に直列化する
	db.SetMaxOpenConns(1)

	store, err := NewSQLiteStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStore は開いたデータベースにマイグレーションを適用してStoreを生成する。
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if err := migration.Run(ctx, db, migrations, "migrations"); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close はデータベース接続を閉じる。
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Insert は新しい投稿を保存する。
func (s *SQLiteStore) Insert(ctx context.Context, p Post) error {
	tags, err := encodeTags(p.Tags)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO posts (id, title, description, creator_id, created_at, updated_at, is_private, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Title, p.Description, p.CreatorID,
		formatTime(p.CreatedAt), formatNullableTime(p.UpdatedAt), p.IsPrivate, tags,
	)
	if err != nil {
		return fmt.Errorf("投稿の挿入に失敗: %w", err)
	}
	return nil
}

// Get はIDで投稿を取得する。
func (s *SQLiteStore) Get(ctx context.Context, id string) (Post, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, creator_id, created_at, updated_at, is_private, tags
		FROM posts WHERE id = ?`, id)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Post{}, ErrNotFound
	}
	if err != nil {
		return Post{}, fmt.Errorf("投稿の取得に失敗: %w", err)
	}
	return p, nil
}

// Save は既存の投稿を上書きする。作成者と作成日時は変更しない。
func (s *SQLiteStore) Save(ctx context.Context, p Post) error {
	tags, err := encodeTags(p.Tags)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE posts SET title = ?, description = ?, updated_at = ?, is_private = ?, tags = ?
		WHERE id = ?`,
		p.Title, p.Description, formatNullableTime(p.UpdatedAt), p.IsPrivate, tags, p.ID,
	)
	if err != nil {
		return fmt.Errorf("投稿の更新に失敗: %w", err)
	}
	return requireAffected(result)
}

// Delete は投稿を削除する。
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM posts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("投稿の削除に失敗: %w", err)
	}
	return requireAffected(result)
}

// ListVisible は公開投稿とcallerの投稿を作成順に返す。
// 件数と一覧は同じ読み取りトランザクションで取得する。
func (s *SQLiteStore) ListVisible(ctx context.Context, caller string, offset, limit int) ([]Post, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var total int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM posts WHERE is_private = 0 OR creator_id = ?", caller,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("投稿数の取得に失敗: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, title, description, creator_id, created_at, updated_at, is_private, tags
		FROM posts WHERE is_private = 0 OR creator_id = ?
		ORDER BY seq LIMIT ? OFFSET ?`, caller, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("投稿一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	posts := []Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("投稿の読み取りに失敗: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("投稿一覧の読み取りに失敗: %w", err)
	}
	return posts, total, nil
}

// scanner は *sql.Row と *sql.Rows の共通部分。
type scanner interface {
	Scan(dest ...any) error
}

func scanPost(row scanner) (Post, error) {
	var (
		p         Post
		createdAt string
		updatedAt sql.NullString
		tags      string
	)
	if err := row.Scan(&p.ID, &p.Title, &p.Description, &p.CreatorID, &createdAt, &updatedAt, &p.IsPrivate, &tags); err != nil {
		return Post{}, err
	}

	var err error
	if p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return Post{}, fmt.Errorf("created_at の解析に失敗: %w", err)
	}
	if updatedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, updatedAt.String)
		if err != nil {
			return Post{}, fmt.Errorf("updated_at の解析に失敗: %w", err)
		}
		p.UpdatedAt = &t
	}
	if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
		return Post{}, fmt.Errorf("tags の解析に失敗: %w", err)
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return p, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("tags のシリアライズに失敗: %w", err)
	}
	return string(b), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatNullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
