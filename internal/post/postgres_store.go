package post

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// postRecord はpostsテーブルの行。
type postRecord struct {
	// Seq は作成順を保つための連番。
	Seq         int64      `gorm:"autoIncrement;uniqueIndex;not null"`
	ID          string     `gorm:"primaryKey;type:text"`
	Title       string     `gorm:"type:text;not null"`
	Description string     `gorm:"type:text;not null;default:''"`
	CreatorID   string     `gorm:"type:text;not null;index:idx_posts_visibility,priority:2"`
	CreatedAt   time.Time  `gorm:"not null;autoCreateTime:false"`
	UpdatedAt   *time.Time `gorm:"autoUpdateTime:false"`
	IsPrivate   bool       `gorm:"not null;default:false;index:idx_posts_visibility,priority:1"`
	Tags        []string   `gorm:"serializer:json;type:text;not null"`
}

// TableName はテーブル名を返す。
func (postRecord) TableName() string {
	return "posts"
}

func recordFromPost(p Post) postRecord {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return postRecord{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		CreatorID:   p.CreatorID,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		IsPrivate:   p.IsPrivate,
		Tags:        tags,
	}
}

func (r postRecord) toPost() Post {
	p := Post{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		CreatorID:   r.CreatorID,
		CreatedAt:   r.CreatedAt.UTC(),
		IsPrivate:   r.IsPrivate,
		Tags:        r.Tags,
	}
	if r.UpdatedAt != nil {
		t := r.UpdatedAt.UTC()
		p.UpdatedAt = &t
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return p
}

// PostgresStore はPostgreSQLに投稿を保存するStore。
type PostgresStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

// OpenPostgres はdsnのPostgreSQLに接続し、テーブルを自動マイグレーションする。
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("PostgreSQLの接続文字列が必要です")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("PostgreSQLへの接続に失敗: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("接続ハンドルの取得に失敗: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("PostgreSQLへの疎通確認に失敗: %w", err)
	}

	store, err := NewPostgresStore(ctx, db, logger)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore は接続済みのgorm.DBからStoreを生成する。テーブルが無ければ作成する。
func NewPostgresStore(ctx context.Context, db *gorm.DB, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := db.WithContext(ctx).AutoMigrate(&postRecord{}); err != nil {
		return nil, fmt.Errorf("postsテーブルのマイグレーションに失敗: %w", err)
	}
	return &PostgresStore{db: db, logger: logger}, nil
}

// Close はデータベース接続を閉じる。
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Insert は新しい投稿を保存する。
func (s *PostgresStore) Insert(ctx context.Context, p Post) error {
	record := recordFromPost(p)
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return s.logError("post_store_insert_failed", err, "post_id", p.ID)
	}
	return nil
}

// Get はIDで投稿を取得する。
func (s *PostgresStore) Get(ctx context.Context, id string) (Post, error) {
	var record postRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Post{}, ErrNotFound
	}
	if err != nil {
		return Post{}, s.logError("post_store_get_failed", err, "post_id", id)
	}
	return record.toPost(), nil
}

// Save は既存の投稿を上書きする。作成者と作成日時は変更しない。
func (s *PostgresStore) Save(ctx context.Context, p Post) error {
	record := recordFromPost(p)
	result := s.db.WithContext(ctx).
		Model(&postRecord{}).
		Where("id = ?", p.ID).
		Select("title", "description", "updated_at", "is_private", "tags").
		Updates(&record)
	if result.Error != nil {
		return s.logError("post_store_save_failed", result.Error, "post_id", p.ID)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete は投稿を削除する。
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&postRecord{})
	if result.Error != nil {
		return s.logError("post_store_delete_failed", result.Error, "post_id", id)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListVisible は公開投稿とcallerの投稿を作成順に返す。
// 件数と一覧は同じトランザクションで取得する。
func (s *PostgresStore) ListVisible(ctx context.Context, caller string, offset, limit int) ([]Post, int, error) {
	var (
		total   int64
		records []postRecord
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		visible := func() *gorm.DB {
			return tx.Model(&postRecord{}).Where("is_private = ? OR creator_id = ?", false, caller)
		}
		if err := visible().Count(&total).Error; err != nil {
			return err
		}
		return visible().Order("seq ASC").Offset(offset).Limit(limit).Find(&records).Error
	})
	if err != nil {
		return nil, 0, s.logError("post_store_list_failed", err, "caller", caller)
	}

	posts := make([]Post, 0, len(records))
	for _, r := range records {
		posts = append(posts, r.toPost())
	}
	return posts, int(total), nil
}

func (s *PostgresStore) logError(event string, err error, attrs ...any) error {
	s.logger.Error(event, append(attrs, "error", err)...)
	return fmt.Errorf("%s: %w", event, err)
}
