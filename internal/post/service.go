package post

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// maxTitleLength はタイトルの最大文字数。
	maxTitleLength = 200
	// maxTags は1つの投稿に付けられるタグの最大数。
	maxTags = 20
	// MaxPageSize は一覧の1ページあたりの最大件数。
	MaxPageSize = 100
)

// Service は投稿の認可とページングを担う。ストアへの読み書きはStoreに委ねる。
// 同じ投稿への同時更新は後勝ちになる。
type Service struct {
	// store は投稿の保存先。
	store Store
	// logger は構造化ロガー。
	logger *slog.Logger
	// now は現在時刻を返す。
	now func() time.Time
	// newID は投稿IDを生成する。
	newID func() string
}

// ServiceOption はServiceの設定を変更する関数。
type ServiceOption func(*Service)

// WithClock は現在時刻の取得関数を設定する。
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// WithIDGenerator は投稿IDの生成関数を設定する。
func WithIDGenerator(newID func() string) ServiceOption {
	return func(s *Service) {
		s.newID = newID
	}
}

// NewService は新しいServiceを生成する。
func NewService(store Store, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:  store,
		logger: logger,
		// PostgreSQLの精度に合わせてマイクロ秒に丸める
		now:   func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create はcallerを作成者として投稿を作成する。
func (s *Service) Create(ctx context.Context, caller string, in NewPost) (Post, error) {
	if caller == "" {
		return Post{}, invalidArgument("呼び出し元のユーザーIDがありません")
	}
	if err := validateTitle(in.Title); err != nil {
		return Post{}, err
	}
	tags, err := normalizeTags(in.Tags)
	if err != nil {
		return Post{}, err
	}

	p := Post{
		ID:          s.newID(),
		Title:       in.Title,
		Description: in.Description,
		CreatorID:   caller,
		CreatedAt:   s.now(),
		IsPrivate:   in.IsPrivate,
		Tags:        tags,
	}
	if err := s.store.Insert(ctx, p); err != nil {
		return Post{}, fmt.Errorf("投稿の保存に失敗: %w", err)
	}
	s.logger.InfoContext(ctx, "投稿を作成しました", "post_id", p.ID, "creator_id", caller)
	return p, nil
}

// Get は投稿を取得する。存在しなければErrNotFound、非公開かつ作成者以外なら
// ErrPermissionDeniedを返す。存在の確認を公開範囲の確認より先に行う。
func (s *Service) Get(ctx context.Context, id, caller string) (Post, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return Post{}, err
	}
	if !p.VisibleTo(caller) {
		return Post{}, ErrPermissionDenied
	}
	return p, nil
}

// Update は作成者のみ投稿を部分更新できる。指定の無いフィールドは既存の値を保持し、
// updated_atは常に現在時刻にする。
func (s *Service) Update(ctx context.Context, id, caller string, u Update) (Post, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return Post{}, err
	}
	if !p.OwnedBy(caller) {
		return Post{}, ErrPermissionDenied
	}

	if u.Title != nil {
		if err := validateTitle(*u.Title); err != nil {
			return Post{}, err
		}
		p.Title = *u.Title
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.IsPrivate != nil {
		p.IsPrivate = *u.IsPrivate
	}
	if u.Tags != nil {
		tags, err := normalizeTags(*u.Tags)
		if err != nil {
			return Post{}, err
		}
		p.Tags = tags
	}
	now := s.now()
	p.UpdatedAt = &now

	if err := s.store.Save(ctx, p); err != nil {
		return Post{}, fmt.Errorf("投稿の更新に失敗: %w", err)
	}
	return p, nil
}

// Delete は作成者のみ投稿を削除できる。
func (s *Service) Delete(ctx context.Context, id, caller string) (bool, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return false, err
	}
	if !p.OwnedBy(caller) {
		return false, ErrPermissionDenied
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return false, fmt.Errorf("投稿の削除に失敗: %w", err)
	}
	s.logger.InfoContext(ctx, "投稿を削除しました", "post_id", id, "creator_id", caller)
	return true, nil
}

// List はcallerが閲覧できる投稿を作成順にページ単位で返す。
// Totalは公開範囲で絞り込んだ後の総数で、範囲外のページでは投稿が空になる。
func (s *Service) List(ctx context.Context, req PageRequest, caller string) (Page, error) {
	if req.Page < 1 {
		return Page{}, invalidArgument("page は1以上である必要があります")
	}
	if req.PageSize < 1 || req.PageSize > MaxPageSize {
		return Page{}, invalidArgument("page_size は1以上%d以下である必要があります", MaxPageSize)
	}

	posts, total, err := s.store.ListVisible(ctx, caller, pageOffset(req), req.PageSize)
	if err != nil {
		return Page{}, fmt.Errorf("投稿一覧の取得に失敗: %w", err)
	}
	if posts == nil {
		posts = []Post{}
	}
	return Page{Posts: posts, Total: total, Page: req.Page, PageSize: req.PageSize}, nil
}

// pageOffset はページの先頭位置を返す。
// 桁あふれするほど大きいページは、必ず末尾より後ろを指す位置に丸める。
func pageOffset(req PageRequest) int {
	limit := math.MaxInt - req.PageSize
	if req.Page-1 > limit/req.PageSize {
		return limit
	}
	return (req.Page - 1) * req.PageSize
}

// find はIDで投稿を取得する。
func (s *Service) find(ctx context.Context, id string) (Post, error) {
	if id == "" {
		return Post{}, invalidArgument("投稿IDがありません")
	}
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return Post{}, err
	}
	return p, nil
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return invalidArgument("title は必須です")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return invalidArgument("title は%d文字以内である必要があります", maxTitleLength)
	}
	return nil
}

// normalizeTags は空のタグを拒否し、nilを空スライスにする。
func normalizeTags(tags []string) ([]string, error) {
	if len(tags) > maxTags {
		return nil, invalidArgument("tags は%d個以内である必要があります", maxTags)
	}
	if slices.ContainsFunc(tags, func(tag string) bool { return strings.TrimSpace(tag) == "" }) {
		return nil, invalidArgument("空のタグは指定できません")
	}
	if tags == nil {
		return []string{}, nil
	}
	return slices.Clone(tags), nil
}
