package post

import (
	"errors"
	"fmt"
	"time"
)

// Post は投稿。
type Post struct {
	// ID は投稿の一意識別子（UUID）。
	ID string `json:"id"`
	// Title はタイトル。
	Title string `json:"title"`
	// Description は本文。
	Description string `json:"description"`
	// CreatorID は作成者のユーザーID。作成後は変更されない。
	CreatorID string `json:"creator_id"`
	// CreatedAt は作成日時。
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt は最終更新日時。一度も更新されていなければnil。
	UpdatedAt *time.Time `json:"updated_at"`
	// IsPrivate が真なら作成者以外は閲覧できない。
	IsPrivate bool `json:"is_private"`
	// Tags は順序付きのタグ。
	Tags []string `json:"tags"`
}

// NewPost は投稿の作成内容。
type NewPost struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	IsPrivate   bool     `json:"is_private"`
	Tags        []string `json:"tags"`
}

// Update は投稿の部分更新の内容。nilのフィールドは既存の値を保持する。
type Update struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	IsPrivate   *bool     `json:"is_private"`
	Tags        *[]string `json:"tags"`
}

// PageRequest は一覧のページ指定。Pageは1始まり。
type PageRequest struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// Page は一覧の1ページ分の結果。
type Page struct {
	// Posts はこのページの投稿。作成順。
	Posts []Post `json:"posts"`
	// Total は呼び出し元が閲覧できる投稿の総数。
	Total int `json:"total"`
	// Page はページ番号。
	Page int `json:"page"`
	// PageSize は1ページあたりの件数。
	PageSize int `json:"page_size"`
}

// VisibleTo はcallerがこの投稿を閲覧できるかを返す。
func (p Post) VisibleTo(caller string) bool {
	return !p.IsPrivate || p.CreatorID == caller
}

// OwnedBy はcallerがこの投稿の作成者かを返す。
func (p Post) OwnedBy(caller string) bool {
	return p.CreatorID == caller
}

var (
	// ErrNotFound は投稿が存在しないことを表す。
	ErrNotFound = errors.New("投稿が見つかりません")
	// ErrPermissionDenied は呼び出し元に操作の権限が無いことを表す。
	ErrPermissionDenied = errors.New("この投稿を操作する権限がありません")
	// ErrInvalidArgument は入力が不正であることを表す。
	ErrInvalidArgument = errors.New("入力が不正です")
)

// invalidArgument はErrInvalidArgumentをラップしたエラーを返す。
func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
