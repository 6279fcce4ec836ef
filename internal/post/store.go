package post

import "context"

// Store は投稿の保存先。1件単位の読み書きの原子性を前提とする。
type Store interface {
	// Insert は新しい投稿を保存する。
	Insert(ctx context.Context, p Post) error
	// Get はIDで投稿を取得する。存在しなければErrNotFoundを返す。
	Get(ctx context.Context, id string) (Post, error)
	// Save は既存の投稿を上書きする。存在しなければErrNotFoundを返す。
	Save(ctx context.Context, p Post) error
	// Delete は投稿を削除する。存在しなければErrNotFoundを返す。
	Delete(ctx context.Context, id string) error
	// ListVisible は公開投稿とcallerの投稿を作成順に返す。
	// 2つ目の戻り値は絞り込み後の総数。
	ListVisible(ctx context.Context, caller string, offset, limit int) ([]Post, int, error)
}
