package post

import (
	"context"

	"github.com/nao1215/postboard/pkg/rpc"
)

// Client は投稿サービスの型付きRPCクライアント。
// 1つのrpc.Clientをプロセス内の全リクエストで共有する。
type Client struct {
	rpc *rpc.Client
}

// NewClient はrpc.Clientを包んだClientを生成する。
func NewClient(c *rpc.Client) *Client {
	return &Client{rpc: c}
}

// Create はcallerを作成者として投稿を作成する。
func (c *Client) Create(ctx context.Context, caller string, in NewPost) (Post, error) {
	var p Post
	err := c.rpc.Call(rpc.WithCaller(ctx, caller), MethodCreate, in, &p)
	return p, err
}

// Get は投稿を取得する。
func (c *Client) Get(ctx context.Context, id, caller string) (Post, error) {
	var p Post
	err := c.rpc.Call(rpc.WithCaller(ctx, caller), MethodGet, idParams{ID: id}, &p)
	return p, err
}

// Update は投稿を部分更新する。
func (c *Client) Update(ctx context.Context, id, caller string, u Update) (Post, error) {
	var p Post
	err := c.rpc.Call(rpc.WithCaller(ctx, caller), MethodUpdate, updateParams{ID: id, Update: u}, &p)
	return p, err
}

// Delete は投稿を削除する。
func (c *Client) Delete(ctx context.Context, id, caller string) (bool, error) {
	var result deleteResult
	err := c.rpc.Call(rpc.WithCaller(ctx, caller), MethodDelete, idParams{ID: id}, &result)
	return result.Success, err
}

// List はcallerが閲覧できる投稿の一覧を取得する。
func (c *Client) List(ctx context.Context, req PageRequest, caller string) (Page, error) {
	var page Page
	err := c.rpc.Call(rpc.WithCaller(ctx, caller), MethodList, req, &page)
	return page, err
}
