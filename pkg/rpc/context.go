package rpc

import "context"

// contextKey はコンテキストキーの型。
type contextKey string

// contextKeyCaller はコンテキストに呼び出し元ユーザーIDを格納するためのキー。
const contextKeyCaller contextKey = "caller"

// WithCaller はコンテキストに呼び出し元ユーザーIDを設定する。
// Clientはこの値をリクエストのエンベロープに付与し、
// サーバーはハンドラに渡すコンテキストへ同じ値を設定する。
func WithCaller(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKeyCaller, userID)
}

// CallerFrom はコンテキストから呼び出し元ユーザーIDを取得する。
// 設定されていない場合は空文字列を返す。
func CallerFrom(ctx context.Context) string {
	caller, _ := ctx.Value(contextKeyCaller).(string)
	return caller
}
