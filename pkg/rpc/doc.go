// Package rpc はサービス間のリクエスト/レスポンス型RPCチャネルを提供する。
//
// HTTPとは別のTCP接続上で、長さプレフィックス付きのCBORフレームを送受信する。
// リクエストはメソッド名・呼び出し元ユーザーID・パラメータを運び、
// レスポンスは小さな固定のステータスコード（Code）で成否を表す。
//
// 呼び出し元ユーザーIDはエンベロープのメタデータとして運ばれ、
// パラメータとは分離される。Gatewayが独立に認証した後にWithCallerで設定する。
//
// Clientは長寿命でゴルーチンセーフであり、接続をプールして再利用する。
// リクエストごとにClientを生成してはならない。
package rpc
