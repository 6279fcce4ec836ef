// Package httpclient はサービス間のHTTP通信を行うクライアントを提供する。
//
// gatewayがidentityサービスへリクエストを転送する際と、
// セッションの検証を委譲する際に使用する。接続失敗とタイムアウトを
// 区別したエラーを返し、呼び出し側で503と504に対応付けられるようにする。
package httpclient
