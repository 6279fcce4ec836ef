// Package gateway はクライアントが唯一アクセスするエッジのHTTPサービスを提供する。
//
// /auth と /users へのリクエストはidentityサービスへそのまま転送する。
// /posts へのリクエストはセッションを検証してから、検証済みのユーザーIDを
// 呼び出し元としてRPCで投稿サービスに渡す。認可の判断は投稿サービスが行い、
// gatewayはRPCのステータスコードをHTTPのステータスコードに変換するだけである。
package gateway
