// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// セッショントークンによる認証、パニックリカバリ、CORS設定など、
// gatewayとidentityの両サービスで共通して使用するミドルウェアを含む。
package middleware
