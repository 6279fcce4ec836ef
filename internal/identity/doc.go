// Package identity はユーザー登録・ログイン・プロフィールを扱うidentityサービスを提供する。
//
// ログインに成功するとpkg/sessionで署名したセッショントークンを発行し、
// users_access_token Cookieに設定する。gatewayのリモート認証モードでは
// GET /auth/verify でトークンを検証する。
//
// 認証情報はCredentialStoreに保存する。SQLite（既定）とPostgreSQLの実装がある。
package identity
