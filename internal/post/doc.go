// Package post は投稿サービスの内部実装を提供する。
//
// 投稿の作成・取得・更新・削除・一覧をRPCで公開し、所有者と公開範囲に
// 基づく認可を行う。呼び出し元のユーザーIDはgatewayがRPCの
// エンベロープに設定したものだけを信頼し、パラメータからは受け取らない。
// 保存先はSQLite（既定）とPostgreSQLを切り替えられる。
package post
