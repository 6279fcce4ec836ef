// Package session はセッショントークンの発行と検証を行う。
//
// トークンはHS256で署名したJWTで、クレーム "usr" にユーザーIDを持つ。
// 署名鍵は呼び出し側から明示的に渡し、ローテーション時は直前の鍵も
// 検証用に受け付ける。
package session
