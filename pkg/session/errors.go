package session

import (
	"errors"
	"fmt"
)

// ErrUnauthenticated は認証に失敗したことを表す。
// 以下のエラーはすべて errors.Is(err, ErrUnauthenticated) を満たす。
var ErrUnauthenticated = errors.New("認証されていません")

var (
	// ErrMalformed はトークンの形式・署名・アルゴリズムが不正であることを表す。
	ErrMalformed = fmt.Errorf("%w: トークンが不正です", ErrUnauthenticated)
	// ErrExpired はトークンの有効期限が切れていることを表す。
	ErrExpired = fmt.Errorf("%w: トークンの有効期限が切れています", ErrUnauthenticated)
	// ErrMissingSubject はトークンにユーザーIDが含まれていないことを表す。
	ErrMissingSubject = fmt.Errorf("%w: トークンにユーザーIDがありません", ErrUnauthenticated)
)

// Reason は認証失敗の理由をログ用のラベルに変換する。
// クライアントへのレスポンスには含めない。
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrMissingSubject):
		return "missing_subject"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	default:
		return "error"
	}
}
