package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/postboard/pkg/httpclient"
	"github.com/nao1215/postboard/pkg/session"
)

// SessionCookieName はセッショントークンを運ぶCookieの名前。
const SessionCookieName = "users_access_token"

// contextKeyUserID はGinコンテキストに認証済みユーザーIDを格納するキー。
const contextKeyUserID = "user_id"

// Authenticator はセッショントークンを検証してユーザーIDを返す。
// session.Authority（ローカル検証）と、identityサービスへの委譲の両方が実装する。
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (userID string, err error)
}

// AuthenticatorFunc は関数をAuthenticatorとして扱うためのアダプタ。
type AuthenticatorFunc func(ctx context.Context, token string) (string, error)

// Authenticate はf(ctx, token)を呼び出す。
func (f AuthenticatorFunc) Authenticate(ctx context.Context, token string) (string, error) {
	return f(ctx, token)
}

// TokenFromRequest はリクエストからセッショントークンを取り出す。
// Cookieを優先し、無ければ Authorization: Bearer ヘッダーを使う。
func TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); found {
		return strings.TrimSpace(token)
	}
	return ""
}

// SessionAuth はセッショントークンを検証するGinミドルウェアを返す。
// 検証に成功した場合、コンテキストに "user_id" を設定する。
// 失敗理由はログにのみ記録し、レスポンスには含めない。
func SessionAuth(auth Authenticator, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		token := TokenFromRequest(c.Request)
		if token == "" {
			logger.Info("認証に失敗", "path", c.FullPath(), "reason", "missing_token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "認証が必要です"})
			return
		}

		userID, err := auth.Authenticate(c.Request.Context(), token)
		if err == nil && userID == "" {
			err = session.ErrMissingSubject
		}
		if err != nil {
			status, message := authErrorStatus(err)
			logger.Info("認証に失敗", "path", c.FullPath(), "reason", authFailureReason(err), "status", status)
			c.AbortWithStatusJSON(status, gin.H{"error": message})
			return
		}

		c.Set(contextKeyUserID, userID)
		c.Next()
	}
}

// GetUserID はGinコンテキストからユーザーIDを取得する。
// SessionAuthミドルウェアが事前に適用されている必要がある。
func GetUserID(c *gin.Context) string {
	return c.GetString(contextKeyUserID)
}

// authErrorStatus は認証エラーをHTTPステータスとメッセージに変換する。
func authErrorStatus(err error) (int, string) {
	var statusErr *httpclient.StatusError
	switch {
	case errors.Is(err, session.ErrUnauthenticated):
		return http.StatusUnauthorized, "認証が必要です"
	case errors.Is(err, httpclient.ErrTimeout):
		return http.StatusGatewayTimeout, "認証サービスの応答がタイムアウトしました"
	case errors.Is(err, httpclient.ErrUnavailable):
		return http.StatusServiceUnavailable, "認証サービスが利用できません"
	case errors.As(err, &statusErr):
		if statusErr.StatusCode == http.StatusUnauthorized {
			return http.StatusUnauthorized, "認証が必要です"
		}
		return statusErr.StatusCode, http.StatusText(statusErr.StatusCode)
	default:
		return http.StatusUnauthorized, "認証が必要です"
	}
}

// authFailureReason はログ用の失敗理由を返す。
func authFailureReason(err error) string {
	var statusErr *httpclient.StatusError
	switch {
	case errors.Is(err, session.ErrUnauthenticated):
		return session.Reason(err)
	case errors.Is(err, httpclient.ErrTimeout):
		return "identity_timeout"
	case errors.Is(err, httpclient.ErrUnavailable):
		return "identity_unavailable"
	case errors.As(err, &statusErr):
		return "identity_rejected"
	default:
		return "error"
	}
}
