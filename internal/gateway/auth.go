package gateway

import (
	"context"
	"net/http"

	"github.com/nao1215/postboard/pkg/httpclient"
	"github.com/nao1215/postboard/pkg/middleware"
)

// verifyPath はidentityサービスのセッション検証エンドポイント。
const verifyPath = "/auth/verify"

// RemoteAuthenticator はidentityサービスにセッションの検証を委譲する。
type RemoteAuthenticator struct {
	client *httpclient.Client
}

// NewRemoteAuthenticator はidentityサービスで検証するAuthenticatorを生成する。
// 呼び出しの期限はclientのタイムアウトに従う。
func NewRemoteAuthenticator(client *httpclient.Client) *RemoteAuthenticator {
	return &RemoteAuthenticator{client: client}
}

// Authenticate はトークンをCookieに載せて GET /auth/verify を呼び出す。
// identityサービスに接続できない場合は httpclient.ErrUnavailable、
// タイムアウトは httpclient.ErrTimeout、2xx以外は *httpclient.StatusError を返す。
func (a *RemoteAuthenticator) Authenticate(ctx context.Context, token string) (string, error) {
	cookie := &http.Cookie{Name: middleware.SessionCookieName, Value: token}

	var result struct {
		UserID string `json:"user_id"`
	}
	if err := a.client.GetJSON(ctx, verifyPath, &result, httpclient.WithHeader("Cookie", cookie.String())); err != nil {
		return "", err
	}
	return result.UserID, nil
}
