package gateway

import (
	"errors"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/postboard/pkg/httpclient"
)

// forwardedRequestHeaders はidentityサービスへ転送するリクエストヘッダー。
// X-User-ID などクライアントが任意に付けたヘッダーは転送しない。
var forwardedRequestHeaders = []string{
	"Content-Type",
	"Accept",
	"Cookie",
	"Authorization",
	"User-Agent",
}

// hopByHopHeaders は転送区間だけで意味を持ち、クライアントへ返さないレスポンスヘッダー。
// Content-Lengthは本文の書き込み時に設定し直す。
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Content-Length",
}

// handleProxy はリクエストを同じパスでidentityサービスへ転送するハンドラを返す。
// レスポンスはホップ間ヘッダーを除き、ステータス、ヘッダー、本文をそのまま返す。
func (s *Server) handleProxy() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := make(http.Header)
		for _, key := range forwardedRequestHeaders {
			for _, v := range c.Request.Header.Values(key) {
				header.Add(key, v)
			}
		}

		resp, err := s.identity.Forward(c.Request.Context(), c.Request.Method,
			c.Request.URL.Path, c.Request.URL.RawQuery, header, c.Request.Body)
		if err != nil {
			status, message := proxyErrorStatus(err)
			s.logger.Warn("identityサービスへの転送に失敗", "path", c.Request.URL.Path, "status", status, "error", err)
			c.JSON(status, gin.H{"error": message})
			return
		}
		defer resp.Body.Close()

		copyResponseHeader(c.Writer.Header(), resp.Header)
		c.DataFromReader(resp.StatusCode, resp.ContentLength, resp.Header.Get("Content-Type"), resp.Body, nil)
	}
}

// copyResponseHeader はホップ間ヘッダーとConnectionで指定されたヘッダーを除いてsrcをdstへ追加する。
func copyResponseHeader(dst, src http.Header) {
	skip := make(map[string]bool, len(hopByHopHeaders))
	for _, key := range hopByHopHeaders {
		skip[key] = true
	}
	for _, value := range src.Values("Connection") {
		for _, key := range strings.Split(value, ",") {
			if key = textproto.TrimString(key); key != "" {
				skip[http.CanonicalHeaderKey(key)] = true
			}
		}
	}

	for key, values := range src {
		if skip[key] {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

// proxyErrorStatus は転送の失敗をHTTPステータスと固定メッセージに変換する。
func proxyErrorStatus(err error) (int, string) {
	if errors.Is(err, httpclient.ErrTimeout) {
		return http.StatusGatewayTimeout, "identityサービスの応答がタイムアウトしました"
	}
	return http.StatusServiceUnavailable, "identityサービスが利用できません"
}
