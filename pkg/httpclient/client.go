package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// DefaultTimeout はリクエスト1件あたりの既定のタイムアウト。
const DefaultTimeout = 5 * time.Second

var (
	// ErrUnavailable は接続先サービスに接続できないことを表す。
	ErrUnavailable = errors.New("接続先サービスに接続できません")
	// ErrTimeout は接続先サービスの応答が期限内に返らなかったことを表す。
	ErrTimeout = errors.New("接続先サービスの応答がタイムアウトしました")
)

// StatusError は接続先サービスが2xx以外のステータスを返したことを表す。
type StatusError struct {
	// StatusCode はレスポンスのHTTPステータスコード。
	StatusCode int
	// Body はレスポンスボディ。
	Body []byte
}

// Error はエラーメッセージを返す。
func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTPエラー: status=%d, body=%s", e.StatusCode, string(e.Body))
}

// Client はサービス間通信用のHTTPクライアント。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は接続先サービスのベースURL。
	baseURL string
}

// Option はClientの設定を変更する関数。
type Option func(*Client)

// WithTimeout はリクエスト1件あたりのタイムアウトを設定する。
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithTransport は内部で使用するRoundTripperを差し替える。
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient.Transport = rt
	}
}

// New は新しいサービス間通信用HTTPクライアントを生成する。
// baseURLには接続先サービスのベースURL（例: "http://identity:8081"）を指定する。
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			// リダイレクトは追わずにそのまま呼び出し元へ返す
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		baseURL: baseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestOption はリクエストを送信前に変更する関数。
type RequestOption func(*http.Request)

// WithHeader はリクエストヘッダーを設定する。値が空なら何もしない。
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) {
		if value != "" {
			r.Header.Set(key, value)
		}
	}
}

// GetJSON は指定パスにGETリクエストを送信する。
// レスポンスボディをresultにデシリアライズする。2xx以外は *StatusError を返す。
func (c *Client) GetJSON(ctx context.Context, path string, result any, opts ...RequestOption) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &StatusError{StatusCode: resp.StatusCode, Body: respBody}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("レスポンスボディのデシリアライズに失敗: %w", err)
		}
	}
	return nil
}

// Forward はリクエストをそのまま接続先サービスへ送信し、レスポンスを返す。
// ステータスコードに関わらずレスポンスを返すため、呼び出し側でBodyを閉じること。
func (c *Client) Forward(ctx context.Context, method, path, rawQuery string, header http.Header, body io.Reader) (*http.Response, error) {
	url := c.baseURL + path
	if rawQuery != "" {
		url += "?" + rawQuery
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	return c.do(ctx, req)
}

// do はリクエストを送信し、失敗を ErrTimeout か ErrUnavailable に分類する。
func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err == nil {
		return resp, nil
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		return nil, fmt.Errorf("HTTPリクエストがキャンセルされました: %w", err)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
}
