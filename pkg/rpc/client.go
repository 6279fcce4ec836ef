package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/nao1215/postboard/pkg/codec"
)

const (
	// dialTimeout は接続確立を待つ最大時間。呼び出し全体の期限とは別に適用する。
	dialTimeout = 5 * time.Second
	// defaultCallTimeout はコンテキストに期限が無い場合の呼び出しの期限。
	defaultCallTimeout = 30 * time.Second
	// defaultMaxIdle はプールに保持するアイドル接続数の既定値。
	defaultMaxIdle = 16
	// idleKeepAlive はアイドル接続を再利用してよい最大時間。
	// サーバーのidleTimeoutより短くし、サーバーが閉じた接続を拾わないようにする。
	idleKeepAlive = 90 * time.Second
)

// Client はRPCサーバーへのクライアント。複数のゴルーチンから同時に使用できる。
// プロセス内で1つ生成して共有し、終了時にCloseする。
type Client struct {
	// addr は接続先サーバーのアドレス（host:port）。
	addr string
	// dialer はTCP接続の確立に使用する。
	dialer net.Dialer
	// maxIdle はプールに保持するアイドル接続の最大数。
	maxIdle int

	mu     sync.Mutex
	idle   []idleConn
	closed bool
}

// idleConn はプール内のアイドル接続。
type idleConn struct {
	conn     net.Conn
	returned time.Time
}

// ClientOption はClientの設定を変更する関数。
type ClientOption func(*Client)

// WithMaxIdle はプールに保持するアイドル接続の最大数を設定する。
func WithMaxIdle(n int) ClientOption {
	return func(c *Client) {
		if n >= 0 {
			c.maxIdle = n
		}
	}
}

// NewClient はaddrのRPCサーバーに接続するクライアントを生成する。
// 接続は最初の呼び出し時に確立される。
func NewClient(addr string, opts ...ClientOption) *Client {
	c := &Client{
		addr:    addr,
		dialer:  net.Dialer{Timeout: dialTimeout},
		maxIdle: defaultMaxIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call はメソッドを呼び出し、成功時のdataをresultにデコードする。
// 呼び出し元ユーザーIDはWithCallerでctxに設定したものを送信する。
//
// サーバーがCodeOK以外で応答した場合は *Error を返す。
// 接続できない・接続が失われた場合は ErrUnavailable、
// 期限を超過した場合は ErrDeadlineExceeded をラップしたエラーを返す。
// 自動リトライは行わない。
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	var raw codec.RawMessage
	if params != nil {
		encoded, err := codec.Marshal(params)
		if err != nil {
			return fmt.Errorf("%s のパラメータのエンコードに失敗: %w", method, err)
		}
		raw = encoded
	}

	resp, err := c.roundTrip(ctx, request{
		Method: method,
		Caller: CallerFrom(ctx),
		Params: raw,
	})
	if err != nil {
		return fmt.Errorf("%s の呼び出しに失敗: %w", method, err)
	}

	if resp.Code != CodeOK {
		return &Error{Code: resp.Code, Message: resp.Message}
	}
	if result != nil && len(resp.Data) > 0 {
		if err := codec.Unmarshal(resp.Data, result); err != nil {
			return fmt.Errorf("%s のレスポンスのデコードに失敗: %w", method, err)
		}
	}
	return nil
}

// roundTrip はプールから接続を取得してリクエストを送信し、レスポンスを受信する。
// 入出力でエラーが発生した接続はプールに戻さず破棄する。
func (c *Client) roundTrip(ctx context.Context, req request) (*response, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify(ctx, err)
	}

	conn, err := c.acquire(ctx)
	if err != nil {
		return nil, classify(ctx, err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultCallTimeout)
	}
	_ = conn.SetDeadline(deadline)

	// キャンセル時は進行中の入出力を即座に中断させる。
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})

	var resp response
	err = writeFrame(conn, req)
	if err == nil {
		err = readFrame(conn, &resp)
	}

	interrupted := !stop()
	if err != nil {
		conn.Close()
		return nil, classify(ctx, err)
	}

	if interrupted {
		// 期限を書き換えられた接続は再利用しない。
		conn.Close()
	} else {
		_ = conn.SetDeadline(time.Time{})
		c.release(conn)
	}
	return &resp, nil
}

// acquire はアイドル接続を取り出す。無ければ新たに接続する。
// 期限切れの接続とサーバーが閉じた接続は取り出さずに破棄する。
func (c *Client) acquire(ctx context.Context) (net.Conn, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	for len(c.idle) > 0 {
		last := c.idle[len(c.idle)-1]
		c.idle = c.idle[:len(c.idle)-1]
		if time.Since(last.returned) >= idleKeepAlive {
			last.conn.Close()
			continue
		}
		// サーバーの再起動などで相手が閉じた接続は破棄して次を試す。
		if err := checkIdleConn(last.conn); err != nil {
			last.conn.Close()
			continue
		}
		c.mu.Unlock()
		return last.conn, nil
	}
	c.mu.Unlock()

	return c.dialer.DialContext(ctx, "tcp", c.addr)
}

// release は接続をプールに戻す。プールが満杯、またはクローズ済みなら接続を閉じる。
func (c *Client) release(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || len(c.idle) >= c.maxIdle {
		conn.Close()
		return
	}
	c.idle = append(c.idle, idleConn{conn: conn, returned: time.Now()})
}

// Close はプール内のアイドル接続をすべて閉じる。以降の呼び出しは ErrClientClosed を返す。
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for _, ic := range c.idle {
		ic.conn.Close()
	}
	c.idle = nil
	return nil
}

// classify は入出力エラーを ErrDeadlineExceeded・ErrUnavailable などに分類する。
func classify(ctx context.Context, err error) error {
	if errors.Is(err, ErrClientClosed) {
		return err
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%w: %w", context.Canceled, err)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrDeadlineExceeded, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrDeadlineExceeded, err)
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
