package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/nao1215/postboard/pkg/codec"
)

// HandlerFunc は1つのRPCメソッドを処理する関数。
// paramsはメソッド固有のパラメータ（CBOR）で、呼び出し元ユーザーIDは
// CallerFrom(ctx) で取得する。
//
// 返した値はCBORにエンコードしてレスポンスのdataに格納する。
// *Error を返した場合はそのコードとメッセージを、それ以外のエラーは
// 詳細をログに記録した上でCodeInternalと汎用メッセージを返す。
type HandlerFunc func(ctx context.Context, params codec.RawMessage) (any, error)

const (
	// idleTimeout はリクエスト間で接続を保持する最大時間。
	// Clientのプール保持時間より長くしておく。
	idleTimeout = 2 * time.Minute
	// serverWriteTimeout はレスポンスの書き込みを待つ最大時間。
	serverWriteTimeout = 10 * time.Second
	// internalErrorMessage はCodeInternalのときにクライアントへ返す固定メッセージ。
	internalErrorMessage = "内部エラーが発生しました"
)

// Server はRPCリクエストを受け付けて登録済みハンドラにディスパッチする。
// 1つの接続で複数のリクエストを順番に処理する。
type Server struct {
	// handlers はメソッド名からハンドラへの対応表。
	handlers map[string]HandlerFunc
	// logger は構造化ロガー。
	logger *slog.Logger
	// activeConnections はグレースフルシャットダウンのために処理中の接続を追跡する。
	activeConnections sync.WaitGroup
}

// NewServer は新しいRPCサーバーを生成する。Serveの前にHandleでメソッドを登録する。
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// Handle はメソッド名にハンドラを登録する。同じメソッド名を二重に登録するとパニックする。
func (s *Server) Handle(method string, handler HandlerFunc) {
	if _, exists := s.handlers[method]; exists {
		panic(fmt.Sprintf("rpc.Server: メソッド %q が二重に登録されました", method))
	}
	s.handlers[method] = handler
}

// ListenAndServe はaddrでTCPをリッスンし、Serveを呼び出す。
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%s のリッスンに失敗: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve はlistenerで接続を受け付ける。ctxがキャンセルされるまでブロックし、
// キャンセル後は新規接続の受付を止め、処理中のリクエストの完了を待ってから返る。
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	defer listener.Close()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("RPCサーバーを起動しました", "addr", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("接続の受付に失敗", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.serveConn(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

// serveConn は1つの接続上のリクエストを順番に処理する。
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	// シャットダウン時はリクエスト待ちの読み込みを即座に解除する。
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
		// 期限の設定後に確認し、AfterFuncによる期限の上書きと競合しないようにする。
		if ctx.Err() != nil {
			return
		}

		var req request
		if err := readFrame(conn, &req); err != nil {
			if !isClosedConn(err) {
				s.logger.Debug("リクエストの読み込みに失敗", "remote", conn.RemoteAddr().String(), "error", err)
			}
			return
		}

		resp := s.dispatch(ctx, req)

		_ = conn.SetWriteDeadline(time.Now().Add(serverWriteTimeout))
		if err := writeFrame(conn, resp); err != nil {
			s.logger.Debug("レスポンスの書き込みに失敗", "method", req.Method, "error", err)
			return
		}
	}
}

// dispatch はリクエストをハンドラに渡し、結果をレスポンスに変換する。
func (s *Server) dispatch(ctx context.Context, req request) (resp response) {
	handler, exists := s.handlers[req.Method]
	if !exists {
		return response{Code: CodeInvalidArgument, Message: fmt.Sprintf("未知のメソッドです: %q", req.Method)}
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("[PANIC] RPCハンドラでパニックが発生", "method", req.Method, "panic", r)
			resp = response{Code: CodeInternal, Message: internalErrorMessage}
		}
	}()

	// シャットダウン中でも受け付け済みのリクエストは最後まで処理する。
	handlerCtx := WithCaller(context.WithoutCancel(ctx), req.Caller)
	result, err := handler(handlerCtx, req.Params)
	if err != nil {
		return s.errorResponse(req.Method, err)
	}

	if result == nil {
		return response{Code: CodeOK}
	}
	data, err := codec.Marshal(result)
	if err != nil {
		return s.errorResponse(req.Method, fmt.Errorf("結果のエンコードに失敗: %w", err))
	}
	return response{Code: CodeOK, Data: data}
}

// errorResponse はハンドラのエラーをレスポンスに変換する。
// *Error 以外のエラーは内部の詳細をログにのみ記録する。
func (s *Server) errorResponse(method string, err error) response {
	var rpcErr *Error
	if errors.As(err, &rpcErr) && rpcErr.Code != CodeInternal {
		s.logger.Debug("RPCが失敗", "method", method, "code", rpcErr.Code.String(), "message", rpcErr.Message)
		return response{Code: rpcErr.Code, Message: rpcErr.Message}
	}
	s.logger.Error("RPCで内部エラーが発生", "method", method, "error", err)
	return response{Code: CodeInternal, Message: internalErrorMessage}
}

// isClosedConn は接続の正常な終了（EOF・クローズ・アイドルタイムアウト）かどうかを判定する。
func isClosedConn(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrDeadlineExceeded)
}
