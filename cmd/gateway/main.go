// gatewayサービスのエントリポイント。
// クライアントが唯一アクセスするサービスで、/auth と /users はidentityサービスへ転送し、
// /posts はセッションを検証してからRPCで投稿サービスを呼び出す。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nao1215/postboard/internal/gateway"
	"github.com/nao1215/postboard/internal/post"
	"github.com/nao1215/postboard/pkg/config"
	"github.com/nao1215/postboard/pkg/httpclient"
	"github.com/nao1215/postboard/pkg/logger"
	"github.com/nao1215/postboard/pkg/middleware"
	"github.com/nao1215/postboard/pkg/rpc"
	"github.com/nao1215/postboard/pkg/session"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

// shutdownTimeout は処理中のリクエストの完了を待つ最大時間。
const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := pflag.String("config", "", "YAML設定ファイルのパス")
	port := pflag.String("port", "", "HTTPのリッスンポート（設定より優先）")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *port != "" {
		cfg.Gateway.Port = *port
	}
	if err := cfg.Validate(config.ServiceGateway); err != nil {
		return fmt.Errorf("設定が不正です: %w", err)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log := logger.New(os.Stderr, string(config.ServiceGateway), level)

	identity := httpclient.New(cfg.Gateway.IdentityURL, httpclient.WithTimeout(cfg.Gateway.IdentityTimeout))

	var auth middleware.Authenticator
	switch cfg.Gateway.AuthMode {
	case config.AuthModeRemote:
		auth = gateway.NewRemoteAuthenticator(identity)
	default:
		authority, err := session.NewAuthority([]byte(cfg.Session.Secret),
			session.WithTTL(cfg.Session.TTL), session.WithIssuer(cfg.Session.Issuer))
		if err != nil {
			return err
		}
		auth = authority
	}

	// 投稿サービスへのクライアントはプロセスで1つだけ生成し、全リクエストで共有する。
	rpcClient := rpc.NewClient(cfg.Gateway.PostRPCAddr)
	defer rpcClient.Close()

	server := gateway.NewServer(identity, post.NewClient(rpcClient), auth, log,
		gateway.WithRPCTimeout(cfg.Gateway.RPCTimeout),
		gateway.WithStrictInternalErrors(cfg.Gateway.StrictInternalErrors),
		gateway.WithAllowedOrigins(cfg.Gateway.AllowedOrigins),
	)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Gateway.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("gatewayサービスを起動します", "addr", httpServer.Addr, "auth_mode", string(cfg.Gateway.AuthMode), "post_rpc_addr", cfg.Gateway.PostRPCAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("gatewayサービスを停止します")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
