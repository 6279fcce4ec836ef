// identityサービスのエントリポイント。
// ユーザー登録・ログイン・プロフィールを扱い、セッショントークンを発行する。
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nao1215/postboard/internal/identity"
	"github.com/nao1215/postboard/pkg/config"
	"github.com/nao1215/postboard/pkg/logger"
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
		cfg.Identity.Port = *port
	}
	if err := cfg.Validate(config.ServiceIdentity); err != nil {
		return fmt.Errorf("設定が不正です: %w", err)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log := logger.New(os.Stderr, string(config.ServiceIdentity), level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg.Identity, log)
	if err != nil {
		return err
	}
	defer closeStore()

	authority, err := session.NewAuthority([]byte(cfg.Session.Secret),
		session.WithTTL(cfg.Session.TTL), session.WithIssuer(cfg.Session.Issuer))
	if err != nil {
		return err
	}

	server := identity.NewServer(store, authority, log, identity.WithSecureCookie(cfg.Identity.SecureCookie))
	httpServer := &http.Server{
		Addr:              ":" + cfg.Identity.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("identityサービスを起動します", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("identityサービスを停止します")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openStore はDatabaseURLが設定されていればPostgreSQL、無ければSQLiteのストアを開く。
func openStore(ctx context.Context, cfg config.IdentityConfig, log *slog.Logger) (identity.CredentialStore, func(), error) {
	if cfg.DatabaseURL != "" {
		store, err := identity.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		log.Info("PostgreSQLのストアを使用します")
		return store, store.Close, nil
	}

	store, err := identity.OpenSQLite(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	log.Info("SQLiteのストアを使用します", "path", cfg.SQLitePath)
	return store, func() { _ = store.Close() }, nil
}
