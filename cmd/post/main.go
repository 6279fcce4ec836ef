// 投稿サービスのエントリポイント。
// 投稿のCRUDと可視性で絞り込んだ一覧をRPCで提供する。
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/postboard/internal/post"
	"github.com/nao1215/postboard/pkg/config"
	"github.com/nao1215/postboard/pkg/logger"
	"github.com/nao1215/postboard/pkg/rpc"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := pflag.String("config", "", "YAML設定ファイルのパス")
	listen := pflag.String("listen", "", "RPCのリッスンアドレス（設定より優先）")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Post.ListenAddr = *listen
	}
	if err := cfg.Validate(config.ServicePost); err != nil {
		return fmt.Errorf("設定が不正です: %w", err)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log := logger.New(os.Stderr, string(config.ServicePost), level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Post, log)
	if err != nil {
		return err
	}
	defer store.Close()

	server := rpc.NewServer(log)
	post.Register(server, post.NewService(store, log))

	// ctxがキャンセルされると受付を止め、処理中のリクエストの完了を待って返る。
	if err := server.ListenAndServe(ctx, cfg.Post.ListenAddr); err != nil {
		return err
	}
	log.Info("投稿サービスを停止しました")
	return nil
}

// closableStore は終了時に閉じるStore。
type closableStore interface {
	post.Store
	Close() error
}

// openStore はDatabaseURLが設定されていればPostgreSQL、無ければSQLiteのストアを開く。
func openStore(ctx context.Context, cfg config.PostConfig, log *slog.Logger) (closableStore, error) {
	if cfg.DatabaseURL != "" {
		store, err := post.OpenPostgres(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, err
		}
		log.Info("PostgreSQLのストアを使用します")
		return store, nil
	}

	store, err := post.OpenSQLite(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	log.Info("SQLiteのストアを使用します", "path", cfg.SQLitePath)
	return store, nil
}
