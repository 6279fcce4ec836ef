package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-test/deep"
)

// envMap はテスト用の環境変数。
type envMap map[string]string

func (m envMap) get(key string) string { return m[key] }

// writeConfig は一時ディレクトリにYAMLファイルを書き出す。
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "postboard.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("設定ファイルの書き込みに失敗: %v", err)
	}
	return path
}

// TestLoad は設定の読み込み順序を検証する。
func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("ファイルも環境変数も無い場合は既定値になること", func(t *testing.T) {
		t.Parallel()

		cfg, err := load("", envMap{}.get)
		if err != nil {
			t.Fatalf("load()でエラーが発生: %v", err)
		}
		if diff := deep.Equal(cfg, Default()); diff != nil {
			t.Error(diff)
		}
	})

	t.Run("YAMLファイルで既定値を上書きできること", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, `
log_level: debug
session:
  secret: file-secret
  ttl: 15m
gateway:
  auth_mode: remote
  rpc_timeout: 2s
  allowed_origins: ["https://postboard.example"]
post:
  database_url: postgres://localhost/posts
`)
		cfg, err := load(path, envMap{}.get)
		if err != nil {
			t.Fatalf("load()でエラーが発生: %v", err)
		}

		want := Default()
		want.LogLevel = "debug"
		want.Session.Secret = "file-secret"
		want.Session.TTL = 15 * time.Minute
		want.Gateway.AuthMode = AuthModeRemote
		want.Gateway.RPCTimeout = 2 * time.Second
		want.Gateway.AllowedOrigins = []string{"https://postboard.example"}
		want.Post.DatabaseURL = "postgres://localhost/posts"
		if diff := deep.Equal(cfg, want); diff != nil {
			t.Error(diff)
		}
	})

	t.Run("環境変数はファイルより優先されること", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, "session:\n  secret: file-secret\n")
		env := envMap{
			"SESSION_SECRET":         "env-secret",
			"SESSION_TTL":            "1h",
			"POST_RPC_ADDR":          "post:9090",
			"STRICT_INTERNAL_ERRORS": "true",
			"FRONTEND_URL":           "http://a.example, http://b.example",
		}
		cfg, err := load(path, env.get)
		if err != nil {
			t.Fatalf("load()でエラーが発生: %v", err)
		}

		if cfg.Session.Secret != "env-secret" {
			t.Errorf("Secret = %q, want %q", cfg.Session.Secret, "env-secret")
		}
		if cfg.Session.TTL != time.Hour {
			t.Errorf("TTL = %v, want 1h", cfg.Session.TTL)
		}
		if cfg.Gateway.PostRPCAddr != "post:9090" {
			t.Errorf("PostRPCAddr = %q, want %q", cfg.Gateway.PostRPCAddr, "post:9090")
		}
		if !cfg.Gateway.StrictInternalErrors {
			t.Error("StrictInternalErrors = false, want true")
		}
		if diff := deep.Equal(cfg.Gateway.AllowedOrigins, []string{"http://a.example", "http://b.example"}); diff != nil {
			t.Error(diff)
		}
	})

	t.Run("POSTBOARD_CONFIGでファイルを指定できること", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, "identity:\n  port: \"9999\"\n")
		cfg, err := load("", envMap{"POSTBOARD_CONFIG": path}.get)
		if err != nil {
			t.Fatalf("load()でエラーが発生: %v", err)
		}
		if cfg.Identity.Port != "9999" {
			t.Errorf("Port = %q, want %q", cfg.Identity.Port, "9999")
		}
	})

	t.Run("未知のキーはエラーになること", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, "gateway:\n  auth_mod: local\n")
		if _, err := load(path, envMap{}.get); err == nil {
			t.Fatal("load()がエラーを返すべきだが、nilが返った")
		}
	})

	t.Run("存在しないファイルはエラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := load(filepath.Join(t.TempDir(), "missing.yaml"), envMap{}.get); err == nil {
			t.Fatal("load()がエラーを返すべきだが、nilが返った")
		}
	})

	t.Run("不正な期間の環境変数はエラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := load("", envMap{"RPC_TIMEOUT": "soon"}.get); err == nil {
			t.Fatal("load()がエラーを返すべきだが、nilが返った")
		}
	})
}

// TestValidate はサービスごとの設定検証を検証する。
func TestValidate(t *testing.T) {
	t.Parallel()

	withSecret := func() *Config {
		cfg := Default()
		cfg.Session.Secret = "secret"
		return cfg
	}

	tests := []struct {
		name    string
		cfg     func() *Config
		service Service
		wantErr bool
	}{
		{name: "gatewayのローカル認証で鍵があれば有効", cfg: withSecret, service: ServiceGateway},
		{name: "gatewayのローカル認証で鍵が無ければ無効", cfg: Default, service: ServiceGateway, wantErr: true},
		{
			name: "gatewayのリモート認証では鍵が無くても有効",
			cfg: func() *Config {
				cfg := Default()
				cfg.Gateway.AuthMode = AuthModeRemote
				return cfg
			},
			service: ServiceGateway,
		},
		{
			name: "未知の認証モードは無効",
			cfg: func() *Config {
				cfg := withSecret()
				cfg.Gateway.AuthMode = "oauth"
				return cfg
			},
			service: ServiceGateway,
			wantErr: true,
		},
		{name: "identityは鍵が必須", cfg: Default, service: ServiceIdentity, wantErr: true},
		{name: "identityは鍵があれば有効", cfg: withSecret, service: ServiceIdentity},
		{name: "postは鍵が無くても有効", cfg: Default, service: ServicePost},
		{
			name: "postはストアの指定が必須",
			cfg: func() *Config {
				cfg := Default()
				cfg.Post.SQLitePath = ""
				return cfg
			},
			service: ServicePost,
			wantErr: true,
		},
		{name: "未知のサービスは無効", cfg: withSecret, service: "album", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.cfg().Validate(tt.service)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
