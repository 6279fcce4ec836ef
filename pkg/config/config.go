// Package config は各サービスの設定を読み込む。
//
// 設定は既定値、YAMLファイル、環境変数の順に適用する。
// YAMLファイルは --config フラグか POSTBOARD_CONFIG 環境変数で指定し、
// 指定が無ければ既定値と環境変数のみを使う。
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Service は設定を検証する対象のサービス。
type Service string

const (
	// ServiceGateway はエッジのgatewayサービス。
	ServiceGateway Service = "gateway"
	// ServiceIdentity はidentityサービス。
	ServiceIdentity Service = "identity"
	// ServicePost は投稿サービス。
	ServicePost Service = "post"
)

// AuthMode はgatewayがセッションを検証する方法。
type AuthMode string

const (
	// AuthModeLocal は共有の署名鍵でgateway自身が検証する。
	AuthModeLocal AuthMode = "local"
	// AuthModeRemote はidentityサービスの /auth/verify に検証を委譲する。
	AuthModeRemote AuthMode = "remote"
)

// Config は全サービスの設定。
type Config struct {
	// LogLevel はログレベル（debug, info, warn, error）。
	LogLevel string `yaml:"log_level"`
	// Session はセッショントークンの設定。
	Session SessionConfig `yaml:"session"`
	// Gateway はgatewayサービスの設定。
	Gateway GatewayConfig `yaml:"gateway"`
	// Identity はidentityサービスの設定。
	Identity IdentityConfig `yaml:"identity"`
	// Post は投稿サービスの設定。
	Post PostConfig `yaml:"post"`
}

// SessionConfig はセッショントークンの設定。
type SessionConfig struct {
	// Secret は署名鍵。identityとローカル検証のgatewayで必須。
	Secret string `yaml:"secret"`
	// TTL はトークンの有効期間。
	TTL time.Duration `yaml:"ttl"`
	// Issuer はissクレーム。
	Issuer string `yaml:"issuer"`
}

// GatewayConfig はgatewayサービスの設定。
type GatewayConfig struct {
	// Port はHTTPのリッスンポート。
	Port string `yaml:"port"`
	// IdentityURL はidentityサービスのベースURL。
	IdentityURL string `yaml:"identity_url"`
	// PostRPCAddr は投稿サービスのRPCアドレス（host:port）。
	PostRPCAddr string `yaml:"post_rpc_addr"`
	// AuthMode はセッションの検証方法。
	AuthMode AuthMode `yaml:"auth_mode"`
	// RPCTimeout は投稿サービス呼び出し1件の期限。
	RPCTimeout time.Duration `yaml:"rpc_timeout"`
	// IdentityTimeout はidentityサービス呼び出し1件の期限。
	IdentityTimeout time.Duration `yaml:"identity_timeout"`
	// StrictInternalErrors はINTERNALを400ではなく500に対応付ける。
	StrictInternalErrors bool `yaml:"strict_internal_errors"`
	// AllowedOrigins はCORSで許可するオリジン。
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// IdentityConfig はidentityサービスの設定。
type IdentityConfig struct {
	// Port はHTTPのリッスンポート。
	Port string `yaml:"port"`
	// DatabaseURL はPostgreSQLの接続文字列。空ならSQLiteを使う。
	DatabaseURL string `yaml:"database_url"`
	// SQLitePath はSQLiteのファイルパス。
	SQLitePath string `yaml:"sqlite_path"`
	// SecureCookie はセッションCookieにSecure属性を付ける。
	SecureCookie bool `yaml:"secure_cookie"`
}

// PostConfig は投稿サービスの設定。
type PostConfig struct {
	// ListenAddr はRPCのリッスンアドレス。
	ListenAddr string `yaml:"listen_addr"`
	// DatabaseURL はPostgreSQLの接続文字列。空ならSQLiteを使う。
	DatabaseURL string `yaml:"database_url"`
	// SQLitePath はSQLiteのファイルパス。
	SQLitePath string `yaml:"sqlite_path"`
}

// Default は既定値の設定を返す。
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Session: SessionConfig{
			TTL:    30 * time.Minute,
			Issuer: "postboard",
		},
		Gateway: GatewayConfig{
			Port:            "8080",
			IdentityURL:     "http://localhost:8081",
			PostRPCAddr:     "localhost:9090",
			AuthMode:        AuthModeLocal,
			RPCTimeout:      5 * time.Second,
			IdentityTimeout: 5 * time.Second,
			AllowedOrigins:  []string{"http://localhost:3000"},
		},
		Identity: IdentityConfig{
			Port:       "8081",
			SQLitePath: "/data/identity.db",
		},
		Post: PostConfig{
			ListenAddr: ":9090",
			SQLitePath: "/data/post.db",
		},
	}
}

// Load は設定を読み込む。pathが空なら POSTBOARD_CONFIG 環境変数のパスを使う。
func Load(path string) (*Config, error) {
	return load(path, os.Getenv)
}

// load はgetenvから環境変数を読んで設定を組み立てる。
func load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = getenv("POSTBOARD_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile はYAMLファイルを読み込んで既定値を上書きする。未知のキーはエラーにする。
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイル %s の読み込みに失敗: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("設定ファイル %s の解析に失敗: %w", path, err)
	}
	return nil
}

// applyEnv は環境変数で設定を上書きする。
func (c *Config) applyEnv(getenv func(string) string) error {
	setString := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	var errs []error
	setDuration := func(key string, dst *time.Duration) {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s の値が不正です: %w", key, err))
				return
			}
			*dst = d
		}
	}
	setBool := func(key string, dst *bool) {
		if v := getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s の値が不正です: %w", key, err))
				return
			}
			*dst = b
		}
	}

	setString("LOG_LEVEL", &c.LogLevel)

	setString("SESSION_SECRET", &c.Session.Secret)
	setDuration("SESSION_TTL", &c.Session.TTL)
	setString("SESSION_ISSUER", &c.Session.Issuer)

	setString("GATEWAY_PORT", &c.Gateway.Port)
	setString("IDENTITY_URL", &c.Gateway.IdentityURL)
	setString("POST_RPC_ADDR", &c.Gateway.PostRPCAddr)
	if v := getenv("AUTH_MODE"); v != "" {
		c.Gateway.AuthMode = AuthMode(v)
	}
	setDuration("RPC_TIMEOUT", &c.Gateway.RPCTimeout)
	setDuration("IDENTITY_TIMEOUT", &c.Gateway.IdentityTimeout)
	setBool("STRICT_INTERNAL_ERRORS", &c.Gateway.StrictInternalErrors)
	if v := getenv("FRONTEND_URL"); v != "" {
		c.Gateway.AllowedOrigins = splitList(v)
	}

	setString("IDENTITY_PORT", &c.Identity.Port)
	setString("IDENTITY_DATABASE_URL", &c.Identity.DatabaseURL)
	setString("IDENTITY_SQLITE_PATH", &c.Identity.SQLitePath)
	setBool("COOKIE_SECURE", &c.Identity.SecureCookie)

	setString("POST_LISTEN_ADDR", &c.Post.ListenAddr)
	setString("POST_DATABASE_URL", &c.Post.DatabaseURL)
	setString("POST_SQLITE_PATH", &c.Post.SQLitePath)

	return errors.Join(errs...)
}

// Validate はserviceの起動に必要な設定が揃っているかを検証する。
func (c *Config) Validate(service Service) error {
	var errs []error
	switch service {
	case ServiceGateway:
		switch c.Gateway.AuthMode {
		case AuthModeLocal:
			if c.Session.Secret == "" {
				errs = append(errs, errors.New("auth_mode=local では SESSION_SECRET が必要です"))
			}
		case AuthModeRemote:
			if c.Gateway.IdentityURL == "" {
				errs = append(errs, errors.New("auth_mode=remote では IDENTITY_URL が必要です"))
			}
		default:
			errs = append(errs, fmt.Errorf("未知の認証モードです: %q", c.Gateway.AuthMode))
		}
		if c.Gateway.PostRPCAddr == "" {
			errs = append(errs, errors.New("POST_RPC_ADDR が必要です"))
		}
		if c.Gateway.RPCTimeout <= 0 || c.Gateway.IdentityTimeout <= 0 {
			errs = append(errs, errors.New("タイムアウトは正の値である必要があります"))
		}
	case ServiceIdentity:
		if c.Session.Secret == "" {
			errs = append(errs, errors.New("SESSION_SECRET が必要です"))
		}
		if c.Session.TTL <= 0 {
			errs = append(errs, errors.New("SESSION_TTL は正の値である必要があります"))
		}
		if c.Identity.DatabaseURL == "" && c.Identity.SQLitePath == "" {
			errs = append(errs, errors.New("IDENTITY_DATABASE_URL か IDENTITY_SQLITE_PATH が必要です"))
		}
	case ServicePost:
		if c.Post.ListenAddr == "" {
			errs = append(errs, errors.New("POST_LISTEN_ADDR が必要です"))
		}
		if c.Post.DatabaseURL == "" && c.Post.SQLitePath == "" {
			errs = append(errs, errors.New("POST_DATABASE_URL か POST_SQLITE_PATH が必要です"))
		}
	default:
		errs = append(errs, fmt.Errorf("未知のサービスです: %q", service))
	}
	return errors.Join(errs...)
}

// splitList はカンマ区切りの値を分割し、空要素を除く。
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
