package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/postboard/internal/post"
	"github.com/nao1215/postboard/pkg/httpclient"
	"github.com/nao1215/postboard/pkg/middleware"
)

// defaultRPCTimeout は投稿サービス呼び出し1件の既定の期限。
const defaultRPCTimeout = 5 * time.Second

// PostService は投稿サービスの操作。*post.Client が実装する。
type PostService interface {
	Create(ctx context.Context, caller string, in post.NewPost) (post.Post, error)
	Get(ctx context.Context, id, caller string) (post.Post, error)
	Update(ctx context.Context, id, caller string, u post.Update) (post.Post, error)
	Delete(ctx context.Context, id, caller string) (bool, error)
	List(ctx context.Context, req post.PageRequest, caller string) (post.Page, error)
}

// Server はgatewayのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// identity はidentityサービスへのHTTPクライアント。
	identity *httpclient.Client
	// posts は投稿サービスのクライアント。全リクエストで共有する。
	posts PostService
	// auth はセッショントークンを検証する。
	auth middleware.Authenticator
	// logger は構造化ロガー。
	logger *slog.Logger
	// rpcTimeout は投稿サービス呼び出し1件の期限。
	rpcTimeout time.Duration
	// strictInternalErrors はINTERNALを500に対応付ける。falseなら400。
	strictInternalErrors bool
	// allowedOrigins はCORSで許可するオリジン。
	allowedOrigins []string
}

// Option はServerの設定を変更する関数。
type Option func(*Server)

// WithRPCTimeout は投稿サービス呼び出し1件の期限を設定する。
func WithRPCTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.rpcTimeout = d
		}
	}
}

// WithStrictInternalErrors は投稿サービスの内部エラーを500で返すかどうかを設定する。
func WithStrictInternalErrors(strict bool) Option {
	return func(s *Server) {
		s.strictInternalErrors = strict
	}
}

// WithAllowedOrigins はCORSで許可するオリジンを設定する。
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// NewServer は新しいgatewayサーバーを生成する。
// identityへの転送にはidentityを、/posts の認証にはauthを使う。
func NewServer(identity *httpclient.Client, posts PostService, auth middleware.Authenticator, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		identity:   identity,
		posts:      posts,
		auth:       auth,
		logger:     logger,
		rpcTimeout: defaultRPCTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(gin.Logger())
	if len(s.allowedOrigins) > 0 {
		router.Use(middleware.CORS(s.allowedOrigins))
	}
	s.router = router
	s.setupRoutes()
	return s
}

// Handler はHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// identityサービスへの転送（認証はidentity側で行う）
	auth := s.router.Group("/auth")
	{
		auth.POST("/register", s.handleProxy())
		auth.POST("/login", s.handleProxy())
		auth.POST("/logout", s.handleProxy())
	}
	users := s.router.Group("/users")
	{
		users.GET("/me", s.handleProxy())
		users.PATCH("/me", s.handleProxy())
	}

	// 投稿（認証必須）
	posts := s.router.Group("/posts")
	posts.Use(middleware.SessionAuth(s.auth, s.logger))
	{
		posts.POST("", s.handleCreatePost())
		posts.GET("", s.handleListPosts())
		posts.GET("/:id", s.handleGetPost())
		posts.PUT("/:id", s.handleUpdatePost())
		posts.DELETE("/:id", s.handleDeletePost())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})
}
