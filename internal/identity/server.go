package identity

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/postboard/pkg/middleware"
	"github.com/nao1215/postboard/pkg/session"
)

// internalErrorMessage は内部エラー時にクライアントへ返す固定メッセージ。
const internalErrorMessage = "内部エラーが発生しました"

// Server はidentityサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// store はユーザーと認証情報の保存先。
	store CredentialStore
	// authority はセッショントークンを発行・検証する。
	authority *session.Authority
	// logger は構造化ロガー。
	logger *slog.Logger
	// secureCookie はセッションCookieにSecure属性を付けるかどうか。
	secureCookie bool
}

// Option はServerの設定を変更する関数。
type Option func(*Server)

// WithSecureCookie はセッションCookieにSecure属性を付けるかどうかを設定する。
func WithSecureCookie(secure bool) Option {
	return func(s *Server) {
		s.secureCookie = secure
	}
}

// NewServer は新しいidentityサーバーを生成する。
func NewServer(store CredentialStore, authority *session.Authority, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(gin.Logger())

	s := &Server{
		router:    router,
		store:     store,
		authority: authority,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

// Handler はHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	requireSession := middleware.SessionAuth(s.authority, s.logger)

	auth := s.router.Group("/auth")
	{
		// ユーザー登録
		auth.POST("/register", s.handleRegister())
		// ログイン
		auth.POST("/login", s.handleLogin())
		// ログアウト
		auth.POST("/logout", s.handleLogout())
		// セッションの検証（gatewayのリモート認証用）
		auth.GET("/verify", requireSession, s.handleVerify())
	}

	users := s.router.Group("/users")
	users.Use(requireSession)
	{
		// 自分のプロフィール取得
		users.GET("/me", s.handleGetMe())
		// 自分のプロフィール更新
		users.PATCH("/me", s.handleUpdateMe())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "identity"})
	})
}

// registerRequest はユーザー登録リクエストのJSON構造。
type registerRequest struct {
	// Username はログインに使う名前。
	Username string `json:"username" binding:"required,min=3,max=64"`
	// Password はパスワード。bcryptの上限に合わせて72バイトまで。
	Password string `json:"password" binding:"required,min=8,max=72"`
	// Email はメールアドレス。
	Email string `json:"email" binding:"required,email"`
}

// loginRequest はログインリクエストのJSON構造。
type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// updateMeRequest はプロフィール更新リクエストのJSON構造。省略したフィールドは変更しない。
type updateMeRequest struct {
	FirstName   *string `json:"first_name" binding:"omitempty,max=100"`
	LastName    *string `json:"last_name" binding:"omitempty,max=100"`
	DateOfBirth *string `json:"date_of_birth" binding:"omitempty,datetime=2006-01-02"`
	PhoneNumber *string `json:"phone_number" binding:"omitempty,max=32"`
}

// handleRegister はユーザーを登録する。
func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortWithValidationError(c, err)
			return
		}

		user, err := s.store.Create(c.Request.Context(), req.Username, req.Password, req.Email)
		if errors.Is(err, ErrUserExists) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			s.internalError(c, "ユーザーの登録に失敗", err)
			return
		}

		s.logger.Info("ユーザーを登録しました", "user_id", user.ID)
		c.JSON(http.StatusCreated, gin.H{"message": "ユーザーを登録しました", "user_id": user.ID})
	}
}

// handleLogin は認証情報を照合し、セッショントークンを発行する。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortWithValidationError(c, err)
			return
		}

		user, err := s.store.Verify(c.Request.Context(), req.Username, req.Password)
		if errors.Is(err, ErrInvalidCredentials) {
			s.logger.Info("ログインに失敗", "reason", "invalid_credentials")
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			s.internalError(c, "認証情報の照合に失敗", err)
			return
		}

		token, err := s.authority.Issue(user.ID)
		if err != nil {
			s.internalError(c, "セッショントークンの発行に失敗", err)
			return
		}

		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(middleware.SessionCookieName, token.Value,
			int(s.authority.TTL().Seconds()), "/", "", s.secureCookie, true)
		c.JSON(http.StatusOK, gin.H{"session_token": token.Value})
	}
}

// handleLogout はセッションCookieを削除する。トークン自体は有効期限まで有効なまま。
func (s *Server) handleLogout() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(middleware.SessionCookieName, "", -1, "/", "", s.secureCookie, true)
		c.JSON(http.StatusOK, gin.H{"message": "ログアウトしました"})
	}
}

// handleVerify は検証済みのユーザーIDを返す。
func (s *Server) handleVerify() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": middleware.GetUserID(c)})
	}
}

// handleGetMe は認証済みユーザーのプロフィールを返す。
func (s *Server) handleGetMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := s.store.Get(c.Request.Context(), middleware.GetUserID(c))
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			s.internalError(c, "ユーザーの取得に失敗", err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// handleUpdateMe は認証済みユーザーのプロフィールを部分更新する。
func (s *Server) handleUpdateMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateMeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortWithValidationError(c, err)
			return
		}

		user, err := s.store.Update(c.Request.Context(), middleware.GetUserID(c), UserUpdate{
			FirstName:   req.FirstName,
			LastName:    req.LastName,
			DateOfBirth: req.DateOfBirth,
			PhoneNumber: req.PhoneNumber,
		})
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			s.internalError(c, "ユーザーの更新に失敗", err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// internalError は詳細をログに記録し、固定メッセージの500を返す。
func (s *Server) internalError(c *gin.Context, msg string, err error) {
	s.logger.Error(msg, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": internalErrorMessage})
}
