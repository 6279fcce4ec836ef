package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/postboard/internal/post"
	"github.com/nao1215/postboard/pkg/middleware"
	"github.com/nao1215/postboard/pkg/rpc"
)

// createPostRequest は投稿作成リクエストのJSON構造。
type createPostRequest struct {
	// Title は投稿のタイトル。
	Title string `json:"title" binding:"required,max=200"`
	// Description は投稿の本文。空文字は許すが省略はできない。
	Description *string `json:"description" binding:"required,max=10000"`
	// IsPrivate は作成者以外から隠すかどうか。
	IsPrivate bool `json:"is_private"`
	// Tags はタグ。
	Tags []string `json:"tags" binding:"max=20,dive,required,max=50"`
}

// updatePostRequest は投稿更新リクエストのJSON構造。省略したフィールドは変更しない。
type updatePostRequest struct {
	Title       *string   `json:"title" binding:"omitempty,max=200"`
	Description *string   `json:"description" binding:"omitempty,max=10000"`
	IsPrivate   *bool     `json:"is_private"`
	Tags        *[]string `json:"tags" binding:"omitempty,max=20,dive,required,max=50"`
}

// listPostsQuery は投稿一覧のクエリパラメータ。
type listPostsQuery struct {
	Page     int `form:"page,default=1" binding:"min=1"`
	PageSize int `form:"page_size,default=10" binding:"min=1,max=100"`
}

// handleCreatePost は投稿を作成する。
func (s *Server) handleCreatePost() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createPostRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortWithValidationError(c, err)
			return
		}

		ctx, cancel := s.rpcContext(c)
		defer cancel()
		created, err := s.posts.Create(ctx, middleware.GetUserID(c), post.NewPost{
			Title:       req.Title,
			Description: *req.Description,
			IsPrivate:   req.IsPrivate,
			Tags:        req.Tags,
		})
		if err != nil {
			s.abortWithRPCError(c, err)
			return
		}
		c.JSON(http.StatusCreated, created)
	}
}

// handleListPosts は閲覧できる投稿の一覧をページ単位で返す。
func (s *Server) handleListPosts() gin.HandlerFunc {
	return func(c *gin.Context) {
		var query listPostsQuery
		if err := c.ShouldBindQuery(&query); err != nil {
			middleware.AbortWithValidationError(c, err)
			return
		}

		ctx, cancel := s.rpcContext(c)
		defer cancel()
		page, err := s.posts.List(ctx, post.PageRequest{Page: query.Page, PageSize: query.PageSize}, middleware.GetUserID(c))
		if err != nil {
			s.abortWithRPCError(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

// handleGetPost は投稿を1件返す。
func (s *Server) handleGetPost() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := s.rpcContext(c)
		defer cancel()
		p, err := s.posts.Get(ctx, c.Param("id"), middleware.GetUserID(c))
		if err != nil {
			s.abortWithRPCError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// handleUpdatePost は投稿を部分更新する。
func (s *Server) handleUpdatePost() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updatePostRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortWithValidationError(c, err)
			return
		}

		ctx, cancel := s.rpcContext(c)
		defer cancel()
		updated, err := s.posts.Update(ctx, c.Param("id"), middleware.GetUserID(c), post.Update{
			Title:       req.Title,
			Description: req.Description,
			IsPrivate:   req.IsPrivate,
			Tags:        req.Tags,
		})
		if err != nil {
			s.abortWithRPCError(c, err)
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

// handleDeletePost は投稿を削除する。
func (s *Server) handleDeletePost() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := s.rpcContext(c)
		defer cancel()
		ok, err := s.posts.Delete(ctx, c.Param("id"), middleware.GetUserID(c))
		if err != nil {
			s.abortWithRPCError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": ok})
	}
}

// rpcContext は投稿サービス呼び出し用のコンテキストを返す。
// クライアントが切断しても送信済みの呼び出しは期限まで続ける。
func (s *Server) rpcContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(c.Request.Context()), s.rpcTimeout)
}

// abortWithRPCError は投稿サービスのエラーをHTTPレスポンスに変換する。
func (s *Server) abortWithRPCError(c *gin.Context, err error) {
	status, message := s.rpcErrorStatus(err)
	if status >= http.StatusInternalServerError || rpc.CodeOf(err) == rpc.CodeInternal {
		s.logger.Error("投稿サービスの呼び出しに失敗", "path", c.FullPath(), "status", status, "error", err)
	} else {
		s.logger.Debug("投稿サービスがエラーを返しました", "path", c.FullPath(), "status", status, "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// rpcErrorStatus はRPCのエラーをHTTPステータスとメッセージに変換する。
// 内部エラーの詳細はレスポンスに含めない。
func (s *Server) rpcErrorStatus(err error) (int, string) {
	var rpcErr *rpc.Error
	switch {
	case errors.Is(err, rpc.ErrDeadlineExceeded):
		return http.StatusGatewayTimeout, "投稿サービスの応答がタイムアウトしました"
	case errors.Is(err, rpc.ErrUnavailable), errors.Is(err, rpc.ErrClientClosed):
		return http.StatusServiceUnavailable, "投稿サービスが利用できません"
	case errors.As(err, &rpcErr):
		switch rpcErr.Code {
		case rpc.CodeNotFound:
			return http.StatusNotFound, rpcErr.Message
		case rpc.CodePermissionDenied:
			return http.StatusForbidden, rpcErr.Message
		case rpc.CodeInvalidArgument:
			return http.StatusBadRequest, rpcErr.Message
		}
	}
	if s.strictInternalErrors {
		return http.StatusInternalServerError, "内部エラーが発生しました"
	}
	return http.StatusBadRequest, "リクエストを処理できませんでした"
}
