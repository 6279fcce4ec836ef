package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

// discardLogger はテスト用にログを捨てるロガー。
var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// TestRecovery はRecoveryミドルウェアを検証する。
func TestRecovery(t *testing.T) {
	t.Parallel()

	panics := []struct {
		name  string
		value any
	}{
		{name: "文字列のパニック値", value: "テスト用パニック"},
		{name: "文字列以外のパニック値", value: 42},
		{name: "error型のパニック値", value: http.ErrAbortHandler},
	}
	for _, tt := range panics {
		t.Run(tt.name+"で500が返ること", func(t *testing.T) {
			t.Parallel()

			router := gin.New()
			router.Use(Recovery(discardLogger))
			router.POST("/panic", func(_ *gin.Context) {
				panic(tt.value)
			})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/panic", nil))

			if w.Code != http.StatusInternalServerError {
				t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusInternalServerError)
			}
			var body map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("レスポンスボディのパースに失敗: %v", err)
			}
			if body["error"] != "内部サーバーエラーが発生しました" {
				t.Errorf("error = %q, want %q", body["error"], "内部サーバーエラーが発生しました")
			}
		})
	}

	t.Run("パニック後もサーバーが次のリクエストを処理できること", func(t *testing.T) {
		t.Parallel()

		router := gin.New()
		router.Use(Recovery(nil))
		router.GET("/panic", func(_ *gin.Context) {
			panic("パニック発生")
		})
		router.GET("/ok", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "recovered"})
		})

		w1 := httptest.NewRecorder()
		router.ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "/panic", nil))
		if w1.Code != http.StatusInternalServerError {
			t.Errorf("1回目のステータスコード = %d, want %d", w1.Code, http.StatusInternalServerError)
		}

		w2 := httptest.NewRecorder()
		router.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/ok", nil))
		if w2.Code != http.StatusOK {
			t.Errorf("2回目のステータスコード = %d, want %d", w2.Code, http.StatusOK)
		}
	})
}
