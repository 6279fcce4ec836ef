package identity

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/postboard/pkg/middleware"
	"github.com/nao1215/postboard/pkg/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// discardLogger はテスト用にログを捨てるロガー。
var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// testEnv はテスト用のidentityサーバー一式。
type testEnv struct {
	server    *Server
	store     *SQLiteStore
	authority *session.Authority
	clock     *testClock
}

// newTestEnv はインメモリSQLiteと固定時計でサーバーを生成する。
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := newTestClock()
	store := newTestStore(t, clock)
	authority, err := session.NewAuthority([]byte("test-secret"), session.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewAuthority()でエラーが発生: %v", err)
	}
	return &testEnv{
		server:    NewServer(store, authority, discardLogger),
		store:     store,
		authority: authority,
		clock:     clock,
	}
}

// do はリクエストを送信してレスポンスを返す。tokenが空でなければCookieに設定する。
func (e *testEnv) do(method, path, body, token string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: token})
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

// register はユーザーを登録し、ユーザーIDを返す。
func (e *testEnv) register(t *testing.T, username, email string) string {
	t.Helper()

	rec := e.do(http.MethodPost, "/auth/register",
		`{"username":"`+username+`","password":"password123","email":"`+email+`"}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("登録に失敗: %d %s", rec.Code, rec.Body.String())
	}
	var body struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v", err)
	}
	return body.UserID
}

// login はログインしてセッショントークンを返す。
func (e *testEnv) login(t *testing.T, username string) string {
	t.Helper()

	rec := e.do(http.MethodPost, "/auth/login", `{"username":"`+username+`","password":"password123"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("ログインに失敗: %d %s", rec.Code, rec.Body.String())
	}
	var body struct {
		SessionToken string `json:"session_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v", err)
	}
	return body.SessionToken
}

// sessionCookie はレスポンスのセッションCookieを返す。
func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			return c
		}
	}
	return nil
}

// TestRegister はユーザー登録を検証する。
func TestRegister(t *testing.T) {
	t.Parallel()

	t.Run("正常に登録できること", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		id := env.register(t, "alice", "alice@example.com")
		if id == "" {
			t.Fatal("user_id が空")
		}
	})

	t.Run("重複したユーザー名は400を返すこと", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		env.register(t, "alice", "alice@example.com")
		rec := env.do(http.MethodPost, "/auth/register",
			`{"username":"alice","password":"password123","email":"other@example.com"}`, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("形式が不正な場合は422と詳細を返すこと", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		rec := env.do(http.MethodPost, "/auth/register",
			`{"username":"alice","password":"password123","email":"not-an-email"}`, "")
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
		}
		var body struct {
			Details []middleware.FieldError `json:"details"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスの解析に失敗: %v", err)
		}
		if len(body.Details) != 1 || body.Details[0].Field != "email" {
			t.Errorf("details = %+v, want email のエラー1件", body.Details)
		}
	})
}

// TestLogin はログインとセッションCookieの発行を検証する。
func TestLogin(t *testing.T) {
	t.Parallel()

	t.Run("ログインするとHttpOnlyのCookieとトークンが返ること", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		id := env.register(t, "alice", "alice@example.com")

		rec := env.do(http.MethodPost, "/auth/login", `{"username":"alice","password":"password123"}`, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusOK)
		}

		cookie := sessionCookie(rec)
		if cookie == nil {
			t.Fatal("セッションCookieが設定されていない")
		}
		if !cookie.HttpOnly {
			t.Error("HttpOnly が設定されていない")
		}
		if cookie.SameSite != http.SameSiteLaxMode {
			t.Errorf("SameSite = %v, want Lax", cookie.SameSite)
		}
		if cookie.MaxAge != int(session.DefaultTTL.Seconds()) {
			t.Errorf("MaxAge = %d, want %d", cookie.MaxAge, int(session.DefaultTTL.Seconds()))
		}

		subject, err := env.authority.Validate(cookie.Value)
		if err != nil {
			t.Fatalf("発行されたトークンの検証に失敗: %v", err)
		}
		if subject != id {
			t.Errorf("subject = %q, want %q", subject, id)
		}
	})

	t.Run("認証情報が誤っている場合は401を返しCookieを設定しないこと", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		env.register(t, "alice", "alice@example.com")

		for _, body := range []string{
			`{"username":"alice","password":"wrong-password"}`,
			`{"username":"nobody","password":"password123"}`,
		} {
			rec := env.do(http.MethodPost, "/auth/login", body, "")
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("%s: ステータスコード = %d, want %d", body, rec.Code, http.StatusUnauthorized)
			}
			if sessionCookie(rec) != nil {
				t.Errorf("%s: Cookieが設定された", body)
			}
		}
	})

	t.Run("ログアウトするとCookieが削除されること", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		rec := env.do(http.MethodPost, "/auth/logout", "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusOK)
		}
		cookie := sessionCookie(rec)
		if cookie == nil || cookie.MaxAge >= 0 || cookie.Value != "" {
			t.Errorf("Cookieが削除されていない: %+v", cookie)
		}
	})
}

// TestVerify はセッションの検証エンドポイントを検証する。
func TestVerify(t *testing.T) {
	t.Parallel()

	t.Run("有効なセッションではユーザーIDを返すこと", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		id := env.register(t, "alice", "alice@example.com")
		token := env.login(t, "alice")

		rec := env.do(http.MethodGet, "/auth/verify", "", token)
		if rec.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusOK)
		}
		var body struct {
			UserID string `json:"user_id"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスの解析に失敗: %v", err)
		}
		if body.UserID != id {
			t.Errorf("user_id = %q, want %q", body.UserID, id)
		}
	})

	t.Run("トークンが無い・期限切れの場合は401を返すこと", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		env.register(t, "alice", "alice@example.com")
		token := env.login(t, "alice")

		if rec := env.do(http.MethodGet, "/auth/verify", "", ""); rec.Code != http.StatusUnauthorized {
			t.Errorf("トークン無し: ステータスコード = %d, want %d", rec.Code, http.StatusUnauthorized)
		}

		env.clock.Advance(session.DefaultTTL)
		if rec := env.do(http.MethodGet, "/auth/verify", "", token); rec.Code != http.StatusUnauthorized {
			t.Errorf("期限切れ: ステータスコード = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})
}

// TestUsersMe はプロフィールの取得と更新を検証する。
func TestUsersMe(t *testing.T) {
	t.Parallel()

	t.Run("プロフィールにパスワードハッシュが含まれないこと", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		id := env.register(t, "alice", "alice@example.com")
		token := env.login(t, "alice")

		rec := env.do(http.MethodGet, "/users/me", "", token)
		if rec.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusOK)
		}
		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスの解析に失敗: %v", err)
		}
		if body["id"] != id || body["username"] != "alice" || body["email"] != "alice@example.com" {
			t.Errorf("プロフィール = %v", body)
		}
		for key := range body {
			if strings.Contains(key, "password") {
				t.Errorf("レスポンスに %q が含まれる", key)
			}
		}
	})

	t.Run("部分更新で指定したフィールドだけが変わること", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		env.register(t, "alice", "alice@example.com")
		token := env.login(t, "alice")

		if rec := env.do(http.MethodPatch, "/users/me", `{"first_name":"Alice","date_of_birth":"2000-01-02"}`, token); rec.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		env.clock.Advance(time.Minute)
		rec := env.do(http.MethodPatch, "/users/me", `{"last_name":"Smith"}`, token)
		if rec.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusOK)
		}

		var got User
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("レスポンスの解析に失敗: %v", err)
		}
		if got.FirstName == nil || *got.FirstName != "Alice" {
			t.Errorf("first_name = %v, want Alice", got.FirstName)
		}
		if got.LastName == nil || *got.LastName != "Smith" {
			t.Errorf("last_name = %v, want Smith", got.LastName)
		}
		if got.DateOfBirth == nil || *got.DateOfBirth != "2000-01-02" {
			t.Errorf("date_of_birth = %v, want 2000-01-02", got.DateOfBirth)
		}
		if got.PhoneNumber != nil {
			t.Errorf("phone_number = %v, want nil", *got.PhoneNumber)
		}
		if !got.UpdatedAt.Equal(env.clock.Now()) {
			t.Errorf("updated_at = %v, want %v", got.UpdatedAt, env.clock.Now())
		}
	})

	t.Run("日付の形式が不正な場合は422を返すこと", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		env.register(t, "alice", "alice@example.com")
		token := env.login(t, "alice")

		rec := env.do(http.MethodPatch, "/users/me", `{"date_of_birth":"02/01/2000"}`, token)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("ステータスコード = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
		}
	})

	t.Run("未認証は401、存在しないユーザーは404を返すこと", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		if rec := env.do(http.MethodGet, "/users/me", "", ""); rec.Code != http.StatusUnauthorized {
			t.Errorf("未認証: ステータスコード = %d, want %d", rec.Code, http.StatusUnauthorized)
		}

		ghost, err := env.authority.Issue("ghost")
		if err != nil {
			t.Fatalf("Issue()でエラーが発生: %v", err)
		}
		if rec := env.do(http.MethodGet, "/users/me", "", ghost.Value); rec.Code != http.StatusNotFound {
			t.Errorf("存在しないユーザー: ステータスコード = %d, want %d", rec.Code, http.StatusNotFound)
		}
		if rec := env.do(http.MethodPatch, "/users/me", `{"first_name":"X"}`, ghost.Value); rec.Code != http.StatusNotFound {
			t.Errorf("存在しないユーザーの更新: ステータスコード = %d, want %d", rec.Code, http.StatusNotFound)
		}
	})
}

// TestHealth はヘルスチェックを検証する。
func TestHealth(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("ステータスコード = %d, want %d", rec.Code, http.StatusOK)
	}
}
