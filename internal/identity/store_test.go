package identity

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-test/deep"
	"golang.org/x/crypto/bcrypt"
)

// postgresDSNEnv はPostgreSQLのストアを検証する際の接続文字列の環境変数名。
const postgresDSNEnv = "POSTBOARD_TEST_POSTGRES_DSN"

// testClock はテスト用に進められる時計。
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestStore はインメモリSQLiteのCredentialStoreを生成する。
func newTestStore(t *testing.T, clock *testClock) *SQLiteStore {
	t.Helper()

	store, err := OpenSQLite(context.Background(), ":memory:",
		WithBcryptCost(bcrypt.MinCost), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("インメモリDBの初期化に失敗: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// testCredentialStoreContract はCredentialStoreの実装が満たすべき振る舞いを検証する。
func testCredentialStoreContract(t *testing.T, newStore func(t *testing.T, clock *testClock) CredentialStore) {
	t.Run("登録したユーザーを取得できること", func(t *testing.T) {
		clock := newTestClock()
		store := newStore(t, clock)
		ctx := context.Background()

		created, err := store.Create(ctx, "alice", "password123", "alice@example.com")
		if err != nil {
			t.Fatalf("Create()でエラーが発生: %v", err)
		}
		if created.ID == "" {
			t.Fatal("IDが採番されていない")
		}
		if created.PasswordHash == "" || created.PasswordHash == "password123" {
			t.Errorf("パスワードがハッシュ化されていない: %q", created.PasswordHash)
		}
		if !created.CreatedAt.Equal(clock.Now()) || !created.UpdatedAt.Equal(clock.Now()) {
			t.Errorf("日時 = %v, %v, want %v", created.CreatedAt, created.UpdatedAt, clock.Now())
		}

		byName, err := store.Lookup(ctx, "alice")
		if err != nil {
			t.Fatalf("Lookup()でエラーが発生: %v", err)
		}
		if diff := deep.Equal(byName, created); diff != nil {
			t.Error(diff)
		}
		byID, err := store.Get(ctx, created.ID)
		if err != nil {
			t.Fatalf("Get()でエラーが発生: %v", err)
		}
		if diff := deep.Equal(byID, created); diff != nil {
			t.Error(diff)
		}
	})

	t.Run("ユーザー名かメールアドレスが重複するとErrUserExistsを返すこと", func(t *testing.T) {
		store := newStore(t, newTestClock())
		ctx := context.Background()
		if _, err := store.Create(ctx, "alice", "password123", "alice@example.com"); err != nil {
			t.Fatalf("Create()でエラーが発生: %v", err)
		}

		if _, err := store.Create(ctx, "alice", "password456", "other@example.com"); !errors.Is(err, ErrUserExists) {
			t.Errorf("ユーザー名の重複: err = %v, want ErrUserExists", err)
		}
		if _, err := store.Create(ctx, "bob", "password456", "alice@example.com"); !errors.Is(err, ErrUserExists) {
			t.Errorf("メールアドレスの重複: err = %v, want ErrUserExists", err)
		}
	})

	t.Run("パスワードを照合できること", func(t *testing.T) {
		store := newStore(t, newTestClock())
		ctx := context.Background()
		created, err := store.Create(ctx, "alice", "password123", "alice@example.com")
		if err != nil {
			t.Fatalf("Create()でエラーが発生: %v", err)
		}

		got, err := store.Verify(ctx, "alice", "password123")
		if err != nil {
			t.Fatalf("Verify()でエラーが発生: %v", err)
		}
		if got.ID != created.ID {
			t.Errorf("ID = %q, want %q", got.ID, created.ID)
		}

		if _, err := store.Verify(ctx, "alice", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("誤ったパスワード: err = %v, want ErrInvalidCredentials", err)
		}
		if _, err := store.Verify(ctx, "nobody", "password123"); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("存在しないユーザー: err = %v, want ErrInvalidCredentials", err)
		}
	})

	t.Run("存在しないユーザーはErrUserNotFoundを返すこと", func(t *testing.T) {
		store := newStore(t, newTestClock())
		ctx := context.Background()

		if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
			t.Errorf("Get: err = %v, want ErrUserNotFound", err)
		}
		if _, err := store.Lookup(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
			t.Errorf("Lookup: err = %v, want ErrUserNotFound", err)
		}
		first := "A"
		if _, err := store.Update(ctx, "missing", UserUpdate{FirstName: &first}); !errors.Is(err, ErrUserNotFound) {
			t.Errorf("Update: err = %v, want ErrUserNotFound", err)
		}
	})

	t.Run("部分更新で指定の無いフィールドが保持されること", func(t *testing.T) {
		clock := newTestClock()
		store := newStore(t, clock)
		ctx := context.Background()
		created, err := store.Create(ctx, "alice", "password123", "alice@example.com")
		if err != nil {
			t.Fatalf("Create()でエラーが発生: %v", err)
		}

		first, phone := "Alice", "+81-90-0000-0000"
		clock.Advance(time.Minute)
		if _, err := store.Update(ctx, created.ID, UserUpdate{FirstName: &first}); err != nil {
			t.Fatalf("Update()でエラーが発生: %v", err)
		}
		clock.Advance(time.Minute)
		updated, err := store.Update(ctx, created.ID, UserUpdate{PhoneNumber: &phone})
		if err != nil {
			t.Fatalf("Update()でエラーが発生: %v", err)
		}

		want := created
		want.FirstName = &first
		want.PhoneNumber = &phone
		want.UpdatedAt = clock.Now()
		if diff := deep.Equal(updated, want); diff != nil {
			t.Error(diff)
		}
	})
}

// TestSQLiteStore はSQLiteのCredentialStoreを検証する。
func TestSQLiteStore(t *testing.T) {
	t.Parallel()

	testCredentialStoreContract(t, func(t *testing.T, clock *testClock) CredentialStore {
		return newTestStore(t, clock)
	})
}

// TestPostgresStore はPostgreSQLのCredentialStoreを検証する。
// POSTBOARD_TEST_POSTGRES_DSN が設定されている場合のみ実行する。
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv(postgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s が設定されていないためスキップします", postgresDSNEnv)
	}

	testCredentialStoreContract(t, func(t *testing.T, clock *testClock) CredentialStore {
		t.Helper()

		store, err := OpenPostgres(context.Background(), dsn,
			WithBcryptCost(bcrypt.MinCost), WithClock(clock.Now))
		if err != nil {
			t.Fatalf("OpenPostgres()でエラーが発生: %v", err)
		}
		if _, err := store.pool.Exec(context.Background(), "TRUNCATE TABLE users"); err != nil {
			t.Fatalf("usersテーブルの初期化に失敗: %v", err)
		}
		t.Cleanup(store.Close)
		return store
	})
}
