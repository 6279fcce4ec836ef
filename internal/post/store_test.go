package post

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/go-test/deep"
)

// postgresDSNEnv はPostgreSQLのストアを検証する際の接続文字列の環境変数名。
const postgresDSNEnv = "POSTBOARD_TEST_POSTGRES_DSN"

// testStoreContract はStoreの実装が満たすべき振る舞いを検証する。
func testStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	base := time.Date(2026, 4, 1, 12, 0, 0, 123456000, time.UTC)
	newPost := func(i int, creator string, private bool) Post {
		return Post{
			ID:          fmt.Sprintf("00000000-0000-0000-0000-%012d", i),
			Title:       fmt.Sprintf("title-%d", i),
			Description: "本文",
			CreatorID:   creator,
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
			IsPrivate:   private,
			Tags:        []string{"b", "a"},
		}
	}

	t.Run("保存した投稿を取得できること", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		p := newPost(1, "u1", true)

		if err := store.Insert(ctx, p); err != nil {
			t.Fatalf("Insert()でエラーが発生: %v", err)
		}
		got, err := store.Get(ctx, p.ID)
		if err != nil {
			t.Fatalf("Get()でエラーが発生: %v", err)
		}
		if diff := deep.Equal(got, p); diff != nil {
			t.Error(diff)
		}
	})

	t.Run("上書きで作成者と作成日時以外が置き換わること", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		p := newPost(1, "u1", false)
		if err := store.Insert(ctx, p); err != nil {
			t.Fatalf("Insert()でエラーが発生: %v", err)
		}

		updatedAt := base.Add(time.Hour)
		changed := p
		changed.Title = "changed"
		changed.Description = ""
		changed.IsPrivate = true
		changed.Tags = []string{}
		changed.UpdatedAt = &updatedAt
		if err := store.Save(ctx, changed); err != nil {
			t.Fatalf("Save()でエラーが発生: %v", err)
		}

		got, err := store.Get(ctx, p.ID)
		if err != nil {
			t.Fatalf("Get()でエラーが発生: %v", err)
		}
		if diff := deep.Equal(got, changed); diff != nil {
			t.Error(diff)
		}
	})

	t.Run("存在しない投稿の操作はErrNotFoundになること", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		missing := newPost(99, "u1", false)

		if _, err := store.Get(ctx, missing.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
		if err := store.Save(ctx, missing); !errors.Is(err, ErrNotFound) {
			t.Errorf("Save() error = %v, want ErrNotFound", err)
		}
		if err := store.Delete(ctx, missing.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("Delete() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("削除した投稿は取得できないこと", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		p := newPost(1, "u1", false)
		if err := store.Insert(ctx, p); err != nil {
			t.Fatalf("Insert()でエラーが発生: %v", err)
		}
		if err := store.Delete(ctx, p.ID); err != nil {
			t.Fatalf("Delete()でエラーが発生: %v", err)
		}
		if _, err := store.Get(ctx, p.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("一覧は公開投稿と自分の投稿を作成順に返すこと", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		posts := []Post{
			newPost(1, "u1", false),
			newPost(2, "u2", true),
			newPost(3, "u1", true),
			newPost(4, "u2", false),
			newPost(5, "u3", false),
		}
		for _, p := range posts {
			if err := store.Insert(ctx, p); err != nil {
				t.Fatalf("Insert()でエラーが発生: %v", err)
			}
		}

		got, total, err := store.ListVisible(ctx, "u1", 0, 10)
		if err != nil {
			t.Fatalf("ListVisible()でエラーが発生: %v", err)
		}
		if total != 4 {
			t.Errorf("total = %d, want 4", total)
		}
		if diff := deep.Equal(got, []Post{posts[0], posts[2], posts[3], posts[4]}); diff != nil {
			t.Error(diff)
		}

		got, total, err = store.ListVisible(ctx, "u1", 1, 2)
		if err != nil {
			t.Fatalf("ListVisible()でエラーが発生: %v", err)
		}
		if total != 4 {
			t.Errorf("total = %d, want 4", total)
		}
		if diff := deep.Equal(got, []Post{posts[2], posts[3]}); diff != nil {
			t.Error(diff)
		}

		got, total, err = store.ListVisible(ctx, "u1", 10, 2)
		if err != nil {
			t.Fatalf("ListVisible()でエラーが発生: %v", err)
		}
		if total != 4 || len(got) != 0 {
			t.Errorf("範囲外: len = %d, total = %d, want 0, 4", len(got), total)
		}
	})
}

// TestSQLiteStore はSQLiteのStoreを検証する。
func TestSQLiteStore(t *testing.T) {
	t.Parallel()

	testStoreContract(t, func(t *testing.T) Store {
		return newTestStore(t)
	})
}

// TestPostgresStore はPostgreSQLのStoreを検証する。
// POSTBOARD_TEST_POSTGRES_DSN が設定されている場合のみ実行する。
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv(postgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s が設定されていないためスキップします", postgresDSNEnv)
	}

	testStoreContract(t, func(t *testing.T) Store {
		t.Helper()

		store, err := OpenPostgres(context.Background(), dsn, discardLogger)
		if err != nil {
			t.Fatalf("OpenPostgres()でエラーが発生: %v", err)
		}
		if err := store.db.Exec("TRUNCATE TABLE posts RESTART IDENTITY").Error; err != nil {
			t.Fatalf("postsテーブルの初期化に失敗: %v", err)
		}
		t.Cleanup(func() { store.Close() })
		return store
	})
}
