// Package migration はSQLiteデータベースのマイグレーションを管理する。
// embed.FSからSQLファイルを読み込み、バージョン管理テーブルで適用状態を追跡する。
package migration

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strconv"
	"strings"
)

// Run はembedされたマイグレーションファイルを順序通りに適用する。
// 未適用のマイグレーションのみ実行し、適用済みのものはスキップする。
// ファイル名形式: 000001_description.up.sql
func Run(ctx context.Context, db *sql.DB, fsys fs.FS, dir string) error {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return fmt.Errorf("マイグレーション管理テーブルの作成に失敗: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return fmt.Errorf("適用済みバージョンの取得に失敗: %w", err)
	}

	migrations, err := collect(fsys, dir)
	if err != nil {
		return fmt.Errorf("マイグレーションファイルの収集に失敗: %w", err)
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		if err := apply(ctx, db, fsys, m); err != nil {
			return fmt.Errorf("マイグレーション %06d の適用に失敗: %w", m.version, err)
		}
		slog.InfoContext(ctx, "マイグレーションを適用しました", "version", m.version, "name", m.name)
	}
	return nil
}

// file は1つのマイグレーションファイル。
type file struct {
	version int
	name    string
	path    string
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		)
	`)
	return err
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// collect はディレクトリからup.sqlファイルを収集してバージョン順に並べる。
// 同じバージョンのファイルが複数ある場合はエラーにする。
func collect(fsys fs.FS, dir string) ([]file, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	var files []file
	seen := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}

		prefix, rest, found := strings.Cut(entry.Name(), "_")
		if !found {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("バージョン %06d が重複しています: %s, %s", version, other, entry.Name())
		}
		seen[version] = entry.Name()

		files = append(files, file{
			version: version,
			name:    strings.TrimSuffix(rest, ".up.sql"),
			path:    path.Join(dir, entry.Name()),
		})
	}

	slices.SortFunc(files, func(a, b file) int { return a.version - b.version })
	return files, nil
}

// apply は1つのマイグレーションをトランザクション内で適用する。
func apply(ctx context.Context, db *sql.DB, fsys fs.FS, m file) error {
	content, err := fs.ReadFile(fsys, m.path)
	if err != nil {
		return fmt.Errorf("ファイル読み込みに失敗: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("SQL実行に失敗: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
		return fmt.Errorf("バージョン記録に失敗: %w", err)
	}
	return tx.Commit()
}
