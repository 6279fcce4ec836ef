// Package logger は各サービスで共通の構造化ロガーを生成する。
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// New はJSON形式で出力するロガーを生成する。全レコードにserviceを付与する。
func New(w io.Writer, service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("service", service)
}

// ParseLevel はログレベル名（debug, info, warn, error）を解釈する。空ならinfo。
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("未知のログレベルです: %q", name)
	}
}
