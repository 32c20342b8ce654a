package logger

import (
	"log/slog"
	"os"
	"strings"
)

// NewDefault 创建默认的文本格式 slog 日志记录器。
//
// 参数:
//
//	level: 日志级别字符串（debug / info / warn / error，默认 info）
func NewDefault(level string) *slog.Logger {
	var lv slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lv = slog.LevelDebug
	case "warn", "warning":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lv})
	return slog.New(handler)
}
