package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/gSa1fe/isusP-sub000/internal/config"

	"github.com/charmbracelet/log"
)

// Setup 初始化全局 slog，底层使用 charmbracelet/log 输出
func Setup(cfg *config.LogConfig) *slog.Logger {
	return New(os.Stdout, cfg)
}

func New(w io.Writer, cfg *config.LogConfig) *slog.Logger {
	formatter := log.TextFormatter
	if strings.EqualFold(cfg.Format, "json") {
		formatter = log.JSONFormatter
	}

	handler := log.NewWithOptions(w, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		TimeFormat:      cfg.TimeFormat,
		Level:           parseLevel(cfg.Level),
		Prefix:          cfg.Prefix,
		Formatter:       formatter,
	})

	l := slog.New(handler)
	slog.SetDefault(l)
	return l
}

func parseLevel(level string) log.Level {
	lv, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		return log.InfoLevel
	}
	return lv
}
