package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// newLogger 控制台 + 追加写日志文件；文件打不开只告警，不影响运行
func newLogger(cfg LogConfig) (zerolog.Logger, io.Closer) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	var (
		out     io.Writer = console
		closer  io.Closer = nopCloser{}
		fileErr error
	)
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fileErr = err
		} else {
			out = zerolog.MultiLevelWriter(console, f)
			closer = f
		}
	}

	logger := zerolog.New(out).With().Timestamp().Str("app", "ai-chatbot").Logger()
	if fileErr != nil {
		logger.Warn().Err(fileErr).Str("file", cfg.File).Msg("log file unavailable, console only")
	}
	return logger, closer
}

func component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

// logCost 记录阶段耗时并写入延迟直方图
func logCost(logger zerolog.Logger, stage string, start time.Time) {
	elapsed := time.Since(start)
	stageLatency.WithLabelValues(stage).Observe(elapsed.Seconds())
	logger.Debug().Str("stage", stage).Int64("elapsed_ms", elapsed.Milliseconds()).Msg("stage done")
}
