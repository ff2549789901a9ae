package main

import (
	"strings"
	"time"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// seconds 配置里的秒数（可带小数）转 Duration
func seconds(v float64) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}

// clip 截断过长文本用于日志
func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
