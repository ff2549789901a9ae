package main

import (
	"sort"
	"time"
)

// WakeEvent 唤醒事件
type WakeEvent struct {
	Phrase string
	Score  float64
	At     time.Time
}

// WakeWordModel 每块音频返回各唤醒词的置信度（0~1）
type WakeWordModel interface {
	Predict(samples []int16, rate int) (map[string]float64, error)
}

// bestScore 取最高分，同分按名字排序保证稳定
func bestScore(scores map[string]float64) (string, float64) {
	names := make([]string, 0, len(scores))
	for k := range scores {
		names = append(names, k)
	}
	sort.Strings(names)
	best, top := "", 0.0
	for _, n := range names {
		if s := scores[n]; best == "" || s > top {
			best, top = n, s
		}
	}
	return best, top
}
