package main

import "time"

// InteractionState 交互状态，只有 Orchestrator 可以写
type InteractionState int

const (
	StateIdle InteractionState = iota
	StateWakeListening
	StateWakeDetected
	StateListening
	StateTranscribing
	StateAnswering
	StateSpeaking
	StateCamera
)

var stateNames = [...]string{
	StateIdle:          "idle",
	StateWakeListening: "wake_listening",
	StateWakeDetected:  "wake_detected",
	StateListening:     "listening",
	StateTranscribing:  "transcribing",
	StateAnswering:     "answering",
	StateSpeaking:      "speaking",
	StateCamera:        "camera",
}

func (s InteractionState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// in 判断是否属于给定的来源状态
func (s InteractionState) in(from ...InteractionState) bool {
	for _, f := range from {
		if s == f {
			return true
		}
	}
	return false
}

// Tunables 可热更新的运行参数
type Tunables struct {
	WakeEnabled         bool
	Threshold           float64
	VADEnabled          bool
	SilenceThreshold    time.Duration
	MaxRecording        time.Duration
	Cooldown            time.Duration
	RecognitionCooldown time.Duration
	MinRecordingBytes   int
	HistoryTimeout      time.Duration
	MaxHistory          int
}

// Status STATUS 请求的快照
type Status struct {
	State           string `json:"state"`
	HistoryLength   int    `json:"history_length"`
	WakeWordEnabled bool   `json:"wake_word_enabled"`
}

// SpotGate 每块音频给监听循环的判定：是否喂模型、是否可以采纳结果
type SpotGate struct {
	Feed      bool
	Act       bool
	Threshold float64
}
