// Package vad 逐子帧判定是否有人声。
package vad

import (
	"fmt"
	"math"
)

// Detector 对 10/20/30ms 子帧做人声判定
type Detector interface {
	IsSpeech(frame []int16, rate int) (bool, error)
}

// DefaultEnergyThreshold 经验值，安静房间下 USB 麦克风底噪 RMS 一般在 100~300
const DefaultEnergyThreshold = 1000.0

// Energy 基于均方根能量的判定，没有 cgo 时的回退实现
type Energy struct {
	Threshold float64
}

func NewEnergy(threshold float64) *Energy {
	if threshold <= 0 {
		threshold = DefaultEnergyThreshold
	}
	return &Energy{Threshold: threshold}
}

func (e *Energy) IsSpeech(frame []int16, rate int) (bool, error) {
	if len(frame) == 0 {
		return false, nil
	}
	return RMS(frame) > e.Threshold, nil
}

func RMS(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}

// FrameSamples 子帧时长对应的采样点数，只接受 10/20/30ms
func FrameSamples(rate, frameMs int) (int, error) {
	switch frameMs {
	case 10, 20, 30:
	default:
		return 0, fmt.Errorf("vad frame must be 10, 20 or 30 ms, got %d", frameMs)
	}
	return rate * frameMs / 1000, nil
}
