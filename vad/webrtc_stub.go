//go:build !cgo

package vad

import "fmt"

// 没有 cgo（交叉编译/本地开发）时退回能量判定，aggressiveness 映射为阈值档位
func NewWebRTC(aggressiveness int) (Detector, error) {
	if aggressiveness < 0 || aggressiveness > 3 {
		return nil, fmt.Errorf("vad aggressiveness must be 0..3, got %d", aggressiveness)
	}
	return NewEnergy(DefaultEnergyThreshold * (1 + 0.25*float64(aggressiveness))), nil
}
