//go:build cgo

package vad

import (
	"fmt"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"github.com/shatrix/rpi5-rpios-ai-robot/pcm"
)

// WebRTC 包装 libfvad，aggressiveness 0~3 越大越激进
type WebRTC struct {
	v *webrtcvad.VAD
}

func NewWebRTC(aggressiveness int) (Detector, error) {
	if aggressiveness < 0 || aggressiveness > 3 {
		return nil, fmt.Errorf("vad aggressiveness must be 0..3, got %d", aggressiveness)
	}
	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("create webrtc vad: %w", err)
	}
	if err := v.SetMode(aggressiveness); err != nil {
		return nil, fmt.Errorf("set vad mode: %w", err)
	}
	return &WebRTC{v: v}, nil
}

func (w *WebRTC) IsSpeech(frame []int16, rate int) (bool, error) {
	buf := pcm.Bytes(frame)
	if !w.v.ValidRateAndFrameLength(rate, len(frame)) {
		return false, fmt.Errorf("invalid vad frame: rate=%d samples=%d", rate, len(frame))
	}
	return w.v.Process(rate, buf)
}
