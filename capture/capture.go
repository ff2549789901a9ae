// Package capture 打开唯一的麦克风设备，按固定块大小产出原生采样率的单声道 S16 采样。
package capture

import (
	"errors"
	"fmt"
	"strings"
)

// Source 单一音频输入；Read 阻塞直到凑满一块
type Source interface {
	Read() ([]int16, error)
	Close() error
}

// Config 设备参数
type Config struct {
	Backend   string // portaudio | arecord
	Device    string // "default"、ALSA 名（plughw:2,0）或 PortAudio 设备名片段
	Rate      int
	BlockSize int // 每块单声道采样点数
	Channels  int // 设备实际通道数
	Channel   int // 取第几个通道作为单声道
}

var ErrClosed = errors.New("audio source closed")

func (c Config) validate() error {
	if c.Rate <= 0 {
		return fmt.Errorf("invalid sample rate %d", c.Rate)
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("invalid block size %d", c.BlockSize)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("invalid channel count %d", c.Channels)
	}
	if c.Channel < 0 || c.Channel >= c.Channels {
		return fmt.Errorf("channel %d out of range 0..%d", c.Channel, c.Channels-1)
	}
	return nil
}

// Open 按 backend 打开设备，设备打不开属于启动期致命错误
func Open(cfg Config) (Source, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "portaudio":
		return openPortAudio(cfg)
	case "arecord":
		return openArecord(cfg)
	default:
		return nil, fmt.Errorf("unknown audio backend %q", cfg.Backend)
	}
}

// ExtractChannel 从交错多通道数据中取出一个通道
func ExtractChannel(interleaved []int16, channels, channel int) []int16 {
	if channels <= 1 {
		out := make([]int16, len(interleaved))
		copy(out, interleaved)
		return out
	}
	n := len(interleaved) / channels
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = interleaved[i*channels+channel]
	}
	return out
}
