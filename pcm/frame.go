// Package pcm 处理 16-bit 单声道 PCM 帧：时间戳、字节编解码、抽取重采样与 WAV 落盘。
package pcm

import (
	"encoding/binary"
	"time"
)

// Frame 一块固定长度的单声道 S16 采样，生成后只读。
type Frame struct {
	Samples []int16
	Rate    int
	At      time.Time // 第一个采样点的采集时间
}

// Duration 按采样率换算的时长
func (f Frame) Duration() time.Duration {
	if f.Rate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.Rate)
}

// End 最后一个采样点之后的时刻
func (f Frame) End() time.Time { return f.At.Add(f.Duration()) }

func (f Frame) ByteLen() int { return len(f.Samples) * 2 }

// Concat 按到达顺序拼接
func Concat(frames []Frame) []int16 {
	n := 0
	for _, f := range frames {
		n += len(f.Samples)
	}
	out := make([]int16, 0, n)
	for _, f := range frames {
		out = append(out, f.Samples...)
	}
	return out
}

// Bytes 小端序编码（与 arecord -f S16_LE 一致）
func Bytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

// Int16s 小端序解码，奇数尾字节丢弃
func Int16s(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2 : i*2+2]))
	}
	return out
}

// Float32s 归一化到 [-1, 1)，给 onnx 模型用
func Float32s(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, v := range samples {
		out[i] = float32(v) / 32768
	}
	return out
}
