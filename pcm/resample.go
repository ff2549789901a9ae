package pcm

import (
	"errors"
	"fmt"
	"time"
)

// ErrRatio 原生采样率不是目标采样率的整数倍
var ErrRatio = errors.New("native rate is not an integer multiple of target rate")

// Decimate 整数倍抽取：输出长度 floor(N/k)，out[i] = in[i*k]。
// 不做抗混叠滤波，语音 16k 下够用。
func Decimate(samples []int16, k int) []int16 {
	if k <= 1 {
		out := make([]int16, len(samples))
		copy(out, samples)
		return out
	}
	out := make([]int16, len(samples)/k)
	for i := range out {
		out[i] = samples[i*k]
	}
	return out
}

// Resampler 固定比例的抽取器
type Resampler struct {
	from, to int
	factor   int
}

func NewResampler(nativeRate, targetRate int) (*Resampler, error) {
	if nativeRate <= 0 || targetRate <= 0 {
		return nil, fmt.Errorf("invalid rates %d -> %d", nativeRate, targetRate)
	}
	if nativeRate%targetRate != 0 {
		return nil, fmt.Errorf("%d -> %d: %w", nativeRate, targetRate, ErrRatio)
	}
	return &Resampler{from: nativeRate, to: targetRate, factor: nativeRate / targetRate}, nil
}

func (r *Resampler) Factor() int     { return r.factor }
func (r *Resampler) TargetRate() int { return r.to }

// Frame 抽取一块原生采样并打上时间戳
func (r *Resampler) Frame(native []int16, at time.Time) Frame {
	return Frame{Samples: Decimate(native, r.factor), Rate: r.to, At: at}
}
