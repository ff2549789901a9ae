package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/shatrix/rpi5-rpios-ai-robot/pcm"
	"github.com/shatrix/rpi5-rpios-ai-robot/vad"
)

// stopPolicy 录音结束条件；MaxDuration 在任何模式下都是上限
type stopPolicy struct {
	MaxDuration time.Duration
	Silence     time.Duration
	UseVAD      bool
}

type endpointReason string

const (
	endpointNone     endpointReason = ""
	endpointSilence  endpointReason = "silence"
	endpointMaxTime  endpointReason = "max_duration"
	endpointExternal endpointReason = "external_stop"
)

// vadTracker 把每块切成固定子帧逐个判定，不足一帧的尾巴留到下一块。
// held 期间（提示音还在响）子帧照常消费但不算人声。
type vadTracker struct {
	detector vad.Detector
	frameMs  int

	carry      []int16
	carryAt    time.Time
	held       bool
	speaking   bool
	lastSpeech time.Time

	errs    int
	lastErr error
}

func (v *vadTracker) observe(f pcm.Frame) {
	n := f.Rate * v.frameMs / 1000
	if n <= 0 {
		return
	}
	samples, at := f.Samples, f.At
	if len(v.carry) > 0 {
		joined := make([]int16, 0, len(v.carry)+len(f.Samples))
		samples = append(append(joined, v.carry...), f.Samples...)
		at = v.carryAt
	}
	step := time.Duration(n) * time.Second / time.Duration(f.Rate)
	for len(samples) >= n {
		sub := samples[:n]
		samples = samples[n:]
		at = at.Add(step)
		speech, err := v.detector.IsSpeech(sub, f.Rate)
		if err != nil {
			v.errs++
			v.lastErr = err
			vadErrors.Inc()
			continue
		}
		if speech && !v.held {
			v.speaking = true
			v.lastSpeech = at
		}
	}
	v.carry = append(v.carry[:0], samples...)
	v.carryAt = at
}

// recordingSession 一次录音；只在 Orchestrator 持锁时访问
type recordingSession struct {
	startedAt time.Time
	policy    stopPolicy
	frames    []pcm.Frame
	bytes     int
	vad       *vadTracker
}

func newRecordingSession(start time.Time, policy stopPolicy, detector vad.Detector, frameMs int) *recordingSession {
	s := &recordingSession{startedAt: start, policy: policy}
	if policy.UseVAD && detector != nil {
		s.vad = &vadTracker{detector: detector, frameMs: frameMs}
	}
	return s
}

// holdVAD 提示音播放期间暂停人声判定，只有计时策略仍然生效
func (s *recordingSession) holdVAD() {
	if s.vad != nil {
		s.vad.held = true
	}
}

func (s *recordingSession) releaseVAD() {
	if s.vad != nil {
		s.vad.held = false
	}
}

// vadFailures 本次录音里判定出错的子帧数和最后一个错误
func (s *recordingSession) vadFailures() (int, error) {
	if s.vad == nil {
		return 0, nil
	}
	return s.vad.errs, s.vad.lastErr
}

// Append 追加一块并判断是否到达端点
func (s *recordingSession) Append(f pcm.Frame) endpointReason {
	s.frames = append(s.frames, f)
	s.bytes += f.ByteLen()
	end := f.End()

	if s.vad != nil {
		s.vad.observe(f)
		if s.vad.speaking && end.Sub(s.vad.lastSpeech) >= s.policy.Silence {
			return endpointSilence
		}
	}
	if end.Sub(s.startedAt) >= s.policy.MaxDuration {
		return endpointMaxTime
	}
	return endpointNone
}

// Samples 拼接后按需抽取到识别采样率
func (s *recordingSession) Samples(sttRate int) ([]int16, error) {
	all := pcm.Concat(s.frames)
	if len(s.frames) == 0 || s.frames[0].Rate == sttRate {
		return all, nil
	}
	rate := s.frames[0].Rate
	if sttRate <= 0 || rate%sttRate != 0 {
		return nil, fmt.Errorf("recording rate %d -> stt rate %d: %w", rate, sttRate, pcm.ErrRatio)
	}
	return pcm.Decimate(all, rate/sttRate), nil
}

// artifactStore 录音临时文件，识别完即删
type artifactStore struct {
	fs  afero.Fs
	dir string
}

func newArtifactStore(fs afero.Fs, dir string) (*artifactStore, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recordings dir: %w", err)
	}
	return &artifactStore{fs: fs, dir: dir}, nil
}

func (a *artifactStore) Persist(samples []int16, rate int) (string, error) {
	name := fmt.Sprintf("recording_%s_%s.wav", time.Now().Format("20060102_150405"), uuid.NewString()[:8])
	path := filepath.Join(a.dir, name)
	f, err := a.fs.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	if err := pcm.WriteWAV(f, samples, rate); err != nil {
		f.Close()
		_ = a.fs.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}

func (a *artifactStore) Remove(path string) {
	_ = a.fs.Remove(path)
}
