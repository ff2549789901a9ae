package main

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
	"github.com/rs/zerolog"

	"github.com/shatrix/rpi5-rpios-ai-robot/pcm"
)

// Speaker 把文本合成并播放完才返回
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

func newSpeaker(cfg TTSConfig, player *aplayer, logger zerolog.Logger) (Speaker, error) {
	timeout := seconds(cfg.Timeout)
	if timeout <= 0 {
		timeout = ttsTimeout
	}
	switch strings.ToLower(cfg.Backend) {
	case "", "command":
		cmd := strings.TrimSpace(cfg.Command)
		if cmd == "" {
			cmd = "speak"
		}
		return &commandSpeaker{command: cmd, timeout: timeout, logger: logger}, nil
	case "sherpa":
		return newSherpaSpeaker(cfg, player, timeout, logger)
	default:
		return nil, fmt.Errorf("unknown tts backend %q", cfg.Backend)
	}
}

// commandSpeaker 外部命令（Piper 的 speak 包装脚本），文本作为唯一参数
type commandSpeaker struct {
	command string
	timeout time.Duration
	logger  zerolog.Logger
}

func (s *commandSpeaker) Speak(ctx context.Context, text string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	out, err := exec.CommandContext(ctx, s.command, text).CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("tts timed out after %s", s.timeout)
	}
	if err != nil {
		return fmt.Errorf("%s failed: %w, output=%s", s.command, err, clip(string(out), 200))
	}
	logCost(s.logger, "tts", start)
	return nil
}

// sherpaSpeaker 本地 VITS/Piper onnx 模型合成，aplay 播放
type sherpaSpeaker struct {
	mu      sync.Mutex
	tts     *sherpa.OfflineTts
	sid     int
	speed   float32
	timeout time.Duration
	player  *aplayer
	logger  zerolog.Logger
}

func newSherpaSpeaker(cfg TTSConfig, player *aplayer, timeout time.Duration, logger zerolog.Logger) (*sherpaSpeaker, error) {
	if cfg.Model == "" || cfg.Tokens == "" {
		return nil, errors.New("tts.model and tts.tokens are required for the sherpa backend")
	}
	c := sherpa.OfflineTtsConfig{}
	c.Model.Vits.Model = cfg.Model
	c.Model.Vits.Tokens = cfg.Tokens
	c.Model.Vits.DataDir = cfg.DataDir
	c.Model.NumThreads = 1
	c.Model.Provider = "cpu"
	c.MaxNumSentences = 1

	tts := sherpa.NewOfflineTts(&c)
	if tts == nil {
		return nil, fmt.Errorf("load tts model %s", cfg.Model)
	}
	speed := float32(cfg.Speed)
	if speed <= 0 {
		speed = 1
	}
	return &sherpaSpeaker{tts: tts, sid: cfg.SpeakerID, speed: speed, timeout: timeout, player: player, logger: logger}, nil
}

func (s *sherpaSpeaker) Speak(ctx context.Context, text string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	s.mu.Lock()
	audio := s.tts.Generate(text, s.sid, s.speed)
	s.mu.Unlock()
	if audio == nil || len(audio.Samples) == 0 {
		return errors.New("tts produced no audio")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	samples := make([]int16, len(audio.Samples))
	for i, v := range audio.Samples {
		samples[i] = int16(clampFloat(v) * 32767)
	}
	logCost(s.logger, "tts_generate", start)
	return s.player.PlayPCM(ctx, pcm.Bytes(samples), audio.SampleRate, 1)
}

func (s *sherpaSpeaker) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tts != nil {
		sherpa.DeleteOfflineTts(s.tts)
		s.tts = nil
	}
}

func clampFloat(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
