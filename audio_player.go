package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hajimehoshi/go-mp3"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// aplayer 通过 aplay 播放，设备为空或 auto 时用系统默认
type aplayer struct {
	device string
	logger zerolog.Logger
}

func newAplayer(device string, logger zerolog.Logger) *aplayer {
	if device == "auto" {
		device = ""
	}
	return &aplayer{device: device, logger: logger}
}

func (p *aplayer) baseArgs() []string {
	args := []string{"-q"}
	if p.device != "" {
		args = append(args, "-D", p.device)
	}
	return args
}

func (p *aplayer) PlayFile(ctx context.Context, path string) error {
	args := append(p.baseArgs(), path)
	if out, err := exec.CommandContext(ctx, "aplay", args...).CombinedOutput(); err != nil {
		return fmt.Errorf("aplay %s: %w, output=%s", filepath.Base(path), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// PlayPCM 原始 S16_LE 数据经 stdin 喂给 aplay
func (p *aplayer) PlayPCM(ctx context.Context, data []byte, rate, channels int) error {
	args := append(p.baseArgs(), "-t", "raw", "-f", "S16_LE",
		"-r", strconv.Itoa(rate), "-c", strconv.Itoa(channels))
	cmd := exec.CommandContext(ctx, "aplay", args...)
	cmd.Stdin = bytes.NewReader(data)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("aplay raw: %w, output=%s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// FeedbackPlayer 唤醒提示音
type FeedbackPlayer interface {
	PlayFeedback(ctx context.Context) error
}

// feedbackChime mp3 启动时解码成 PCM 常驻内存，wav 直接交给 aplay
type feedbackChime struct {
	player *aplayer
	path   string
	pcm    []byte
	rate   int
}

func loadFeedbackChime(fs afero.Fs, path string, player *aplayer) (*feedbackChime, error) {
	if path == "" {
		return nil, nil
	}
	chime := &feedbackChime{player: player, path: path}
	if !strings.EqualFold(filepath.Ext(path), ".mp3") {
		if ok, _ := afero.Exists(fs, path); !ok {
			return nil, fmt.Errorf("feedback sound %s not found", path)
		}
		return chime, nil
	}
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feedback sound: %w", err)
	}
	defer f.Close()
	pcm, rate, err := decodeMP3(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	chime.pcm, chime.rate = pcm, rate
	return chime, nil
}

// decodeMP3 输出固定为 16-bit 小端双声道
func decodeMP3(r io.Reader) ([]byte, int, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, 0, err
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, err
	}
	return pcm, dec.SampleRate(), nil
}

func (c *feedbackChime) PlayFeedback(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if c.pcm != nil {
		return c.player.PlayPCM(ctx, c.pcm, c.rate, 2)
	}
	return c.player.PlayFile(ctx, c.path)
}
