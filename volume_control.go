package main

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// amixerVolume 基于 amixer 设置 ALSA 输出音量
// 控件名随声卡不同（Speaker/Master/PCM/Headphone），由配置决定。
type amixerVolume struct {
	card    int // <0 表示默认声卡
	control string
}

func newAmixerVolume(cfg VolumeConfig) (*amixerVolume, error) {
	if strings.TrimSpace(cfg.Control) == "" {
		return nil, fmt.Errorf("volume.control must not be empty")
	}
	return &amixerVolume{card: cfg.Card, control: cfg.Control}, nil
}

func (a *amixerVolume) SetPercent(ctx context.Context, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("volume must be within 0..100, got %d", percent)
	}
	_, err := runAmixer(ctx, a.card, a.args(percent)...)
	return err
}

func (a *amixerVolume) args(percent int) []string {
	return []string{"sset", a.control, strconv.Itoa(percent) + "%"}
}

func runAmixer(ctx context.Context, card int, args ...string) (string, error) {
	cmdArgs := args
	if card >= 0 {
		cmdArgs = append([]string{"-c", strconv.Itoa(card)}, args...)
	}
	out, err := exec.CommandContext(ctx, "amixer", cmdArgs...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("amixer failed: %w, output=%s", err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}
