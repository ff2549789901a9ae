package main

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Camera 拍一张静态图，返回文件路径
type Camera interface {
	Capture(ctx context.Context) (string, error)
}

// stillCamera 调用 rpicam-still（新系统）或 libcamera-still（旧系统）
type stillCamera struct {
	bin           string
	dir           string
	width, height int
	rotation      int
	timeout       time.Duration
	fs            afero.Fs
	logger        zerolog.Logger
}

var errNoCameraTool = errors.New("neither rpicam-still nor libcamera-still found")

func findStillTool(lookPath func(string) (string, error)) (string, error) {
	for _, name := range []string{"rpicam-still", "libcamera-still"} {
		if p, err := lookPath(name); err == nil {
			return p, nil
		}
	}
	return "", errNoCameraTool
}

func newStillCamera(cfg CameraConfig, fs afero.Fs, logger zerolog.Logger) (*stillCamera, error) {
	bin, err := findStillTool(exec.LookPath)
	if err != nil {
		return nil, err
	}
	w, h, err := cfg.Size()
	if err != nil {
		return nil, err
	}
	if err := fs.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create camera dir: %w", err)
	}
	timeout := seconds(cfg.Timeout)
	if timeout <= 0 {
		timeout = cameraTimeout
	}
	return &stillCamera{
		bin: bin, dir: cfg.Dir, width: w, height: h, rotation: cfg.Rotation,
		timeout: timeout, fs: fs, logger: logger,
	}, nil
}

func (c *stillCamera) args(out string) []string {
	return []string{
		"-o", out,
		"-t", "1000",
		"--width", strconv.Itoa(c.width),
		"--height", strconv.Itoa(c.height),
		"--rotation", strconv.Itoa(c.rotation),
		"--nopreview",
	}
}

func (c *stillCamera) Capture(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out := filepath.Join(c.dir, "capture_"+time.Now().Format("20060102_150405")+".jpg")
	start := time.Now()
	if msg, err := exec.CommandContext(ctx, c.bin, c.args(out)...).CombinedOutput(); err != nil {
		return "", fmt.Errorf("%s failed: %w, output=%s", filepath.Base(c.bin), err, clip(string(msg), 200))
	}
	if ok, _ := afero.Exists(c.fs, out); !ok {
		return "", fmt.Errorf("camera produced no image at %s", out)
	}
	logCost(c.logger, "camera", start)
	return out, nil
}
