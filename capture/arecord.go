package capture

import (
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/shatrix/rpi5-rpios-ai-robot/pcm"
)

// arecordBin 测试里替换成假的录音进程
var arecordBin = "arecord"

// arecordSource 通过 arecord 子进程读原始 PCM，适合 portaudio 不认的 ALSA 设备
type arecordSource struct {
	cfg    Config
	cmd    *exec.Cmd
	stdout io.ReadCloser
	buf    []byte

	// readMu 覆盖一次完整的 Read；Close 拿到它之后才能 Wait
	readMu    sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func arecordArgs(cfg Config) []string {
	return []string{
		"-D", cfg.Device,
		"-c", strconv.Itoa(cfg.Channels),
		"-r", strconv.Itoa(cfg.Rate),
		"-f", "S16_LE",
		"-t", "raw",
		"-q",
		"--period-size=" + strconv.Itoa(cfg.BlockSize),
		"--buffer-size=" + strconv.Itoa(cfg.BlockSize*8),
	}
}

func openArecord(cfg Config) (Source, error) {
	cmd := exec.Command(arecordBin, arecordArgs(cfg)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("arecord stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start arecord on %s: %w", cfg.Device, err)
	}
	return &arecordSource{
		cfg:    cfg,
		cmd:    cmd,
		stdout: stdout,
		buf:    make([]byte, cfg.BlockSize*cfg.Channels*2),
	}, nil
}

func (s *arecordSource) Read() ([]int16, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if _, err := io.ReadFull(s.stdout, s.buf); err != nil {
		if s.closed.Load() {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("read arecord: %w", err)
	}
	return ExtractChannel(pcm.Int16s(s.buf), s.cfg.Channels, s.cfg.Channel), nil
}

// Close 先杀进程、关管道让阻塞的 Read 返回，等 Read 退出后再 Wait 回收
func (s *arecordSource) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		_ = s.stdout.Close()

		s.readMu.Lock()
		defer s.readMu.Unlock()
		err := s.cmd.Wait()
		if _, ok := err.(*exec.ExitError); ok {
			err = nil
		}
		s.closeErr = err
	})
	return s.closeErr
}
