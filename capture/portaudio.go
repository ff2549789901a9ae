//go:build cgo

package capture

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
)

type portAudioSource struct {
	cfg    Config
	stream *portaudio.Stream
	in     []int16

	mu     sync.Mutex
	closed bool
}

func openPortAudio(cfg Config) (Source, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	in := make([]int16, cfg.BlockSize*cfg.Channels)

	var (
		stream *portaudio.Stream
		err    error
	)
	if cfg.Device == "" || cfg.Device == "default" {
		stream, err = portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.Rate), cfg.BlockSize, in)
	} else {
		var dev *portaudio.DeviceInfo
		dev, err = findInputDevice(cfg.Device)
		if err == nil {
			p := portaudio.LowLatencyParameters(dev, nil)
			p.Input.Channels = cfg.Channels
			p.SampleRate = float64(cfg.Rate)
			p.FramesPerBuffer = cfg.BlockSize
			stream, err = portaudio.OpenStream(p, in)
		}
	}
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("open input %q: %w", cfg.Device, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("start input stream: %w", err)
	}
	return &portAudioSource{cfg: cfg, stream: stream, in: in}, nil
}

func findInputDevice(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.MaxInputChannels > 0 && strings.Contains(d.Name, name) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no input device matching %q", name)
}

func (s *portAudioSource) Read() ([]int16, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if err := s.stream.Read(); err != nil {
		return nil, fmt.Errorf("read input stream: %w", err)
	}
	return ExtractChannel(s.in, s.cfg.Channels, s.cfg.Channel), nil
}

func (s *portAudioSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.stream.Stop()
	err := s.stream.Close()
	_ = portaudio.Terminate()
	return err
}
