package capture

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractChannel(t *testing.T) {
	interleaved := []int16{1, 10, 100, 2, 20, 200, 3, 30, 300}
	assert.Equal(t, []int16{1, 2, 3}, ExtractChannel(interleaved, 3, 0))
	assert.Equal(t, []int16{100, 200, 300}, ExtractChannel(interleaved, 3, 2))

	mono := []int16{5, 6}
	got := ExtractChannel(mono, 1, 0)
	require.Equal(t, mono, got)
	got[0] = 9
	assert.Equal(t, int16(5), mono[0])
}

func TestConfigValidate(t *testing.T) {
	ok := Config{Rate: 48000, BlockSize: 3840, Channels: 2, Channel: 1}
	assert.NoError(t, ok.validate())

	bad := ok
	bad.Channel = 2
	assert.Error(t, bad.validate())

	bad = ok
	bad.BlockSize = 0
	assert.Error(t, bad.validate())
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(Config{Backend: "pulse", Rate: 16000, BlockSize: 1280, Channels: 1})
	assert.ErrorContains(t, err, "unknown audio backend")
}

func TestArecordArgs(t *testing.T) {
	args := arecordArgs(Config{Device: "plughw:2,0", Rate: 16000, BlockSize: 1280, Channels: 1})
	assert.Contains(t, args, "plughw:2,0")
	assert.Contains(t, args, "S16_LE")
	assert.Contains(t, args, "--period-size=1280")
}

// fakeArecord 换成一个不出数据的子进程，Read 会一直阻塞
func fakeArecord(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	script := filepath.Join(t.TempDir(), "arecord")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexec sleep 30\n"), 0o755))
	old := arecordBin
	arecordBin = script
	t.Cleanup(func() { arecordBin = old })
}

func TestArecordCloseUnblocksRead(t *testing.T) {
	fakeArecord(t)
	src, err := Open(Config{Backend: "arecord", Device: "hw:0", Rate: 16000, BlockSize: 320, Channels: 1})
	require.NoError(t, err)

	readErr := make(chan error, 1)
	go func() {
		_, err := src.Read()
		readErr <- err
	}()
	time.Sleep(50 * time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- src.Close() }()
	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("close did not return while a read was blocked")
	}
	select {
	case err := <-readErr:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("read still blocked after close")
	}

	assert.NoError(t, src.Close())
	_, err = src.Read()
	assert.ErrorIs(t, err, ErrClosed)
}
