package main

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindStillToolPrefersRpicam(t *testing.T) {
	only := func(names ...string) func(string) (string, error) {
		return func(name string) (string, error) {
			for _, n := range names {
				if n == name {
					return "/usr/bin/" + name, nil
				}
			}
			return "", exec.ErrNotFound
		}
	}

	bin, err := findStillTool(only("rpicam-still", "libcamera-still"))
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/rpicam-still", bin)

	bin, err = findStillTool(only("libcamera-still"))
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/libcamera-still", bin)

	_, err = findStillTool(only())
	assert.ErrorIs(t, err, errNoCameraTool)
}

func TestStillCameraArgs(t *testing.T) {
	c := &stillCamera{width: 640, height: 480, rotation: 180}
	assert.Equal(t,
		[]string{"-o", "/tmp/x.jpg", "-t", "1000", "--width", "640", "--height", "480", "--rotation", "180", "--nopreview"},
		c.args("/tmp/x.jpg"))
}

func TestAmixerRejectsOutOfRange(t *testing.T) {
	v, err := newAmixerVolume(VolumeConfig{Card: 2, Control: "Speaker"})
	require.NoError(t, err)
	assert.Error(t, v.SetPercent(context.Background(), 101))
	assert.Error(t, v.SetPercent(context.Background(), -1))
}

func TestAplayerArgs(t *testing.T) {
	assert.Equal(t, []string{"-q"}, newAplayer("auto", zerolog.Nop()).baseArgs())
	assert.Equal(t, []string{"-q", "-D", "plughw:1,0"}, newAplayer("plughw:1,0", zerolog.Nop()).baseArgs())
}

func TestFeedbackChimeLoading(t *testing.T) {
	fs := afero.NewMemMapFs()

	chime, err := loadFeedbackChime(fs, "", nil)
	require.NoError(t, err)
	assert.Nil(t, chime)
	assert.NoError(t, chime.PlayFeedback(context.Background()))

	_, err = loadFeedbackChime(fs, "/usr/share/sounds/wake.wav", nil)
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(fs, "/usr/share/sounds/wake.mp3", []byte("not an mp3"), 0o644))
	_, err = loadFeedbackChime(fs, "/usr/share/sounds/wake.mp3", nil)
	assert.Error(t, err)
}

func TestCommandSpeaker(t *testing.T) {
	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("true not available")
	}
	s, err := newSpeaker(TTSConfig{Backend: "command", Command: "true", Timeout: 2}, nil, zerolog.Nop())
	require.NoError(t, err)
	assert.NoError(t, s.Speak(context.Background(), "hello"))

	failing := &commandSpeaker{command: "false", timeout: time.Second, logger: zerolog.Nop()}
	err = failing.Speak(context.Background(), "hello")
	var exitErr *exec.ExitError
	assert.True(t, errors.As(err, &exitErr))

	_, err = newSpeaker(TTSConfig{Backend: "festival"}, nil, zerolog.Nop())
	assert.Error(t, err)
}
