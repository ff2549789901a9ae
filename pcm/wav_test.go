package pcm

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWAVOnMemFs(t *testing.T) {
	fs := afero.NewMemMapFs()
	samples := []int16{0, 100, -100, 32000, -32000, 7}

	require.NoError(t, fs.MkdirAll("/rec", 0o755))
	f, err := fs.Create("/rec/a.wav")
	require.NoError(t, err)
	require.NoError(t, WriteWAV(f, samples, 16000))
	require.NoError(t, f.Close())

	st, err := fs.Stat("/rec/a.wav")
	require.NoError(t, err)
	assert.Greater(t, st.Size(), int64(len(samples)*2))

	r, err := fs.Open("/rec/a.wav")
	require.NoError(t, err)
	defer r.Close()
	got, rate, err := ReadWAV(r)
	require.NoError(t, err)
	assert.Equal(t, 16000, rate)
	assert.Equal(t, samples, got)
}

func TestReadWAVRejectsGarbage(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/x.wav", []byte("definitely not riff"), 0o644))
	f, err := fs.Open("/x.wav")
	require.NoError(t, err)
	defer f.Close()
	_, _, err = ReadWAV(f)
	assert.Error(t, err)
}
