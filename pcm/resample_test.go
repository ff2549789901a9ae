package pcm

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecimateLengthAndIndex(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, k := range []int{1, 2, 3, 4, 6} {
		for _, n := range []int{0, 1, k - 1, k, 3840, 1001} {
			if n < 0 {
				continue
			}
			in := make([]int16, n)
			for i := range in {
				in[i] = int16(rng.Intn(65536) - 32768)
			}
			out := Decimate(in, k)
			require.Len(t, out, n/k, "k=%d n=%d", k, n)
			for i := range out {
				assert.Equal(t, in[i*k], out[i], "k=%d i=%d", k, i)
			}
		}
	}
}

func TestNewResamplerRejectsFractionalRatio(t *testing.T) {
	_, err := NewResampler(44100, 16000)
	assert.ErrorIs(t, err, ErrRatio)

	r, err := NewResampler(48000, 16000)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Factor())

	at := time.Unix(100, 0)
	f := r.Frame(make([]int16, 3840), at)
	assert.Len(t, f.Samples, 1280)
	assert.Equal(t, 16000, f.Rate)
	assert.Equal(t, 80*time.Millisecond, f.Duration())
	assert.Equal(t, at.Add(80*time.Millisecond), f.End())
}

func TestByteRoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768}
	assert.Equal(t, in, Int16s(Bytes(in)))
	assert.Len(t, Int16s([]byte{1, 2, 3}), 1)
}

func TestConcatKeepsOrder(t *testing.T) {
	got := Concat([]Frame{{Samples: []int16{1, 2}}, {Samples: []int16{3}}, {Samples: nil}})
	assert.Equal(t, []int16{1, 2, 3}, got)
}
