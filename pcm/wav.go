package pcm

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var errInvalidWAV = errors.New("not a valid wav file")

// WriteWAV 写单声道 16-bit PCM WAV
func WriteWAV(w io.WriteSeeker, samples []int16, rate int) error {
	enc := wav.NewEncoder(w, rate, 16, 1, 1)
	data := make([]int, len(samples))
	for i, v := range samples {
		data[i] = int(v)
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	return enc.Close()
}

// ReadWAV 读 16-bit WAV，多声道时只取第一声道
func ReadWAV(r io.ReadSeeker) ([]int16, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, errInvalidWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}
	if dec.BitDepth != 16 {
		return nil, 0, fmt.Errorf("unsupported bit depth %d", dec.BitDepth)
	}
	ch := int(dec.NumChans)
	if ch < 1 {
		ch = 1
	}
	out := make([]int16, len(buf.Data)/ch)
	for i := range out {
		out[i] = int16(buf.Data[i*ch])
	}
	return out, int(dec.SampleRate), nil
}
