//go:build !cgo

package capture

import "errors"

func openPortAudio(Config) (Source, error) {
	return nil, errors.New("portaudio backend needs cgo, use audio.source=arecord")
}
