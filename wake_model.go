package main

import (
	"fmt"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
	"github.com/spf13/afero"

	"github.com/shatrix/rpi5-rpios-ai-robot/pcm"
)

// keywordSpotter sherpa-onnx 关键词检测，命中的关键词置信度记为 1
type keywordSpotter struct {
	mu      sync.Mutex
	spotter *sherpa.KeywordSpotter
	stream  *sherpa.OnlineStream
}

func newKeywordSpotter(cfg WakeWordConfig, rate int, fs afero.Fs) (*keywordSpotter, error) {
	for _, p := range []string{cfg.Encoder, cfg.Decoder, cfg.Joiner, cfg.Tokens, cfg.KeywordsFile} {
		if ok, _ := afero.Exists(fs, p); !ok {
			return nil, fmt.Errorf("wake word model file %s not found", p)
		}
	}
	c := sherpa.KeywordSpotterConfig{}
	c.FeatConfig.SampleRate = rate
	c.FeatConfig.FeatureDim = 80
	c.ModelConfig.Transducer.Encoder = cfg.Encoder
	c.ModelConfig.Transducer.Decoder = cfg.Decoder
	c.ModelConfig.Transducer.Joiner = cfg.Joiner
	c.ModelConfig.Tokens = cfg.Tokens
	c.ModelConfig.NumThreads = max(cfg.NumThreads, 1)
	c.ModelConfig.Provider = "cpu"
	c.KeywordsFile = cfg.KeywordsFile
	c.KeywordsThreshold = float32(cfg.KeywordsThreshold)
	c.KeywordsScore = float32(cfg.KeywordsScore)
	c.MaxActivePaths = 4

	spotter := sherpa.NewKeywordSpotter(&c)
	if spotter == nil {
		return nil, fmt.Errorf("load keyword spotter %s", cfg.Encoder)
	}
	return &keywordSpotter{spotter: spotter, stream: sherpa.NewKeywordStream(spotter)}, nil
}

func (k *keywordSpotter) Predict(samples []int16, rate int) (map[string]float64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.spotter == nil {
		return nil, fmt.Errorf("keyword spotter closed")
	}
	k.stream.AcceptWaveform(rate, pcm.Float32s(samples))
	scores := map[string]float64{}
	for k.spotter.IsReady(k.stream) {
		k.spotter.Decode(k.stream)
		if kw := k.spotter.GetResult(k.stream).Keyword; kw != "" {
			scores[kw] = 1
			k.spotter.Reset(k.stream)
		}
	}
	return scores, nil
}

func (k *keywordSpotter) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.spotter == nil {
		return
	}
	sherpa.DeleteOnlineStream(k.stream)
	sherpa.DeleteKeywordSpotter(k.spotter)
	k.spotter, k.stream = nil, nil
}
