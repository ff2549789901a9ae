package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/shatrix/rpi5-rpios-ai-robot/pcm"
)

// Transcriber 读取单声道 16-bit WAV，返回识别文本（可能为空）
type Transcriber interface {
	Transcribe(ctx context.Context, wavPath string) (string, error)
}

func newTranscriber(cfg STTConfig, fs afero.Fs, logger zerolog.Logger) (Transcriber, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "sherpa":
		return newSherpaTranscriber(cfg, fs, logger)
	case "dashscope":
		return newDashScopeTranscriber(cfg, fs, logger)
	default:
		return nil, fmt.Errorf("unknown stt backend %q", cfg.Backend)
	}
}

func readWAVSamples(fs afero.Fs, path string) ([]int16, int, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	return pcm.ReadWAV(f)
}

// ================= 本地识别（sherpa-onnx whisper） =================

type sherpaTranscriber struct {
	mu     sync.Mutex
	rec    *sherpa.OfflineRecognizer
	fs     afero.Fs
	logger zerolog.Logger
}

func newSherpaTranscriber(cfg STTConfig, fs afero.Fs, logger zerolog.Logger) (*sherpaTranscriber, error) {
	for _, p := range []string{cfg.Encoder, cfg.Decoder, cfg.Tokens} {
		if ok, _ := afero.Exists(fs, p); !ok {
			return nil, fmt.Errorf("stt model file %s not found", p)
		}
	}
	c := sherpa.OfflineRecognizerConfig{}
	c.FeatConfig.SampleRate = cfg.SampleRate
	c.FeatConfig.FeatureDim = 80
	c.ModelConfig.Whisper.Encoder = cfg.Encoder
	c.ModelConfig.Whisper.Decoder = cfg.Decoder
	c.ModelConfig.Whisper.Language = cfg.Language
	c.ModelConfig.Whisper.Task = "transcribe"
	c.ModelConfig.Tokens = cfg.Tokens
	c.ModelConfig.NumThreads = cfg.NumThreads
	c.ModelConfig.Provider = "cpu"
	c.DecodingMethod = "greedy_search"

	rec := sherpa.NewOfflineRecognizer(&c)
	if rec == nil {
		return nil, fmt.Errorf("load stt model %s", cfg.Encoder)
	}
	return &sherpaTranscriber{rec: rec, fs: fs, logger: logger}, nil
}

func (t *sherpaTranscriber) Transcribe(ctx context.Context, wavPath string) (string, error) {
	samples, rate, err := readWAVSamples(t.fs, wavPath)
	if err != nil {
		return "", fmt.Errorf("load recording: %w", err)
	}
	start := time.Now()
	done := make(chan string, 1)
	go func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		stream := sherpa.NewOfflineStream(t.rec)
		defer sherpa.DeleteOfflineStream(stream)
		stream.AcceptWaveform(rate, pcm.Float32s(samples))
		t.rec.Decode(stream)
		done <- strings.TrimSpace(stream.GetResult().Text)
	}()
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("stt: %w", ctx.Err())
	case text := <-done:
		logCost(t.logger, "stt", start)
		return text, nil
	}
}

func (t *sherpaTranscriber) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rec != nil {
		sherpa.DeleteOfflineRecognizer(t.rec)
		t.rec = nil
	}
}

// ================= 云端识别（DashScope 实时 ASR） =================

const asrChunkBytes = 3200

type dashScopeTranscriber struct {
	url    string
	apiKey string
	model  string
	fs     afero.Fs
	dialer websocket.Dialer
	logger zerolog.Logger
}

func newDashScopeTranscriber(cfg STTConfig, fs afero.Fs, logger zerolog.Logger) (*dashScopeTranscriber, error) {
	if strings.TrimSpace(cfg.DashScopeAPIKey) == "" {
		return nil, errors.New("stt.dashscope_api_key is required for the dashscope backend")
	}
	return &dashScopeTranscriber{
		url:    cfg.DashScopeURL,
		apiKey: cfg.DashScopeAPIKey,
		model:  cfg.DashScopeModel,
		fs:     fs,
		dialer: websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		logger: logger,
	}, nil
}

type asrHeader struct {
	TaskID       string `json:"task_id,omitempty"`
	Action       string `json:"action,omitempty"`
	Streaming    string `json:"streaming,omitempty"`
	Event        string `json:"event,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type asrEvent struct {
	Header  asrHeader `json:"header"`
	Payload struct {
		Output struct {
			Sentence struct {
				Text    string `json:"text"`
				EndTime *int   `json:"end_time"`
			} `json:"sentence"`
		} `json:"output"`
	} `json:"payload"`
}

func (t *dashScopeTranscriber) Transcribe(ctx context.Context, wavPath string) (string, error) {
	samples, rate, err := readWAVSamples(t.fs, wavPath)
	if err != nil {
		return "", fmt.Errorf("load recording: %w", err)
	}
	data := pcm.Bytes(samples)

	headers := http.Header{}
	headers.Add("Authorization", "Bearer "+t.apiKey)
	conn, _, err := t.dialer.DialContext(ctx, t.url, headers)
	if err != nil {
		return "", fmt.Errorf("dial asr: %w", err)
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(dl)
		_ = conn.SetWriteDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	start := time.Now()
	id := uuid.New().String()
	if err := conn.WriteJSON(map[string]any{
		"header": asrHeader{TaskID: id, Action: "run-task", Streaming: "duplex"},
		"payload": map[string]any{
			"task_group": "audio", "task": "asr", "function": "recognition", "model": t.model,
			"parameters": map[string]any{"format": "pcm", "sample_rate": rate},
			"input":      map[string]any{},
		},
	}); err != nil {
		return "", fmt.Errorf("asr run-task: %w", err)
	}
	for i := 0; i < len(data); i += asrChunkBytes {
		end := min(i+asrChunkBytes, len(data))
		if err := conn.WriteMessage(websocket.BinaryMessage, data[i:end]); err != nil {
			return "", fmt.Errorf("asr send audio: %w", err)
		}
	}
	if err := conn.WriteJSON(map[string]any{
		"header":  asrHeader{TaskID: id, Action: "finish-task", Streaming: "duplex"},
		"payload": map[string]any{"input": map[string]any{}},
	}); err != nil {
		return "", fmt.Errorf("asr finish-task: %w", err)
	}

	var sentences []string
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("asr: %w", ctx.Err())
			}
			return "", fmt.Errorf("asr read: %w", err)
		}
		var ev asrEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			continue
		}
		switch ev.Header.Event {
		case "result-generated":
			// end_time 非空表示一句话结束
			if s := ev.Payload.Output.Sentence; s.EndTime != nil && strings.TrimSpace(s.Text) != "" {
				sentences = append(sentences, strings.TrimSpace(s.Text))
			}
		case "task-failed":
			return "", fmt.Errorf("asr task failed: %s", ev.Header.ErrorMessage)
		case "task-finished":
			logCost(t.logger, "stt", start)
			return strings.Join(sentences, " "), nil
		}
	}
}
