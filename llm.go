package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Inference 对话推理，可带工具声明和图片
type Inference interface {
	Chat(ctx context.Context, req ChatRequest) (ChatReply, error)
}

type ChatRequest struct {
	Messages []Message
	Tools    []ToolSpec
}

type ChatReply struct {
	Text  string
	Calls []ToolCall
}

type ToolCall struct {
	Name      string
	Arguments map[string]any
}

type ollamaOptions struct {
	NumCtx      int     `json:"num_ctx,omitempty"`
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// ollamaClient 调用 Ollama /api/chat（非流式）
type ollamaClient struct {
	baseURL string
	model   string
	options ollamaOptions
	timeout time.Duration
	http    *http.Client
	logger  zerolog.Logger
}

func newOllamaClient(host, model string, opts ollamaOptions, timeout time.Duration, logger zerolog.Logger) *ollamaClient {
	base := strings.TrimRight(strings.TrimSpace(host), "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &ollamaClient{
		baseURL: base,
		model:   model,
		options: opts,
		timeout: timeout,
		http:    &http.Client{},
		logger:  logger.With().Str("model", model).Str("host", base).Logger(),
	}
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []Message     `json:"messages"`
	Tools    []ToolSpec    `json:"tools,omitempty"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options"`
}

type ollamaChatResponse struct {
	Message struct {
		Role      string `json:"role"`
		Content   string `json:"content"`
		ToolCalls []struct {
			Function struct {
				Name      string          `json:"name"`
				Arguments json.RawMessage `json:"arguments"`
			} `json:"function"`
		} `json:"tool_calls"`
	} `json:"message"`
	Error string `json:"error"`
}

func (c *ollamaClient) Chat(ctx context.Context, req ChatRequest) (ChatReply, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	body, err := json.Marshal(ollamaChatRequest{
		Model:    c.model,
		Messages: req.Messages,
		Tools:    req.Tools,
		Options:  c.options,
	})
	if err != nil {
		return ChatReply{}, fmt.Errorf("marshal chat request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return ChatReply{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return ChatReply{}, fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ChatReply{}, fmt.Errorf("read ollama response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return ChatReply{}, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, clip(string(raw), 200))
	}

	var out ollamaChatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return ChatReply{}, fmt.Errorf("decode ollama response: %w", err)
	}
	if out.Error != "" {
		return ChatReply{}, errors.New(out.Error)
	}

	reply := ChatReply{Text: strings.TrimSpace(out.Message.Content)}
	for _, tc := range out.Message.ToolCalls {
		args, err := decodeToolArgs(tc.Function.Arguments)
		if err != nil {
			c.logger.Warn().Err(err).Str("tool", tc.Function.Name).Msg("bad tool arguments")
		}
		reply.Calls = append(reply.Calls, ToolCall{Name: tc.Function.Name, Arguments: args})
	}
	logCost(c.logger, "inference", start)
	return reply, nil
}

// decodeToolArgs arguments 可能是对象，也可能是被转义成字符串的 JSON
func decodeToolArgs(raw json.RawMessage) (map[string]any, error) {
	args := map[string]any{}
	if len(raw) == 0 || string(raw) == "null" {
		return args, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return args, err
		}
		raw = json.RawMessage(s)
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return map[string]any{}, err
	}
	return args, nil
}

// fallbackInference 先走局域网模型，失败再用本地模型
type fallbackInference struct {
	primary  Inference
	fallback Inference
	logger   zerolog.Logger
}

func (f *fallbackInference) Chat(ctx context.Context, req ChatRequest) (ChatReply, error) {
	reply, err := f.primary.Chat(ctx, req)
	if err == nil {
		return reply, nil
	}
	if ctx.Err() != nil {
		return ChatReply{}, ctx.Err()
	}
	f.logger.Warn().Err(err).Msg("network inference failed, falling back to local")
	inferenceFallbacks.Inc()
	return f.fallback.Chat(ctx, req)
}
