package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ollamaStub(t *testing.T, status int, body string, seen *ollamaChatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		if seen != nil {
			raw, err := io.ReadAll(r.Body)
			assert.NoError(t, err)
			assert.NoError(t, json.Unmarshal(raw, seen))
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaChatText(t *testing.T) {
	var seen ollamaChatRequest
	srv := ollamaStub(t, http.StatusOK, `{"message":{"role":"assistant","content":"  Hello there, human.  "}}`, &seen)
	c := newOllamaClient(srv.URL, "llama3.2:1b", ollamaOptions{NumCtx: 2048, Temperature: 0.7, NumPredict: 50}, time.Second, zerolog.Nop())

	reply, err := c.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: roleUser, Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "Hello there, human.", reply.Text)
	assert.Empty(t, reply.Calls)

	assert.Equal(t, "llama3.2:1b", seen.Model)
	assert.False(t, seen.Stream)
	assert.Equal(t, 2048, seen.Options.NumCtx)
	assert.Equal(t, 50, seen.Options.NumPredict)
	assert.Empty(t, seen.Tools)
}

func TestOllamaChatToolCalls(t *testing.T) {
	var seen ollamaChatRequest
	body := `{"message":{"role":"assistant","content":"","tool_calls":[
		{"function":{"name":"set_volume","arguments":{"percent":40}}},
		{"function":{"name":"set_volume","arguments":"{\"percent\":\"60\"}"}},
		{"function":{"name":"get_current_time"}}
	]}}`
	srv := ollamaStub(t, http.StatusOK, body, &seen)
	c := newOllamaClient(strings.TrimPrefix(srv.URL, "http://"), "llama3.2:1b", ollamaOptions{}, time.Second, zerolog.Nop())

	reply, err := c.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: roleUser, Content: "volume forty"}},
		Tools:    declaredTools(),
	})
	require.NoError(t, err)
	require.Len(t, reply.Calls, 3)
	assert.Equal(t, map[string]any{"percent": float64(40)}, reply.Calls[0].Arguments)
	assert.Equal(t, map[string]any{"percent": "60"}, reply.Calls[1].Arguments)
	assert.Empty(t, reply.Calls[2].Arguments)
	assert.Len(t, seen.Tools, 5)
}

func TestOllamaChatErrors(t *testing.T) {
	srv := ollamaStub(t, http.StatusNotFound, `{"error":"model not found"}`, nil)
	c := newOllamaClient(srv.URL, "missing", ollamaOptions{}, time.Second, zerolog.Nop())
	_, err := c.Chat(context.Background(), ChatRequest{})
	assert.ErrorContains(t, err, "status 404")

	srv = ollamaStub(t, http.StatusOK, `{"error":"out of memory"}`, nil)
	c = newOllamaClient(srv.URL, "big", ollamaOptions{}, time.Second, zerolog.Nop())
	_, err = c.Chat(context.Background(), ChatRequest{})
	assert.EqualError(t, err, "out of memory")
}

func TestDecodeToolArgs(t *testing.T) {
	args, err := decodeToolArgs(json.RawMessage(`null`))
	require.NoError(t, err)
	assert.Empty(t, args)

	_, err = decodeToolArgs(json.RawMessage(`"not json"`))
	assert.Error(t, err)
}

func TestFallbackInference(t *testing.T) {
	local := &fakeInference{replies: []ChatReply{{Text: "from local"}}}
	f := &fallbackInference{primary: &fakeInference{err: errors.New("no route to host")}, fallback: local, logger: zerolog.Nop()}

	reply, err := f.Chat(context.Background(), ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "from local", reply.Text)
	assert.Len(t, local.requests(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Chat(ctx, ChatRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, local.requests(), 1, "no fallback once the caller gave up")
}
