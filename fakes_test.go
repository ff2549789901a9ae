package main

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// 2006-01-02 15:04 周一
var fixedNow = time.Date(2006, time.January, 2, 15, 4, 0, 0, time.UTC)

type fakeTranscriber struct {
	mu      sync.Mutex
	text    string
	err     error
	block   bool // 阻塞到 ctx 取消
	fs      afero.Fs
	samples []int
	ctxErr  error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, wavPath string) (string, error) {
	if f.fs != nil {
		if s, _, err := readWAVSamples(f.fs, wavPath); err == nil {
			f.mu.Lock()
			f.samples = append(f.samples, len(s))
			f.mu.Unlock()
		}
	}
	if f.block {
		<-ctx.Done()
		f.mu.Lock()
		f.ctxErr = ctx.Err()
		f.mu.Unlock()
		return "", ctx.Err()
	}
	return f.text, f.err
}

func (f *fakeTranscriber) calls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.samples...)
}

// fakeInference 依次返回 replies，用完后重复最后一个
type fakeInference struct {
	mu      sync.Mutex
	replies []ChatReply
	err     error
	reqs    []ChatRequest
}

func (f *fakeInference) Chat(ctx context.Context, req ChatRequest) (ChatReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return ChatReply{}, f.err
	}
	if len(f.replies) == 0 {
		return ChatReply{}, errors.New("no reply scripted")
	}
	r := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return r, nil
}

func (f *fakeInference) requests() []ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ChatRequest(nil), f.reqs...)
}

type fakeSpeaker struct {
	mu     sync.Mutex
	spoken []string
	err    error
	block  bool
}

// Speak block 时一直占着播放直到轮次被取消
func (f *fakeSpeaker) Speak(ctx context.Context, text string) error {
	f.mu.Lock()
	f.spoken = append(f.spoken, text)
	block, err := f.block, f.err
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (f *fakeSpeaker) said() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

type fakeFeedback struct {
	done chan struct{}
}

func (f *fakeFeedback) PlayFeedback(ctx context.Context) error {
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// statusRecorder 记下显示端收到的状态序列
type statusRecorder struct {
	mu     sync.Mutex
	states []InteractionState
}

func (r *statusRecorder) Status(state InteractionState, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *statusRecorder) Question(string) {}
func (r *statusRecorder) Answer(string)   {}

func (r *statusRecorder) last() InteractionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[len(r.states)-1]
}

type fakeCamera struct {
	fs   afero.Fs
	path string
	err  error
}

func (f *fakeCamera) Capture(ctx context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if err := f.fs.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return "", err
	}
	if err := afero.WriteFile(f.fs, f.path, []byte("jpeg-bytes"), 0o644); err != nil {
		return "", err
	}
	return f.path, nil
}

type fakeVolume struct {
	mu      sync.Mutex
	percent []int
	err     error
}

func (f *fakeVolume) SetPercent(ctx context.Context, percent int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.percent = append(f.percent, percent)
	return f.err
}

type fakePower struct {
	mu    sync.Mutex
	calls int
}

func (f *fakePower) Shutdown(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

func (f *fakePower) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// memoryHistory 不绑定轮次的历史，供 Dispatcher 单测使用
type memoryHistory struct {
	conv *Conversation
}

func newMemoryHistory() *memoryHistory {
	return &memoryHistory{conv: NewConversation(10, 0)}
}

func (h *memoryHistory) BeginTurn(text string) []Message {
	return h.conv.AddUser(fixedNow, text)
}

func (h *memoryHistory) RecordAnswer(text string) { h.conv.AddAssistant(text) }
