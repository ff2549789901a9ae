package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shatrix/rpi5-rpios-ai-robot/capture"
	"github.com/shatrix/rpi5-rpios-ai-robot/pcm"
)

type scriptedModel struct {
	scores []float64
	fed    int
}

func (m *scriptedModel) Predict(samples []int16, rate int) (map[string]float64, error) {
	s := m.scores[m.fed%len(m.scores)]
	m.fed++
	return map[string]float64{"hey_robot": s, "other": 0.01}, nil
}

type recordingSink struct {
	gate   SpotGate
	frames []pcm.Frame
	events []WakeEvent
}

func (s *recordingSink) Ingest(frame pcm.Frame) SpotGate {
	s.frames = append(s.frames, frame)
	return s.gate
}

func (s *recordingSink) OnWake(ev WakeEvent) bool {
	s.events = append(s.events, ev)
	return true
}

func newTestListener(t *testing.T, model WakeWordModel, sink frameSink) *WakeListener {
	t.Helper()
	r, err := pcm.NewResampler(48000, 16000)
	require.NoError(t, err)
	return NewWakeListener(nil, r, model, sink, zerolog.Nop())
}

func nativeBlock() []int16 { return make([]int16, 4800) }

func TestWakeFiresOnceAboveThreshold(t *testing.T) {
	model := &scriptedModel{scores: []float64{0.2, 0.3, 0.62}}
	sink := &recordingSink{gate: SpotGate{Feed: true, Act: true, Threshold: 0.5}}
	l := newTestListener(t, model, sink)

	for i := 0; i < 3; i++ {
		l.process(nativeBlock(), fixedNow.Add(time.Duration(i+1)*100*time.Millisecond))
	}

	require.Len(t, sink.events, 1)
	assert.Equal(t, "hey_robot", sink.events[0].Phrase)
	assert.InDelta(t, 0.62, sink.events[0].Score, 1e-9)
	assert.Equal(t, fixedNow.Add(300*time.Millisecond), sink.events[0].At)
	assert.Equal(t, 3, model.fed)
}

func TestWakeThresholdIsStrict(t *testing.T) {
	model := &scriptedModel{scores: []float64{0.5}}
	sink := &recordingSink{gate: SpotGate{Feed: true, Act: true, Threshold: 0.5}}
	l := newTestListener(t, model, sink)

	l.process(nativeBlock(), fixedNow)
	assert.Empty(t, sink.events)
}

func TestWakeModelFedDuringCooldown(t *testing.T) {
	model := &scriptedModel{scores: []float64{0.95}}
	sink := &recordingSink{gate: SpotGate{Feed: true, Act: false, Threshold: 0.5}}
	l := newTestListener(t, model, sink)

	l.process(nativeBlock(), fixedNow)
	assert.Equal(t, 1, model.fed)
	assert.Empty(t, sink.events)

	sink.gate.Feed = false
	l.process(nativeBlock(), fixedNow.Add(100*time.Millisecond))
	assert.Equal(t, 1, model.fed, "model not fed outside wake listening")
}

func TestListenerFrameTiming(t *testing.T) {
	sink := &recordingSink{}
	l := newTestListener(t, nil, sink)
	l.process(nativeBlock(), fixedNow)

	require.Len(t, sink.frames, 1)
	f := sink.frames[0]
	assert.Equal(t, 16000, f.Rate)
	assert.Len(t, f.Samples, 1600)
	assert.Equal(t, fixedNow.Add(-100*time.Millisecond), f.At)
	assert.Equal(t, fixedNow, f.End())
}

func TestBestScore(t *testing.T) {
	name, score := bestScore(map[string]float64{"b": 0.4, "a": 0.4, "c": 0.1})
	assert.Equal(t, "a", name)
	assert.Equal(t, 0.4, score)

	name, _ = bestScore(nil)
	assert.Empty(t, name)
}

// blockSource 先给出若干块，之后返回 ErrClosed
type blockSource struct {
	mu     sync.Mutex
	blocks int
	err    error
}

func (s *blockSource) Read() ([]int16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blocks == 0 {
		return nil, s.err
	}
	s.blocks--
	return nativeBlock(), nil
}

func (s *blockSource) Close() error { return nil }

func TestListenerRunStopsOnClosedSource(t *testing.T) {
	sink := &recordingSink{}
	r, err := pcm.NewResampler(48000, 16000)
	require.NoError(t, err)
	l := NewWakeListener(&blockSource{blocks: 3, err: capture.ErrClosed}, r, nil, sink, zerolog.Nop())

	require.NoError(t, l.Run(context.Background()))
	assert.Len(t, sink.frames, 3)
}

func TestListenerRunReportsDeviceError(t *testing.T) {
	r, err := pcm.NewResampler(48000, 16000)
	require.NoError(t, err)
	boom := errors.New("device unplugged")
	l := NewWakeListener(&blockSource{err: boom}, r, nil, &recordingSink{}, zerolog.Nop())

	assert.ErrorIs(t, l.Run(context.Background()), boom)
}

func TestListenerDrivesRecording(t *testing.T) {
	f := newOrchFixture(t, false)
	model := &scriptedModel{scores: []float64{0.1, 0.9, 0.1}}
	l := newTestListener(t, model, f.orch)
	l.now = func() time.Time { return fixedNow }

	l.process(nativeBlock(), fixedNow.Add(100*time.Millisecond))
	l.process(nativeBlock(), fixedNow.Add(200*time.Millisecond))
	require.Equal(t, "listening", f.state())

	l.process(nativeBlock(), fixedNow.Add(300*time.Millisecond))
	assert.Equal(t, 2, model.fed, "model not fed while listening")

	f.orch.mu.Lock()
	rec := f.orch.recording
	f.orch.mu.Unlock()
	require.NotNil(t, rec)
	assert.Len(t, rec.frames, 1)
	assert.Equal(t, 3200, rec.bytes)
}
