package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/shatrix/rpi5-rpios-ai-robot/capture"
	"github.com/shatrix/rpi5-rpios-ai-robot/pcm"
)

// frameSink 监听循环的下游，由 Orchestrator 实现
type frameSink interface {
	Ingest(frame pcm.Frame) SpotGate
	OnWake(ev WakeEvent) bool
}

// WakeListener 独占麦克风：读块 -> 抽取 -> 录音/唤醒两路消费
type WakeListener struct {
	source    capture.Source
	resampler *pcm.Resampler
	model     WakeWordModel
	sink      frameSink
	now       func() time.Time
	logger    zerolog.Logger
}

func NewWakeListener(source capture.Source, resampler *pcm.Resampler, model WakeWordModel, sink frameSink, logger zerolog.Logger) *WakeListener {
	return &WakeListener{
		source:    source,
		resampler: resampler,
		model:     model,
		sink:      sink,
		now:       time.Now,
		logger:    logger,
	}
}

// Run 直到 ctx 取消或设备出错
func (l *WakeListener) Run(ctx context.Context) error {
	l.logger.Info().Msg("microphone open, listening")
	for {
		if ctx.Err() != nil {
			return nil
		}
		native, err := l.source.Read()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, capture.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read audio: %w", err)
		}
		l.process(native, l.now())
	}
}

// process received 为整块读完的时刻
func (l *WakeListener) process(native []int16, received time.Time) {
	frame := l.resampler.Frame(native, received)
	frame.At = received.Add(-frame.Duration())

	gate := l.sink.Ingest(frame)
	if !gate.Feed || l.model == nil {
		return
	}
	// 冷却期内也要喂模型保持其内部状态连续，只是不采纳结果
	scores, err := l.model.Predict(frame.Samples, frame.Rate)
	if err != nil {
		l.logger.Warn().Err(err).Msg("wake model failed")
		return
	}
	if !gate.Act {
		return
	}
	phrase, score := bestScore(scores)
	if phrase == "" || score <= gate.Threshold {
		return
	}
	l.sink.OnWake(WakeEvent{Phrase: phrase, Score: score, At: frame.End()})
}
