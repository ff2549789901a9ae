package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shatrix/rpi5-rpios-ai-robot/pcm"
	"github.com/shatrix/rpi5-rpios-ai-robot/vad"
)

// ================= 状态机 =================
// 交互状态、冷却窗口、录音会话、对话历史、轮次号都由 mu 保护，
// 阻塞调用（识别/推理/合成/拍照）一律在锁外执行，回来后按轮次号和来源状态校验再迁移。

type cooldownKind int

const (
	cooldownNone cooldownKind = iota
	cooldownRecognition
	cooldownSpeech
)

type OrchestratorDeps struct {
	STT        Transcriber
	Dispatcher *Dispatcher
	Speaker    Speaker
	Feedback   FeedbackPlayer
	Artifacts  *artifactStore
	Display    Display
	VAD        vad.Detector
	VADFrameMs int
	STTRate    int
	STTTimeout time.Duration
}

type Orchestrator struct {
	stt        Transcriber
	dispatcher *Dispatcher
	speaker    Speaker
	feedback   FeedbackPlayer
	artifacts  *artifactStore
	display    Display
	detector   vad.Detector
	vadFrameMs int
	sttRate    int
	sttTimeout time.Duration
	now        func() time.Time
	baseCtx    context.Context
	logger     zerolog.Logger

	mu          sync.Mutex
	tun         Tunables
	state       InteractionState
	cooldownEnd time.Time
	recording   *recordingSession
	history     *Conversation
	generation  uint64
	cancelTurn  context.CancelFunc
	pending     []statusUpdate

	// flushMu 在释放 mu 之前拿到，显示端收到的顺序与状态迁移顺序一致
	flushMu sync.Mutex
	turns   sync.WaitGroup
}

type statusUpdate struct {
	state InteractionState
	text  string
}

func NewOrchestrator(ctx context.Context, deps OrchestratorDeps, tun Tunables, logger zerolog.Logger) *Orchestrator {
	display := deps.Display
	if display == nil {
		display = nopDisplay{}
	}
	timeout := deps.STTTimeout
	if timeout <= 0 {
		timeout = sttTimeout
	}
	o := &Orchestrator{
		stt:        deps.STT,
		dispatcher: deps.Dispatcher,
		speaker:    deps.Speaker,
		feedback:   deps.Feedback,
		artifacts:  deps.Artifacts,
		display:    display,
		detector:   deps.VAD,
		vadFrameMs: deps.VADFrameMs,
		sttRate:    deps.STTRate,
		sttTimeout: timeout,
		now:        time.Now,
		baseCtx:    ctx,
		logger:     logger,
		tun:        tun,
		history:    NewConversation(tun.MaxHistory, tun.HistoryTimeout),
	}
	o.state = o.restStateLocked()
	currentState.Set(float64(o.state))
	return o
}

func (o *Orchestrator) lock() { o.mu.Lock() }

// unlock 释放锁后再把状态变化同步到显示端
func (o *Orchestrator) unlock() {
	pending := o.pending
	o.pending = nil
	if len(pending) == 0 {
		o.mu.Unlock()
		return
	}
	o.flushMu.Lock()
	o.mu.Unlock()
	defer o.flushMu.Unlock()
	for _, p := range pending {
		o.display.Status(p.state, p.text)
	}
}

func (o *Orchestrator) restStateLocked() InteractionState {
	if o.tun.WakeEnabled {
		return StateWakeListening
	}
	return StateIdle
}

func (o *Orchestrator) setStateLocked(to InteractionState, text string) {
	if o.state != to {
		o.logger.Debug().Stringer("from", o.state).Stringer("to", to).Msg("state transition")
	}
	o.state = to
	currentState.Set(float64(to))
	o.pending = append(o.pending, statusUpdate{state: to, text: text})
}

func (o *Orchestrator) policyLocked() stopPolicy {
	return stopPolicy{
		MaxDuration: o.tun.MaxRecording,
		Silence:     o.tun.SilenceThreshold,
		UseVAD:      o.tun.VADEnabled && o.detector != nil,
	}
}

func (o *Orchestrator) startRecordingLocked(at time.Time) {
	o.recording = newRecordingSession(at, o.policyLocked(), o.detector, o.vadFrameMs)
	o.setStateLocked(StateListening, "Listening...")
}

func (o *Orchestrator) beginTurnLocked() (uint64, context.Context) {
	if o.cancelTurn != nil {
		o.cancelTurn()
	}
	o.generation++
	ctx, cancel := context.WithCancel(o.baseCtx)
	o.cancelTurn = cancel
	return o.generation, ctx
}

// ================= 监听循环入口 =================

// Ingest 每块重采样后的音频都经过这里：录音中则追加并判断端点，然后给出唤醒判定门控
func (o *Orchestrator) Ingest(frame pcm.Frame) SpotGate {
	o.lock()
	defer o.unlock()
	if o.recording != nil {
		if reason := o.recording.Append(frame); reason != endpointNone {
			o.finishRecordingLocked(reason)
		}
	}
	gate := SpotGate{
		Feed:      o.tun.WakeEnabled && o.state == StateWakeListening,
		Threshold: o.tun.Threshold,
	}
	gate.Act = gate.Feed && !frame.End().Before(o.cooldownEnd)
	return gate
}

// OnWake 唤醒事件；非 WakeListening 或仍在冷却期内直接忽略
func (o *Orchestrator) OnWake(ev WakeEvent) bool {
	o.lock()
	if !o.tun.WakeEnabled || o.state != StateWakeListening || ev.At.Before(o.cooldownEnd) {
		o.unlock()
		wakeDetections.WithLabelValues("ignored").Inc()
		return false
	}
	o.setStateLocked(StateWakeDetected, ev.Phrase)
	o.startRecordingLocked(ev.At)
	rec := o.recording
	if o.feedback != nil {
		rec.holdVAD()
	}
	o.unlock()

	wakeDetections.WithLabelValues("accepted").Inc()
	o.logger.Info().Str("phrase", ev.Phrase).Float64("score", ev.Score).Msg("wake word detected")
	if o.feedback != nil {
		go o.playFeedback(rec)
	}
	return true
}

// playFeedback 提示音放完才恢复这次录音的人声判定
func (o *Orchestrator) playFeedback(rec *recordingSession) {
	if err := o.feedback.PlayFeedback(o.baseCtx); err != nil {
		o.logger.Warn().Err(err).Msg("feedback sound failed")
	}
	o.lock()
	defer o.unlock()
	if o.recording == rec {
		rec.releaseVAD()
	}
}

// ================= 外部控制 =================

func (o *Orchestrator) StartRecording() bool {
	o.lock()
	defer o.unlock()
	if !o.state.in(StateIdle, StateWakeListening) {
		return false
	}
	o.startRecordingLocked(o.now())
	o.logger.Info().Msg("recording started by request")
	return true
}

func (o *Orchestrator) StopRecording() bool {
	o.lock()
	defer o.unlock()
	if o.state != StateListening || o.recording == nil {
		return false
	}
	o.finishRecordingLocked(endpointExternal)
	return true
}

func (o *Orchestrator) CaptureCamera() bool {
	o.lock()
	if o.dispatcher == nil || o.dispatcher.camera == nil {
		o.unlock()
		o.logger.Warn().Msg("camera disabled, ignoring capture request")
		return false
	}
	if !o.state.in(StateIdle, StateWakeListening) {
		o.unlock()
		return false
	}
	o.setStateLocked(StateCamera, "Capturing...")
	gen, ctx := o.beginTurnLocked()
	o.turns.Add(1)
	o.unlock()

	o.display.Question("[Camera] Analyzing captured image...")
	go func() {
		defer o.turns.Done()
		o.runCamera(ctx, gen, StateCamera, CameraUserTurn)
	}()
	return true
}

// Reset 任意状态回到静置态，清空历史并取消进行中的轮次。
// 打断播报时轮次自己的 finishTurn 会被轮次号拦下，冷却窗口在这里补上。
func (o *Orchestrator) Reset() {
	o.lock()
	defer o.unlock()
	if o.state == StateSpeaking {
		o.cooldownEnd = o.now().Add(o.tun.Cooldown)
	}
	if o.cancelTurn != nil {
		o.cancelTurn()
		o.cancelTurn = nil
	}
	o.generation++
	o.recording = nil
	o.history.Clear()
	o.setStateLocked(o.restStateLocked(), "")
	o.logger.Info().Msg("conversation reset")
}

func (o *Orchestrator) Status() Status {
	o.lock()
	defer o.unlock()
	return Status{
		State:           o.state.String(),
		HistoryLength:   o.history.Len(),
		WakeWordEnabled: o.tun.WakeEnabled,
	}
}

// ApplyTunables 热更新；唤醒开关变化时静置态随之切换
func (o *Orchestrator) ApplyTunables(t Tunables) {
	o.lock()
	defer o.unlock()
	o.tun = t
	o.history.Configure(t.MaxHistory, t.HistoryTimeout)
	if o.state.in(StateIdle, StateWakeListening) {
		o.setStateLocked(o.restStateLocked(), "")
	}
}

// Wait 等待进行中的轮次结束，超时返回 false
func (o *Orchestrator) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		o.turns.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// ================= 轮次执行 =================

func (o *Orchestrator) finishRecordingLocked(reason endpointReason) {
	rec := o.recording
	o.recording = nil
	log := o.logger.With().Str("reason", string(reason)).Int("bytes", rec.bytes).Logger()
	if n, err := rec.vadFailures(); n > 0 {
		log.Warn().Err(err).Int("frames", n).Msg("vad rejected sub-frames, endpoint fell back to timer")
	}
	if rec.bytes < o.tun.MinRecordingBytes {
		log.Info().Msg("recording too short, discarded")
		turnsTotal.WithLabelValues("too_short").Inc()
		o.setStateLocked(o.restStateLocked(), "")
		return
	}
	log.Info().Msg("recording finished")
	o.setStateLocked(StateTranscribing, "Transcribing...")
	gen, ctx := o.beginTurnLocked()
	o.turns.Add(1)
	go o.runVoiceTurn(ctx, gen, rec)
}

// advance 轮次仍有效且处于 from 时迁移到 to
func (o *Orchestrator) advance(gen uint64, from, to InteractionState, text string) bool {
	o.lock()
	defer o.unlock()
	if o.generation != gen || o.state != from {
		return false
	}
	o.setStateLocked(to, text)
	return true
}

// finishTurn 回到静置态；冷却窗口与状态在同一临界区内设置
func (o *Orchestrator) finishTurn(gen uint64, from InteractionState, cd cooldownKind, result string) bool {
	o.lock()
	defer o.unlock()
	if o.generation != gen || o.state != from {
		return false
	}
	switch cd {
	case cooldownSpeech:
		o.cooldownEnd = o.now().Add(o.tun.Cooldown)
	case cooldownRecognition:
		o.cooldownEnd = o.now().Add(o.tun.RecognitionCooldown)
	case cooldownNone:
	}
	if o.cancelTurn != nil {
		o.cancelTurn()
		o.cancelTurn = nil
	}
	o.setStateLocked(o.restStateLocked(), "")
	turnsTotal.WithLabelValues(result).Inc()
	return true
}

func (o *Orchestrator) runVoiceTurn(ctx context.Context, gen uint64, rec *recordingSession) {
	defer o.turns.Done()

	text, err := o.transcribe(ctx, rec)
	if err != nil {
		o.logger.Error().Err(err).Msg("recognition failed")
		o.finishTurn(gen, StateTranscribing, cooldownRecognition, "stt_failed")
		return
	}
	if text == "" {
		o.logger.Info().Msg("no speech recognized")
		o.finishTurn(gen, StateTranscribing, cooldownRecognition, "empty")
		return
	}
	o.logger.Info().Str("text", text).Msg("recognized")
	if !o.advance(gen, StateTranscribing, StateAnswering, "Thinking...") {
		return
	}
	o.display.Question(text)

	start := time.Now()
	out, err := o.dispatcher.Answer(ctx, o.historyView(gen), text)
	logCost(o.logger, "dispatch", start)
	if err != nil {
		if errors.Is(err, errNoUsableAnswer) {
			o.logger.Warn().Err(err).Msg("no answer")
		} else {
			o.logger.Error().Err(err).Msg("answer failed")
		}
		o.finishTurn(gen, StateAnswering, cooldownNone, "no_answer")
		return
	}
	if out.Camera {
		o.runCamera(ctx, gen, StateAnswering, "")
		return
	}
	o.speak(ctx, gen, out)
}

func (o *Orchestrator) transcribe(ctx context.Context, rec *recordingSession) (string, error) {
	samples, err := rec.Samples(o.sttRate)
	if err != nil {
		return "", err
	}
	path, err := o.artifacts.Persist(samples, o.sttRate)
	if err != nil {
		return "", err
	}
	defer o.artifacts.Remove(path)

	ctx, cancel := context.WithTimeout(ctx, o.sttTimeout)
	defer cancel()
	text, err := o.stt.Transcribe(ctx, path)
	return strings.TrimSpace(text), err
}

// runCamera 拍照 -> 视觉描述 -> 播报；语音触发时 from 为 Answering
func (o *Orchestrator) runCamera(ctx context.Context, gen uint64, from InteractionState, userTurn string) {
	if from != StateCamera && !o.advance(gen, from, StateCamera, "Capturing...") {
		return
	}
	path, err := o.dispatcher.CaptureImage(ctx)
	if err != nil {
		o.logger.Error().Err(err).Msg("camera capture failed")
		o.finishTurn(gen, StateCamera, cooldownNone, "camera_failed")
		return
	}
	if !o.advance(gen, StateCamera, StateAnswering, "Analyzing image...") {
		return
	}
	answer, err := o.dispatcher.DescribeImage(ctx, o.historyView(gen), path, userTurn)
	if err != nil {
		o.logger.Error().Err(err).Msg("image description failed")
		o.finishTurn(gen, StateAnswering, cooldownNone, "no_answer")
		return
	}
	o.speak(ctx, gen, Outcome{Category: CategoryCamera, Text: answer})
}

func (o *Orchestrator) speak(ctx context.Context, gen uint64, out Outcome) {
	if !o.advance(gen, StateAnswering, StateSpeaking, out.Text) {
		return
	}
	o.display.Answer(out.Text)
	o.logger.Info().Str("category", out.Category.String()).Str("answer", clip(out.Text, 120)).Msg("speaking")

	result := "answered"
	if err := o.speaker.Speak(ctx, out.Text); err != nil {
		o.logger.Error().Err(err).Msg("speech render failed")
		result = "tts_failed"
	}
	if !o.finishTurn(gen, StateSpeaking, cooldownSpeech, result) || out.AfterSpeech == nil {
		return
	}
	actx, cancel := context.WithTimeout(o.baseCtx, ttsTimeout)
	defer cancel()
	if err := out.AfterSpeech(actx); err != nil {
		o.logger.Error().Err(err).Msg("post-speech action failed")
	}
}

// turnHistory 绑定轮次号的历史视图，轮次被 RESET 作废后不再写入
type turnHistory struct {
	o   *Orchestrator
	gen uint64
}

func (o *Orchestrator) historyView(gen uint64) historyBook { return &turnHistory{o: o, gen: gen} }

func (h *turnHistory) BeginTurn(text string) []Message {
	h.o.lock()
	defer h.o.unlock()
	if h.o.generation != h.gen {
		return []Message{{Role: roleUser, Content: text}}
	}
	return h.o.history.AddUser(h.o.now(), text)
}

func (h *turnHistory) RecordAnswer(text string) {
	h.o.lock()
	defer h.o.unlock()
	if h.o.generation == h.gen {
		h.o.history.AddAssistant(text)
	}
}
