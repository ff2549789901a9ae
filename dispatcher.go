package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

var (
	errNoUsableAnswer = errors.New("no usable answer")
	errCameraDisabled = errors.New("camera disabled")
)

// historyBook 对话历史入口；实现方负责加锁并在轮次失效时丢弃写入
type historyBook interface {
	BeginTurn(text string) []Message
	RecordAnswer(text string)
}

// Outcome 一轮分派的结果，由 Orchestrator 负责播报
type Outcome struct {
	Category    Category
	Text        string
	Camera      bool                            // 需先拍照再由视觉模型回答
	AfterSpeech func(ctx context.Context) error // 播报结束后执行，如关机
}

type Dispatcher struct {
	text      Inference
	vision    Inference
	camera    Camera
	volume    VolumeSetter
	power     PowerController
	fs        afero.Fs
	prompt    string
	minAnswer int
	now       func() time.Time
	logger    zerolog.Logger
}

type DispatcherDeps struct {
	Text   Inference
	Vision Inference
	Camera Camera // nil 表示禁用
	Volume VolumeSetter
	Power  PowerController
	Fs     afero.Fs
}

func NewDispatcher(deps DispatcherDeps, cfg LLMConfig, logger zerolog.Logger) *Dispatcher {
	prompt := strings.TrimSpace(cfg.SystemPrompt)
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}
	fs := deps.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Dispatcher{
		text:      deps.Text,
		vision:    deps.Vision,
		camera:    deps.Camera,
		volume:    deps.Volume,
		power:     deps.Power,
		fs:        fs,
		prompt:    prompt,
		minAnswer: cfg.MinAnswerLength,
		now:       time.Now,
		logger:    logger,
	}
}

// Answer 两阶段分派：先正则粗分类，必要时再带工具声明推理
func (d *Dispatcher) Answer(ctx context.Context, history historyBook, transcript string) (Outcome, error) {
	cat := DetectCategory(transcript)
	turn := history.BeginTurn(transcript)
	log := d.logger.With().Str("category", cat.String()).Logger()
	log.Info().Str("text", clip(transcript, 80)).Msg("dispatching")

	if cat.needsInference() {
		return d.withTools(ctx, history, cat, transcript)
	}
	switch cat {
	case CategoryTime:
		return d.local(history, cat, currentTimeAnswer(d.now())), nil
	case CategoryDate:
		return d.local(history, cat, currentDateAnswer(d.now())), nil
	case CategoryCamera:
		return Outcome{Category: cat, Camera: true}, nil
	case CategoryNone:
		return d.openQuestion(ctx, history, turn)
	}
	return Outcome{}, fmt.Errorf("unhandled category %s", cat)
}

func (d *Dispatcher) local(history historyBook, cat Category, text string) Outcome {
	history.RecordAnswer(text)
	return Outcome{Category: cat, Text: text}
}

func (d *Dispatcher) openQuestion(ctx context.Context, history historyBook, turn []Message) (Outcome, error) {
	msgs := make([]Message, 0, len(turn)+1)
	msgs = append(msgs, Message{Role: roleSystem, Content: d.prompt})
	msgs = append(msgs, turn...)
	reply, err := d.text.Chat(ctx, ChatRequest{Messages: msgs})
	if err != nil {
		return Outcome{}, fmt.Errorf("answer question: %w", err)
	}
	answer := strings.TrimSpace(reply.Text)
	if !d.usable(answer) {
		return Outcome{}, fmt.Errorf("%w: %q", errNoUsableAnswer, clip(answer, 100))
	}
	history.RecordAnswer(answer)
	return Outcome{Category: CategoryNone, Text: answer}, nil
}

func (d *Dispatcher) usable(answer string) bool {
	return len([]rune(answer)) > d.minAnswer
}

func (d *Dispatcher) withTools(ctx context.Context, history historyBook, cat Category, transcript string) (Outcome, error) {
	reply, err := d.text.Chat(ctx, ChatRequest{
		Messages: []Message{
			{Role: roleSystem, Content: ToolSystemPrompt},
			{Role: roleUser, Content: transcript},
		},
		Tools: declaredTools(),
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("tool inference: %w", err)
	}

	out := Outcome{Category: cat}
	if len(reply.Calls) == 0 {
		if strings.TrimSpace(reply.Text) == "" {
			return Outcome{}, errNoUsableAnswer
		}
		out.Text = strings.TrimSpace(reply.Text)
		history.RecordAnswer(out.Text)
		return out, nil
	}

	var parts []string
	for _, call := range reply.Calls {
		if text := d.execute(ctx, call, &out); text != "" {
			parts = append(parts, text)
		}
	}
	out.Text = strings.Join(parts, " ")
	if out.Text == "" && !out.Camera {
		return Outcome{}, errNoUsableAnswer
	}
	if out.Text != "" {
		history.RecordAnswer(out.Text)
	}
	return out, nil
}

// execute 执行一个动作并返回要播报的确认文本
func (d *Dispatcher) execute(ctx context.Context, call ToolCall, out *Outcome) string {
	action := ParseAction(call.Name)
	toolCalls.WithLabelValues(call.Name).Inc()
	log := d.logger.With().Str("tool", call.Name).Logger()

	switch action {
	case ActionSetVolume:
		percent, err := percentArg(call.Arguments)
		if err != nil {
			log.Warn().Err(err).Interface("args", call.Arguments).Msg("bad volume argument")
			return "Sorry, I did not catch the volume level."
		}
		if err := d.volume.SetPercent(ctx, percent); err != nil {
			log.Error().Err(err).Int("percent", percent).Msg("set volume failed")
			return "Sorry, I could not change the volume."
		}
		log.Info().Int("percent", percent).Msg("volume set")
		return fmt.Sprintf("Volume set to %d%%", percent)
	case ActionTakePicture:
		out.Camera = true
		return ""
	case ActionCurrentTime:
		return currentTimeAnswer(d.now())
	case ActionCurrentDate:
		return currentDateAnswer(d.now())
	case ActionShutdown:
		out.AfterSpeech = d.power.Shutdown
		log.Warn().Msg("shutdown requested")
		return ShutdownNotice
	case ActionUnrecognized:
		log.Warn().Msg("model called an unknown tool")
		return ""
	}
	return ""
}

// CaptureImage 拍照，返回图片路径
func (d *Dispatcher) CaptureImage(ctx context.Context) (string, error) {
	if d.camera == nil {
		return "", errCameraDisabled
	}
	return d.camera.Capture(ctx)
}

// DescribeImage 用视觉模型描述图片；userTurn 非空时先记一轮用户输入
func (d *Dispatcher) DescribeImage(ctx context.Context, history historyBook, imagePath, userTurn string) (string, error) {
	if userTurn != "" {
		history.BeginTurn(userTurn)
	}
	img, err := afero.ReadFile(d.fs, imagePath)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	reply, err := d.vision.Chat(ctx, ChatRequest{Messages: []Message{{
		Role:    roleUser,
		Content: VisionPrompt,
		Images:  []string{base64.StdEncoding.EncodeToString(img)},
	}}})
	if err != nil {
		return "", fmt.Errorf("describe image: %w", err)
	}
	answer := strings.TrimSpace(reply.Text)
	if answer == "" {
		return "", errNoUsableAnswer
	}
	history.RecordAnswer(answer)
	return answer, nil
}
