package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/shatrix/rpi5-rpios-ai-robot/capture"
	"github.com/shatrix/rpi5-rpios-ai-robot/pcm"
	"github.com/shatrix/rpi5-rpios-ai-robot/vad"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:          "ai-chatbot",
		Short:        "Voice assistant for the robot: wake word, speech, answers, camera",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", DefaultConfigFile, "path to config.ini")

	run := &cobra.Command{
		Use:   "run",
		Short: "Run the assistant (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(configPath)
		},
	}

	var socket string
	send := &cobra.Command{
		Use:   "send COMMAND",
		Short: "Send START_RECORDING, STOP_RECORDING, CAMERA_CAPTURE, RESET or STATUS to a running assistant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := socket
			if path == "" {
				if _, err := loadEnvFile(); err != nil {
					return err
				}
				cfg, _, err := LoadConfig(configPath)
				if err != nil {
					return err
				}
				path = cfg.Router.SocketPath
			}
			reply, err := sendCommand(path, strings.ToUpper(strings.TrimSpace(args[0])), 5*time.Second)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		},
	}
	send.Flags().StringVar(&socket, "socket", "", "control socket path (defaults to router.socket_path)")

	root.AddCommand(run, send)
	return root
}

// runService 装配全部组件并阻塞到收到 SIGINT/SIGTERM
func runService(configPath string) error {
	envFile, envErr := loadEnvFile()
	cfg, v, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	logger, logCloser := newLogger(cfg.Log)
	defer logCloser.Close()
	if envErr != nil {
		logger.Warn().Err(envErr).Str("file", envFile).Msg("env file not loaded")
	}
	logger.Info().Str("config", configPath).Bool("wake_word", cfg.WakeWord.Enabled).Msg("=== ai-chatbot starting ===")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fs := afero.NewOsFs()
	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	// ---------- 音频与模型 ----------
	resampler, err := pcm.NewResampler(cfg.Audio.NativeRate, cfg.Audio.SampleRate)
	if err != nil {
		return fmt.Errorf("audio rates: %w", err)
	}

	stt, err := newTranscriber(cfg.STT, fs, component(logger, "stt"))
	if err != nil {
		logger.Error().Err(err).Msg("speech recognizer unavailable")
		return err
	}
	if c, ok := stt.(*sherpaTranscriber); ok {
		closers = append(closers, c.Close)
	}

	var model WakeWordModel
	if cfg.WakeWord.Enabled {
		kws, err := newKeywordSpotter(cfg.WakeWord, cfg.Audio.SampleRate, fs)
		if err != nil {
			logger.Error().Err(err).Msg("wake word model unavailable")
			return err
		}
		closers = append(closers, kws.Close)
		model = kws
	}

	var detector vad.Detector
	if cfg.WakeWord.VADEnabled {
		if _, err := vad.FrameSamples(cfg.Audio.SampleRate, cfg.WakeWord.VADFrameMs); err != nil {
			return fmt.Errorf("wake_word.vad_frame_ms: %w", err)
		}
		detector, err = vad.NewWebRTC(cfg.WakeWord.VADAggressiveness)
		if err != nil {
			return fmt.Errorf("init vad: %w", err)
		}
	}

	// ---------- 输出 ----------
	player := newAplayer(cfg.Audio.SpeakerDevice, component(logger, "player"))
	chime, err := loadFeedbackChime(fs, cfg.Audio.FeedbackSound, player)
	if err != nil {
		logger.Warn().Err(err).Str("file", cfg.Audio.FeedbackSound).Msg("feedback sound disabled")
	}
	speaker, err := newSpeaker(cfg.TTS, player, component(logger, "tts"))
	if err != nil {
		return err
	}
	if s, ok := speaker.(*sherpaSpeaker); ok {
		closers = append(closers, s.Close)
	}

	// ---------- 推理 ----------
	opts := ollamaOptions{
		NumCtx:      cfg.LLM.ContextSize,
		Temperature: cfg.LLM.Temperature,
		NumPredict:  cfg.LLM.MaxTokens,
	}
	llmTimeout := cfg.timeout(cfg.LLM.Timeout, inferenceTimeout)
	llmLog := component(logger, "llm")
	textHost := cfg.LLM.LocalHost
	network := strings.TrimSpace(cfg.Ollama.OllamaHost)
	if network != "" && !strings.EqualFold(network, "local") {
		textHost = network
	}
	text := newOllamaClient(textHost, cfg.LLM.TextModel, opts, llmTimeout, llmLog)

	var vision Inference = newOllamaClient(cfg.LLM.LocalHost, cfg.LLM.VisionModel, opts, llmTimeout, llmLog)
	if network != "" && !strings.EqualFold(network, "local") {
		remote := newOllamaClient(network, cfg.Ollama.NetworkVisionModel, opts,
			cfg.timeout(cfg.Ollama.NetworkTimeout, llmTimeout), llmLog)
		vision = &fallbackInference{primary: remote, fallback: vision, logger: llmLog}
	}

	// ---------- 执行器 ----------
	var camera Camera
	if cfg.Camera.Enable {
		cam, err := newStillCamera(cfg.Camera, fs, component(logger, "camera"))
		if err != nil {
			logger.Warn().Err(err).Msg("camera disabled")
		} else {
			camera = cam
		}
	}
	volume, err := newAmixerVolume(cfg.Volume)
	if err != nil {
		return err
	}

	dispatcher := NewDispatcher(DispatcherDeps{
		Text:   text,
		Vision: vision,
		Camera: camera,
		Volume: volume,
		Power:  systemPower{},
		Fs:     fs,
	}, cfg.LLM, component(logger, "dispatch"))

	artifacts, err := newArtifactStore(fs, cfg.Audio.RecordingsDir)
	if err != nil {
		return err
	}

	deps := OrchestratorDeps{
		STT:        stt,
		Dispatcher: dispatcher,
		Speaker:    speaker,
		Artifacts:  artifacts,
		Display:    newDisplayMirror(fs, cfg.Display, component(logger, "display")),
		VAD:        detector,
		VADFrameMs: cfg.WakeWord.VADFrameMs,
		STTRate:    cfg.STT.SampleRate,
		STTTimeout: cfg.timeout(cfg.STT.Timeout, sttTimeout),
	}
	if chime != nil {
		deps.Feedback = chime
	}
	orch := NewOrchestrator(ctx, deps, cfg.Tunables(), component(logger, "orchestrator"))
	watchConfig(v, component(logger, "config"), func(c *Config) { orch.ApplyTunables(c.Tunables()) })

	// ---------- 麦克风 ----------
	source, err := capture.Open(capture.Config{
		Backend:   cfg.Audio.Source,
		Device:    cfg.Audio.MicrophoneDevice,
		Rate:      cfg.Audio.NativeRate,
		BlockSize: cfg.Audio.BlockSize,
		Channels:  cfg.Audio.Channels,
		Channel:   cfg.Audio.Channel,
	})
	if err != nil {
		logger.Error().Err(err).Str("device", cfg.Audio.MicrophoneDevice).Msg("microphone unavailable")
		return err
	}

	// ---------- 控制 socket / 指标 ----------
	router := NewCommandRouter(cfg.Router.SocketPath, orch, seconds(cfg.Router.ReadTimeout), component(logger, "router"))
	if err := router.Listen(); err != nil {
		source.Close()
		return err
	}
	go func() {
		if err := router.Serve(); err != nil {
			logger.Error().Err(err).Msg("control socket stopped")
		}
	}()
	serveMetrics(ctx, cfg.Metrics.Listen, component(logger, "metrics"))

	listenCtx, cancelListen := context.WithCancel(ctx)
	defer cancelListen()
	listener := NewWakeListener(source, resampler, model, orch, component(logger, "listener"))
	listenErr := make(chan error, 1)
	listenDone := make(chan struct{})
	go func() {
		defer close(listenDone)
		listenErr <- listener.Run(listenCtx)
	}()

	logger.Info().Str("state", orch.Status().State).Msg("ready")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case runErr = <-listenErr:
		if runErr != nil {
			logger.Error().Err(runErr).Msg("audio loop stopped")
		}
	}

	// 顺序：先停止接收请求，再停监听循环，最后释放设备
	shutdown(logger, router, cancelListen, listenDone, source, orch)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func shutdown(logger zerolog.Logger, router *CommandRouter, cancelListen context.CancelFunc, listenDone <-chan struct{}, source capture.Source, orch *Orchestrator) {
	if err := router.Close(); err != nil {
		logger.Warn().Err(err).Msg("close control socket")
	}
	cancelListen()
	select {
	case <-listenDone:
	case <-time.After(shutdownJoinWait):
		logger.Warn().Msg("audio loop did not stop in time")
	}
	if err := source.Close(); err != nil {
		logger.Warn().Err(err).Msg("close microphone")
	}
	if err := router.RemoveSocket(); err != nil {
		logger.Warn().Err(err).Msg("remove control socket")
	}
	if !orch.Wait(turnDrainWait) {
		logger.Warn().Msg("in-flight turn abandoned")
	}
	logger.Info().Msg("=== ai-chatbot stopped ===")
}
