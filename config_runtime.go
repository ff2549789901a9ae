package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// ================= 配置加载 =================
// 优先级：环境变量 AI_CHATBOT_<SECTION>_<KEY> > config.ini > 默认值。
// env 文件只补充未设置的环境变量。

const envPrefix = "AI_CHATBOT"

type Config struct {
	Audio    AudioConfig    `mapstructure:"audio"`
	WakeWord WakeWordConfig `mapstructure:"wake_word"`
	STT      STTConfig      `mapstructure:"stt"`
	Ollama   OllamaConfig   `mapstructure:"ollama"`
	LLM      LLMConfig      `mapstructure:"llm"`
	TTS      TTSConfig      `mapstructure:"tts"`
	Camera   CameraConfig   `mapstructure:"camera"`
	Behavior BehaviorConfig `mapstructure:"behavior"`
	Volume   VolumeConfig   `mapstructure:"volume"`
	Router   RouterConfig   `mapstructure:"router"`
	Display  DisplayConfig  `mapstructure:"display"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

type AudioConfig struct {
	Source            string `mapstructure:"source"`
	MicrophoneDevice  string `mapstructure:"microphone_device"`
	NativeRate        int    `mapstructure:"native_rate"`
	SampleRate        int    `mapstructure:"sample_rate"`
	BlockSize         int    `mapstructure:"block_size"`
	Channels          int    `mapstructure:"channels"`
	Channel           int    `mapstructure:"channel"`
	MinRecordingBytes int    `mapstructure:"min_recording_bytes"`
	RecordingsDir     string `mapstructure:"recordings_dir"`
	SpeakerDevice     string `mapstructure:"speaker_device"`
	FeedbackSound     string `mapstructure:"feedback_sound"`
}

type WakeWordConfig struct {
	Enabled             bool    `mapstructure:"enabled"`
	Threshold           float64 `mapstructure:"threshold"`
	VADEnabled          bool    `mapstructure:"vad_enabled"`
	VADAggressiveness   int     `mapstructure:"vad_aggressiveness"`
	VADFrameMs          int     `mapstructure:"vad_frame_ms"`
	SilenceThreshold    float64 `mapstructure:"silence_threshold"`
	MaxRecordingTime    float64 `mapstructure:"max_recording_time"`
	Cooldown            float64 `mapstructure:"cooldown"`
	RecognitionCooldown float64 `mapstructure:"recognition_cooldown"`
	Encoder             string  `mapstructure:"encoder"`
	Decoder             string  `mapstructure:"decoder"`
	Joiner              string  `mapstructure:"joiner"`
	Tokens              string  `mapstructure:"tokens"`
	KeywordsFile        string  `mapstructure:"keywords_file"`
	KeywordsThreshold   float64 `mapstructure:"keywords_threshold"`
	KeywordsScore       float64 `mapstructure:"keywords_score"`
	NumThreads          int     `mapstructure:"num_threads"`
}

type STTConfig struct {
	Backend         string  `mapstructure:"backend"`
	SampleRate      int     `mapstructure:"sample_rate"`
	Encoder         string  `mapstructure:"encoder"`
	Decoder         string  `mapstructure:"decoder"`
	Tokens          string  `mapstructure:"tokens"`
	Language        string  `mapstructure:"language"`
	NumThreads      int     `mapstructure:"num_threads"`
	Timeout         float64 `mapstructure:"timeout"`
	DashScopeURL    string  `mapstructure:"dashscope_url"`
	DashScopeAPIKey string  `mapstructure:"dashscope_api_key"`
	DashScopeModel  string  `mapstructure:"dashscope_model"`
}

type OllamaConfig struct {
	OllamaHost         string  `mapstructure:"ollama_host"`
	NetworkVisionModel string  `mapstructure:"network_vision_model"`
	NetworkTimeout     float64 `mapstructure:"network_timeout"`
}

type LLMConfig struct {
	LocalHost       string  `mapstructure:"local_host"`
	SystemPrompt    string  `mapstructure:"system_prompt"`
	TextModel       string  `mapstructure:"text_model"`
	VisionModel     string  `mapstructure:"vision_model"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	ContextSize     int     `mapstructure:"context_size"`
	Temperature     float64 `mapstructure:"temperature"`
	Timeout         float64 `mapstructure:"timeout"`
	MinAnswerLength int     `mapstructure:"min_answer_length"`
}

type TTSConfig struct {
	Backend   string  `mapstructure:"backend"`
	Command   string  `mapstructure:"command"`
	Timeout   float64 `mapstructure:"timeout"`
	Model     string  `mapstructure:"model"`
	Tokens    string  `mapstructure:"tokens"`
	DataDir   string  `mapstructure:"data_dir"`
	SpeakerID int     `mapstructure:"speaker_id"`
	Speed     float64 `mapstructure:"speed"`
}

type CameraConfig struct {
	Enable     bool    `mapstructure:"enable"`
	Resolution string  `mapstructure:"resolution"`
	Rotation   int     `mapstructure:"rotation"`
	Dir        string  `mapstructure:"dir"`
	Timeout    float64 `mapstructure:"timeout"`
}

type BehaviorConfig struct {
	ChatHistoryTimeout float64 `mapstructure:"chat_history_timeout"`
	MaxHistoryMessages int     `mapstructure:"max_history_messages"`
}

type VolumeConfig struct {
	Card    int    `mapstructure:"card"`
	Control string `mapstructure:"control"`
}

type RouterConfig struct {
	SocketPath  string  `mapstructure:"socket_path"`
	ReadTimeout float64 `mapstructure:"read_timeout"`
}

type DisplayConfig struct {
	StatusLog string `mapstructure:"status_log"`
	QAFile    string `mapstructure:"qa_file"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

func setDefaults(v *viper.Viper) {
	defaults := map[string]any{
		"audio.source":              "portaudio",
		"audio.microphone_device":   "default",
		"audio.native_rate":         48000,
		"audio.sample_rate":         16000,
		"audio.block_size":          3840,
		"audio.channels":            1,
		"audio.channel":             0,
		"audio.min_recording_bytes": 16000,
		"audio.recordings_dir":      DefaultRecordingsDir,
		"audio.speaker_device":      "default",
		"audio.feedback_sound":      "/usr/share/sounds/ai-chatbot/wake.mp3",

		"wake_word.enabled":              true,
		"wake_word.threshold":            0.5,
		"wake_word.vad_enabled":          true,
		"wake_word.vad_aggressiveness":   2,
		"wake_word.vad_frame_ms":         20,
		"wake_word.silence_threshold":    1.5,
		"wake_word.max_recording_time":   10.0,
		"wake_word.cooldown":             1.5,
		"wake_word.recognition_cooldown": 0.5,
		"wake_word.encoder":              DefaultKWSModelDir + "/encoder.onnx",
		"wake_word.decoder":              DefaultKWSModelDir + "/decoder.onnx",
		"wake_word.joiner":               DefaultKWSModelDir + "/joiner.onnx",
		"wake_word.tokens":               DefaultKWSModelDir + "/tokens.txt",
		"wake_word.keywords_file":        DefaultKWSModelDir + "/keywords.txt",
		"wake_word.keywords_threshold":   0.25,
		"wake_word.keywords_score":       1.0,
		"wake_word.num_threads":          1,

		"stt.backend":           "sherpa",
		"stt.sample_rate":       16000,
		"stt.encoder":           DefaultSTTModelDir + "/encoder.onnx",
		"stt.decoder":           DefaultSTTModelDir + "/decoder.onnx",
		"stt.tokens":            DefaultSTTModelDir + "/tokens.txt",
		"stt.language":          "en",
		"stt.num_threads":       2,
		"stt.timeout":           sttTimeout.Seconds(),
		"stt.dashscope_url":     "wss://dashscope.aliyuncs.com/api-ws/v1/inference/",
		"stt.dashscope_api_key": "",
		"stt.dashscope_model":   "paraformer-realtime-v2",

		"ollama.ollama_host":          "local",
		"ollama.network_vision_model": "moondream",
		"ollama.network_timeout":      5.0,

		"llm.local_host":        "127.0.0.1:11434",
		"llm.system_prompt":     DefaultSystemPrompt,
		"llm.text_model":        "llama3.2:1b",
		"llm.vision_model":      "moondream",
		"llm.max_tokens":        50,
		"llm.context_size":      2048,
		"llm.temperature":       0.7,
		"llm.timeout":           inferenceTimeout.Seconds(),
		"llm.min_answer_length": 10,

		"tts.backend":    "command",
		"tts.command":    "speak",
		"tts.timeout":    ttsTimeout.Seconds(),
		"tts.model":      "",
		"tts.tokens":     "",
		"tts.data_dir":   "",
		"tts.speaker_id": 0,
		"tts.speed":      1.0,

		"camera.enable":     true,
		"camera.resolution": "640x480",
		"camera.rotation":   180,
		"camera.dir":        DefaultCameraDir,
		"camera.timeout":    cameraTimeout.Seconds(),

		"behavior.chat_history_timeout": 300.0,
		"behavior.max_history_messages": 10,

		"volume.card":    -1,
		"volume.control": "Speaker",

		"router.socket_path":  DefaultSocketPath,
		"router.read_timeout": 2.0,

		"display.status_log": DefaultStatusLog,
		"display.qa_file":    DefaultQAFile,

		"metrics.listen": "",

		"log.level": "info",
		"log.file":  DefaultLogFile,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// loadEnvFile 依次尝试 AI_CHATBOT_ENV_FILE 和默认位置，返回实际加载的路径
func loadEnvFile() (string, error) {
	if p := strings.TrimSpace(os.Getenv(envPrefix + "_ENV_FILE")); p != "" {
		return p, godotenv.Load(p)
	}
	for _, p := range []string{"/etc/ai-chatbot/ai-chatbot.env", "./ai-chatbot.env"} {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		return p, godotenv.Load(p)
	}
	return "", nil
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("ini")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig 读取配置；文件不存在时使用默认值
func LoadConfig(path string) (*Config, *viper.Viper, error) {
	if path == "" {
		path = DefaultConfigFile
	}
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	cfg, err := decodeConfig(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

func decodeConfig(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Audio.NativeRate <= 0 || c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio rates must be positive")
	}
	if c.Audio.NativeRate%c.Audio.SampleRate != 0 {
		return fmt.Errorf("audio.native_rate %d is not a multiple of audio.sample_rate %d", c.Audio.NativeRate, c.Audio.SampleRate)
	}
	if c.STT.SampleRate <= 0 || c.Audio.SampleRate%c.STT.SampleRate != 0 {
		return fmt.Errorf("stt.sample_rate %d must divide audio.sample_rate %d", c.STT.SampleRate, c.Audio.SampleRate)
	}
	if c.WakeWord.Threshold < 0 || c.WakeWord.Threshold > 1 {
		return fmt.Errorf("wake_word.threshold must be within 0..1")
	}
	if c.WakeWord.MaxRecordingTime <= 0 {
		return fmt.Errorf("wake_word.max_recording_time must be positive")
	}
	if c.Behavior.MaxHistoryMessages < 1 {
		return fmt.Errorf("behavior.max_history_messages must be at least 1")
	}
	if _, _, err := c.Camera.Size(); err != nil {
		return err
	}
	return nil
}

// Size 解析 "640x480"
func (c CameraConfig) Size() (int, int, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(c.Resolution)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("camera.resolution %q: want WIDTHxHEIGHT", c.Resolution)
	}
	wi, err1 := strconv.Atoi(strings.TrimSpace(w))
	hi, err2 := strconv.Atoi(strings.TrimSpace(h))
	if err1 != nil || err2 != nil || wi <= 0 || hi <= 0 {
		return 0, 0, fmt.Errorf("camera.resolution %q: want WIDTHxHEIGHT", c.Resolution)
	}
	return wi, hi, nil
}

// Tunables 运行期可热更新的参数
func (c *Config) Tunables() Tunables {
	return Tunables{
		WakeEnabled:         c.WakeWord.Enabled,
		Threshold:           c.WakeWord.Threshold,
		VADEnabled:          c.WakeWord.VADEnabled,
		SilenceThreshold:    seconds(c.WakeWord.SilenceThreshold),
		MaxRecording:        seconds(c.WakeWord.MaxRecordingTime),
		Cooldown:            seconds(c.WakeWord.Cooldown),
		RecognitionCooldown: seconds(c.WakeWord.RecognitionCooldown),
		MinRecordingBytes:   c.Audio.MinRecordingBytes,
		HistoryTimeout:      seconds(c.Behavior.ChatHistoryTimeout),
		MaxHistory:          c.Behavior.MaxHistoryMessages,
	}
}

// watchConfig 配置文件变化时重新解码并回调；解码失败保留旧值
func watchConfig(v *viper.Viper, logger zerolog.Logger, apply func(*Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decodeConfig(v)
		if err != nil {
			logger.Warn().Err(err).Str("file", e.Name).Msg("config reload rejected")
			return
		}
		logger.Info().Str("file", e.Name).Msg("config reloaded")
		apply(cfg)
	})
	v.WatchConfig()
}

func (c *Config) timeout(v float64, def time.Duration) time.Duration {
	if d := seconds(v); d > 0 {
		return d
	}
	return def
}
