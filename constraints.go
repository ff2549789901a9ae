package main

import "time"

// ================= 默认路径 =================
const (
	DefaultConfigFile    = "/etc/ai-chatbot/config.ini"
	DefaultSocketPath    = "/tmp/ai-chatbot.sock"
	DefaultRecordingsDir = "/tmp/ai-recordings"
	DefaultCameraDir     = "/tmp/ai-camera"
	DefaultLogFile       = "/var/log/robot-ai.log"
	DefaultStatusLog     = "/tmp/shatrox-display.log"
	DefaultQAFile        = "/tmp/ai-qa-display.txt"
	DefaultSTTModelDir   = "/usr/share/sherpa-models/stt"
	DefaultKWSModelDir   = "/usr/share/sherpa-models/kws"
)

// ================= 提示词 =================
const (
	DefaultSystemPrompt = "You are a helpful robot. Give direct, concise answers. Maximum 2 sentences. No extra formatting or explanations."
	ToolSystemPrompt    = "You control a small robot. When the user asks for an action, call the matching tool with its parameters. Otherwise answer in one short sentence."
	VisionPrompt        = "Describe this image. Keep the answer to maximum 1 or 2 sentences."
	CameraUserTurn      = "[Camera] What do you see?"
	ShutdownNotice      = "System is shutting down in 3 2 1"
)

// ================= 超时 =================
const (
	sttTimeout       = 30 * time.Second
	inferenceTimeout = 60 * time.Second
	ttsTimeout       = 30 * time.Second
	cameraTimeout    = 10 * time.Second
	shutdownJoinWait = 2 * time.Second
	turnDrainWait    = 5 * time.Second
)

// 问答显示文件保留的轮数
const qaKeepPairs = 5

// 路由单次请求上限
const maxRequestBytes = 1024
