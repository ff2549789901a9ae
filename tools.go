package main

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// Action 可供推理调用的本地动作，封闭集合
type Action int

const (
	ActionUnrecognized Action = iota
	ActionSetVolume
	ActionTakePicture
	ActionCurrentTime
	ActionCurrentDate
	ActionShutdown
)

var actionNames = map[string]Action{
	"set_volume":       ActionSetVolume,
	"take_picture":     ActionTakePicture,
	"get_current_time": ActionCurrentTime,
	"get_current_date": ActionCurrentDate,
	"shutdown_system":  ActionShutdown,
}

func ParseAction(name string) Action {
	if a, ok := actionNames[name]; ok {
		return a
	}
	return ActionUnrecognized
}

// ToolSpec Ollama tools 声明
type ToolSpec struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

func noParams() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

// declaredTools 第二阶段推理可调用的全部动作
func declaredTools() []ToolSpec {
	fn := func(name, desc string, params map[string]any) ToolSpec {
		return ToolSpec{Type: "function", Function: ToolFunction{Name: name, Description: desc, Parameters: params}}
	}
	return []ToolSpec{
		fn("set_volume", "Set the speaker volume to a specific percentage between 0 and 100", map[string]any{
			"type": "object",
			"properties": map[string]any{
				"percent": map[string]any{"type": "integer", "description": "Volume level from 0 (mute) to 100 (maximum)"},
			},
			"required": []string{"percent"},
		}),
		fn("take_picture", "Take a picture with the camera and describe what you see in the image", noParams()),
		fn("get_current_time", "Get the current time", noParams()),
		fn("get_current_date", "Get the current date (day, month, year)", noParams()),
		fn("shutdown_system", "Safely shutdown the robot system. ONLY use this when explicitly asked to shutdown or turn off.", noParams()),
	}
}

// VolumeSetter 设置输出音量百分比
type VolumeSetter interface {
	SetPercent(ctx context.Context, percent int) error
}

// PowerController 关机
type PowerController interface {
	Shutdown(ctx context.Context) error
}

type systemPower struct{}

func (systemPower) Shutdown(ctx context.Context) error {
	out, err := exec.CommandContext(ctx, "shutdown", "-h", "now").CombinedOutput()
	if err != nil {
		return fmt.Errorf("shutdown failed: %w, output=%s", err, out)
	}
	return nil
}

func currentTimeAnswer(now time.Time) string {
	return "The current time is " + now.Format("03:04 PM")
}

func currentDateAnswer(now time.Time) string {
	return "Today is " + now.Format("Monday, January 02, 2006")
}
