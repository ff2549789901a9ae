package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Display 屏幕侧的状态镜像，写失败只记日志
type Display interface {
	Status(state InteractionState, text string)
	Question(q string)
	Answer(a string)
}

type statusLine struct {
	Type      string  `json:"type"`
	State     string  `json:"state"`
	Text      string  `json:"text"`
	Timestamp float64 `json:"timestamp"`
}

// displayMirror 状态追加到共享日志（CHAT_STATUS: 前缀），问答写到单独文件只留最近几轮
type displayMirror struct {
	fs        afero.Fs
	statusLog string
	qaFile    string
	keep      int
	now       func() time.Time
	logger    zerolog.Logger

	mu      sync.Mutex
	entries []string
}

func newDisplayMirror(fs afero.Fs, cfg DisplayConfig, logger zerolog.Logger) *displayMirror {
	d := &displayMirror{
		fs:        fs,
		statusLog: cfg.StatusLog,
		qaFile:    cfg.QAFile,
		keep:      qaKeepPairs,
		now:       time.Now,
		logger:    logger,
	}
	if raw, err := afero.ReadFile(fs, cfg.QAFile); err == nil && len(strings.TrimSpace(string(raw))) > 0 {
		d.entries = strings.Split(strings.TrimSpace(string(raw)), "\n\n")
	}
	return d
}

func (d *displayMirror) Status(state InteractionState, text string) {
	if d.statusLog == "" {
		return
	}
	ts := d.now()
	line, err := json.Marshal(statusLine{
		Type:      "chat_status",
		State:     state.String(),
		Text:      text,
		Timestamp: float64(ts.UnixNano()) / 1e9,
	})
	if err != nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	f, err := d.fs.OpenFile(d.statusLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		d.logger.Debug().Err(err).Msg("display log unavailable")
		return
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "CHAT_STATUS:%s\n", line); err != nil {
		d.logger.Debug().Err(err).Msg("write display log")
	}
}

func (d *displayMirror) Question(q string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, "Q: "+q)
	if over := len(d.entries) - d.keep; over > 0 {
		d.entries = append(d.entries[:0], d.entries[over:]...)
	}
	d.flushLocked()
}

// Answer 接在最近一个问题后面
func (d *displayMirror) Answer(a string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.entries) == 0 {
		return
	}
	d.entries[len(d.entries)-1] += "\nA: " + a
	d.flushLocked()
}

func (d *displayMirror) flushLocked() {
	if d.qaFile == "" {
		return
	}
	if err := afero.WriteFile(d.fs, d.qaFile, []byte(strings.Join(d.entries, "\n\n")), 0o644); err != nil {
		d.logger.Debug().Err(err).Msg("write qa file")
	}
}

type nopDisplay struct{}

func (nopDisplay) Status(InteractionState, string) {}
func (nopDisplay) Question(string)                 {}
func (nopDisplay) Answer(string)                   {}
