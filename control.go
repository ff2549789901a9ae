package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// Command 控制口请求，封闭集合
type Command int

const (
	CommandUnrecognized Command = iota
	CommandStartRecording
	CommandStopRecording
	CommandCameraCapture
	CommandStatus
	CommandReset
)

var commandNames = map[string]Command{
	"START_RECORDING": CommandStartRecording,
	"STOP_RECORDING":  CommandStopRecording,
	"CAMERA_CAPTURE":  CommandCameraCapture,
	"STATUS":          CommandStatus,
	"RESET":           CommandReset,
}

func ParseCommand(raw string) Command {
	if c, ok := commandNames[strings.ToUpper(strings.TrimSpace(raw))]; ok {
		return c
	}
	return CommandUnrecognized
}

func (c Command) String() string {
	for name, v := range commandNames {
		if v == c {
			return name
		}
	}
	return "UNRECOGNIZED"
}

// controller 路由可驱动的操作，由 Orchestrator 实现
type controller interface {
	StartRecording() bool
	StopRecording() bool
	CaptureCamera() bool
	Reset()
	Status() Status
}

const replyOK = "OK"

// CommandRouter 按钮服务等外部进程的 Unix socket 入口，一连接一请求
type CommandRouter struct {
	path        string
	ctrl        controller
	readTimeout time.Duration
	logger      zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    sync.WaitGroup
}

func NewCommandRouter(path string, ctrl controller, readTimeout time.Duration, logger zerolog.Logger) *CommandRouter {
	if readTimeout <= 0 {
		readTimeout = 2 * time.Second
	}
	return &CommandRouter{path: path, ctrl: ctrl, readTimeout: readTimeout, logger: logger}
}

// Listen 删除残留 socket 后绑定，权限放开给非 root 的按钮服务
func (r *CommandRouter) Listen() error {
	if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", r.path)
	if err != nil {
		return fmt.Errorf("listen %s: %w", r.path, err)
	}
	if err := os.Chmod(r.path, 0o666); err != nil {
		ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}
	r.mu.Lock()
	r.listener = ln
	r.mu.Unlock()
	r.logger.Info().Str("socket", r.path).Msg("control socket ready")
	return nil
}

// Serve 接收循环，Close 后返回
func (r *CommandRouter) Serve() error {
	r.mu.Lock()
	ln := r.listener
	r.mu.Unlock()
	if ln == nil {
		return errors.New("router not listening")
	}
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			r.logger.Warn().Err(err).Msg("accept failed")
			continue
		}
		r.conns.Add(1)
		go func() {
			defer r.conns.Done()
			r.serveConn(conn)
		}()
	}
}

func (r *CommandRouter) serveConn(conn net.Conn) {
	defer conn.Close()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Interface("panic", p).Msg("control request panicked")
		}
	}()
	_ = conn.SetDeadline(time.Now().Add(r.readTimeout))

	buf := make([]byte, maxRequestBytes+1)
	n, err := conn.Read(buf)
	var reply string
	switch {
	case err != nil && !errors.Is(err, io.EOF):
		reply = "ERROR: read failed"
	case n > maxRequestBytes:
		reply = "ERROR: request too large"
	default:
		reply = r.Handle(buf[:n])
	}
	if _, err := conn.Write([]byte(reply)); err != nil {
		r.logger.Debug().Err(err).Msg("write reply")
	}
}

// Handle 处理一条请求并返回回复
func (r *CommandRouter) Handle(payload []byte) string {
	if !utf8.Valid(payload) {
		return "ERROR: invalid encoding"
	}
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return "ERROR: empty request"
	}
	cmd := ParseCommand(text)
	routerRequests.WithLabelValues(cmd.String()).Inc()
	r.logger.Debug().Str("command", cmd.String()).Msg("control request")

	switch cmd {
	case CommandStartRecording:
		r.ctrl.StartRecording()
	case CommandStopRecording:
		r.ctrl.StopRecording()
	case CommandCameraCapture:
		r.ctrl.CaptureCamera()
	case CommandReset:
		r.ctrl.Reset()
	case CommandStatus:
		b, err := json.Marshal(r.ctrl.Status())
		if err != nil {
			return "ERROR: status unavailable"
		}
		return string(b)
	case CommandUnrecognized:
		r.logger.Warn().Str("request", clip(text, 40)).Msg("unknown control request ignored")
	}
	return replyOK
}

// Close 停止接收并等待处理中的连接
func (r *CommandRouter) Close() error {
	r.mu.Lock()
	ln := r.listener
	r.listener = nil
	r.mu.Unlock()
	if ln == nil {
		return nil
	}
	err := ln.Close()
	r.conns.Wait()
	return err
}

// RemoveSocket 关闭流程最后一步
func (r *CommandRouter) RemoveSocket() error {
	if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// sendCommand 客户端：发一条请求读回复（按钮服务的行为）
func sendCommand(path, command string, timeout time.Duration) (string, error) {
	conn, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return "", fmt.Errorf("connect %s: %w", path, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))
	if _, err := conn.Write([]byte(command)); err != nil {
		return "", fmt.Errorf("send: %w", err)
	}
	if uc, ok := conn.(*net.UnixConn); ok {
		_ = uc.CloseWrite()
	}
	reply, err := io.ReadAll(conn)
	// 服务端拒收超长请求时会带着未读数据关闭连接，回复已经到手就不算失败
	if err != nil && len(reply) == 0 {
		return "", fmt.Errorf("read reply: %w", err)
	}
	return string(reply), nil
}
