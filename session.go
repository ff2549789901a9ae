package main

import "time"

// Message 一轮对话，字段与 Ollama chat 消息一致
type Message struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

const (
	roleSystem    = "system"
	roleUser      = "user"
	roleAssistant = "assistant"
)

// Conversation 有界对话历史，本身不加锁，由 Orchestrator 的互斥锁保护
type Conversation struct {
	max     int
	timeout time.Duration
	turns   []Message
	lastAt  time.Time
}

func NewConversation(max int, timeout time.Duration) *Conversation {
	if max < 1 {
		max = 1
	}
	return &Conversation{max: max, timeout: timeout}
}

// Configure 热更新上限，超出部分立即裁掉
func (c *Conversation) Configure(max int, timeout time.Duration) {
	if max < 1 {
		max = 1
	}
	c.max = max
	c.timeout = timeout
	c.trim()
}

// AddUser 追加用户轮；距上一轮超过 timeout 先清空。返回含本轮在内的副本。
func (c *Conversation) AddUser(now time.Time, text string) []Message {
	if !c.lastAt.IsZero() && c.timeout > 0 && now.Sub(c.lastAt) > c.timeout {
		c.turns = c.turns[:0]
	}
	c.lastAt = now
	c.turns = append(c.turns, Message{Role: roleUser, Content: text})
	c.trim()
	return c.Messages()
}

func (c *Conversation) AddAssistant(text string) {
	c.turns = append(c.turns, Message{Role: roleAssistant, Content: text})
	c.trim()
}

func (c *Conversation) Clear() {
	c.turns = nil
	c.lastAt = time.Time{}
}

func (c *Conversation) Len() int { return len(c.turns) }

func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.turns))
	copy(out, c.turns)
	return out
}

func (c *Conversation) trim() {
	if over := len(c.turns) - c.max; over > 0 {
		c.turns = append(c.turns[:0], c.turns[over:]...)
	}
}
