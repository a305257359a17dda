package platform

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Memory is an in-process adapter. It backs headless runs and tests.
type Memory struct {
	mu       sync.Mutex
	seq      int
	messages map[MessageHandle]Content
	order    []MessageHandle
	threads  []ThreadHandle
	buttons  map[string]ButtonHandler
	prompts  []PromptRecord
	failures []error
	calls    int

	// Answer decides private prompts. Without it every prompt is cancelled.
	Answer func(userID string, prompt Prompt) Selection
}

type PromptRecord struct {
	UserID string
	Prompt Prompt
}

func NewMemory() *Memory {
	return &Memory{
		messages: map[MessageHandle]Content{},
		buttons:  map[string]ButtonHandler{},
	}
}

// FailNext makes the next len(errs) calls fail with errs, in order.
func (m *Memory) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

// Calls counts every adapter call, failed ones included.
func (m *Memory) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *Memory) fail() error {
	m.calls++
	if len(m.failures) == 0 {
		return nil
	}
	err := m.failures[0]
	m.failures = m.failures[1:]
	return err
}

func (m *Memory) SendMessage(_ context.Context, channelID string, content Content) (MessageHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return MessageHandle{}, err
	}
	m.seq++
	h := MessageHandle{ChannelID: channelID, MessageID: fmt.Sprintf("m%d", m.seq)}
	m.messages[h] = content
	m.order = append(m.order, h)
	return h, nil
}

func (m *Memory) EditMessage(_ context.Context, handle MessageHandle, content Content) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	if _, ok := m.messages[handle]; !ok {
		return ErrUnknownMessage
	}
	m.messages[handle] = content
	return nil
}

func (m *Memory) FetchMessage(_ context.Context, handle MessageHandle) (Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return Content{}, err
	}
	c, ok := m.messages[handle]
	if !ok {
		return Content{}, ErrUnknownMessage
	}
	return c, nil
}

func (m *Memory) OpenPrivateInterface(ctx context.Context, userID string, prompt Prompt) (Selection, error) {
	m.mu.Lock()
	if err := m.fail(); err != nil {
		m.mu.Unlock()
		return Selection{}, err
	}
	m.prompts = append(m.prompts, PromptRecord{UserID: userID, Prompt: prompt})
	answer := m.Answer
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Selection{}, err
	}
	if answer == nil {
		return Selection{Cancelled: true}, nil
	}
	return answer(userID, prompt), nil
}

func (m *Memory) RegisterButton(prefix string, fn ButtonHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buttons[prefix] = fn
}

func (m *Memory) CreateThread(_ context.Context, channelID, name string) (ThreadHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return ThreadHandle{}, err
	}
	m.seq++
	t := ThreadHandle{ParentID: channelID, ThreadID: fmt.Sprintf("t%d-%s", m.seq, name)}
	m.threads = append(m.threads, t)
	return t, nil
}

// Click delivers a button press the way a platform would. It reports false
// when no handler owns the button.
func (m *Memory) Click(ctx context.Context, click Click) bool {
	m.mu.Lock()
	var fn ButtonHandler
	best := -1
	for prefix, h := range m.buttons {
		if strings.HasPrefix(click.ButtonID, prefix) && len(prefix) > best {
			fn, best = h, len(prefix)
		}
	}
	m.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(ctx, click)
	return true
}

// Messages returns every message in send order with its current content.
func (m *Memory) Messages(channelID string) []Content {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Content
	for _, h := range m.order {
		if channelID == "" || h.ChannelID == channelID {
			out = append(out, m.messages[h])
		}
	}
	return out
}

func (m *Memory) Prompts() []PromptRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.prompts)
}

func (m *Memory) Threads() []ThreadHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.threads)
}
