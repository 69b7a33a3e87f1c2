package memory

import (
	"llamatalks-be/internal/entity"
	"llamatalks-be/pkg/llm"
)

// Window is a bounded chat history. At most one system entry is kept and it
// always sits at the head; when the window overflows, the oldest non-system
// entry is dropped.
type Window struct {
	max     int
	system  *llm.Message
	entries []llm.Message
}

func NewWindow(max int) *Window {
	if max < 1 {
		max = 1
	}
	return &Window{max: max}
}

// Add appends m. A new system entry replaces the previous one.
func (w *Window) Add(m llm.Message) {
	if m.Role == llm.RoleSystem {
		sys := m
		w.system = &sys
	} else {
		w.entries = append(w.entries, m)
	}
	w.evict()
}

func (w *Window) evict() {
	for w.Len() > w.max && len(w.entries) > 0 {
		w.entries = w.entries[1:]
	}
}

func (w *Window) Len() int {
	n := len(w.entries)
	if w.system != nil {
		n++
	}
	return n
}

// Messages returns the window contents in send order.
func (w *Window) Messages() []llm.Message {
	out := make([]llm.Message, 0, w.Len())
	if w.system != nil {
		out = append(out, *w.system)
	}
	return append(out, w.entries...)
}

func RoleOf(role entity.MessageRole) string {
	if role == entity.MessageRoleAI {
		return llm.RoleAssistant
	}
	return llm.RoleUser
}

// FromMessages keeps the n most recent persisted messages, oldest first.
// msgs must already be in chronological order.
func FromMessages(msgs []*entity.Message, n int) []llm.Message {
	if n <= 0 {
		return []llm.Message{}
	}
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}

	out := make([]llm.Message, len(msgs))
	for i, m := range msgs {
		out[i] = llm.Message{Role: RoleOf(m.Role), Content: m.Content}
	}
	return out
}
