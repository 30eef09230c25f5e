package agent

import (
	"sync"

	"github.com/nidhogg/calcaro/internal/provider"
)

// History is the append-only transcript of one conversation. The caller
// owns it; the engine appends to it and never edits or removes entries.
type History struct {
	mu       sync.RWMutex
	messages []provider.Message
}

// NewHistory seeds a history with the system prompt.
func NewHistory(systemPrompt string) *History {
	h := &History{}
	if systemPrompt != "" {
		h.messages = append(h.messages, provider.Message{Role: provider.RoleSystem, Content: systemPrompt})
	}
	return h
}

// Append adds a message to the end of the history.
func (h *History) Append(msg provider.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
}

// Messages returns a snapshot of the history.
func (h *History) Messages() []provider.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]provider.Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}
