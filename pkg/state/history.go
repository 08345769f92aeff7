package state

import "github.com/telmele/pictochat-touchgrass/pkg/protocol"

// History is a fixed-capacity ring of the most recent messages in a
// room. Appending beyond capacity evicts the oldest entry.
type History struct {
	buf   []*protocol.ChatMessage
	start int
	size  int
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 1
	}
	return &History{buf: make([]*protocol.ChatMessage, capacity)}
}

func (h *History) Append(m *protocol.ChatMessage) {
	if h.size < len(h.buf) {
		h.buf[(h.start+h.size)%len(h.buf)] = m
		h.size++
		return
	}
	h.buf[h.start] = m
	h.start = (h.start + 1) % len(h.buf)
}

// Snapshot returns the retained messages, oldest first.
func (h *History) Snapshot() []*protocol.ChatMessage {
	out := make([]*protocol.ChatMessage, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

func (h *History) Len() int {
	return h.size
}
