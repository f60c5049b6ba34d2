package server

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"pagewright/internal/conversation"
	"pagewright/internal/driver"
)

// runHandle tracks one workflow run owned by the server. The driver's turn
// callback appends into messages under mu; everything else reads through
// snapshot accessors.
type runHandle struct {
	id      string
	request string
	cancel  context.CancelFunc

	mu       sync.Mutex
	messages conversation.History
	state    *driver.WorkflowState
	canceled bool
}

func (h *runHandle) appendMessage(m conversation.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, m)
}

func (h *runHandle) finish(state *driver.WorkflowState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = state
}

func (h *runHandle) markCanceled() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.canceled = true
}

// snapshot returns the current outcome, transcript copy, and flags.
func (h *runHandle) snapshot() (driver.Outcome, conversation.History, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	outcome := driver.OutcomePending
	history := h.messages.Snapshot()
	if h.state != nil {
		outcome = h.state.Outcome
		history = h.state.History.Snapshot()
	}
	return outcome, history, h.canceled
}

func (h *runHandle) failureReason() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == nil {
		return ""
	}
	return h.state.FailureReason
}

// registry is the in-memory index of runs started by this process.
type registry struct {
	mu   sync.Mutex
	runs map[string]*runHandle
}

func newRegistry() *registry {
	return &registry{runs: make(map[string]*runHandle)}
}

func (r *registry) add(request string, cancel context.CancelFunc) *runHandle {
	h := &runHandle{
		id:      uuid.NewString(),
		request: request,
		cancel:  cancel,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[h.id] = h
	return h
}

func (r *registry) get(id string) (*runHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.runs[id]
	return h, ok
}

func (r *registry) all() []*runHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*runHandle, 0, len(r.runs))
	for _, h := range r.runs {
		out = append(out, h)
	}
	return out
}
