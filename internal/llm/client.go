// Package llm provides the reply capability consumed by the conversation
// driver: given a role's instruction profile and the rolling history,
// produce that role's next message.
//
// [OpenAIClient] is the production implementation. [Scripted] replays
// canned replies for tests and offline demo runs.
package llm

import (
	"context"
	"fmt"
	"strings"

	"pagewright/internal/conversation"
	"pagewright/internal/role"
)

// Client generates one reply on behalf of a role. Implementations must be
// safe for sequential reuse across turns; concurrent calls are never made
// for a single workflow run.
type Client interface {
	GenerateReply(ctx context.Context, def role.Definition, h conversation.History) (string, error)
}

// ChatTurn is one history entry flattened for a chat-completion API.
type ChatTurn struct {
	// Assistant marks turns previously spoken by the role now replying.
	Assistant bool
	Content   string
}

// FlattenHistory converts history into chat turns from the perspective of
// the role about to speak: that role's own prior messages become assistant
// turns, everything else becomes labelled user turns so the model can tell
// the human and the other roles apart.
func FlattenHistory(self conversation.Speaker, h conversation.History) []ChatTurn {
	turns := make([]ChatTurn, 0, len(h))
	for _, m := range h {
		if m.Speaker == self {
			turns = append(turns, ChatTurn{Assistant: true, Content: m.Text})
			continue
		}
		turns = append(turns, ChatTurn{
			Content: fmt.Sprintf("[%s] %s", m.Speaker, m.Text),
		})
	}
	return turns
}

// Scripted replays queued replies per role, in order. It implements
// [Client] without any network dependency.
type Scripted struct {
	replies map[conversation.Speaker][]string
	// Calls records the roles invoked, in order.
	Calls []conversation.Speaker
}

// NewScripted builds a scripted client from per-role reply queues.
func NewScripted(replies map[conversation.Speaker][]string) *Scripted {
	copied := make(map[conversation.Speaker][]string, len(replies))
	for k, v := range replies {
		copied[k] = append([]string(nil), v...)
	}
	return &Scripted{replies: copied}
}

// GenerateReply pops the next queued reply for the role. It fails when the
// queue for that role is exhausted, which doubles as an assertion that a
// test's run took exactly the expected turns.
func (s *Scripted) GenerateReply(_ context.Context, def role.Definition, _ conversation.History) (string, error) {
	speaker := conversation.Speaker(def.Name)
	s.Calls = append(s.Calls, speaker)
	queue := s.replies[speaker]
	if len(queue) == 0 {
		return "", fmt.Errorf("no scripted reply left for role %q", def.Name)
	}
	s.replies[speaker] = queue[1:]
	return queue[0], nil
}

// Repeating returns a scripted client that answers every role with the same
// fixed text forever. Useful for safety-bound tests that need a run that
// never terminates on its own.
func Repeating(text string) Client {
	return repeating(text)
}

type repeating string

func (r repeating) GenerateReply(context.Context, role.Definition, conversation.History) (string, error) {
	return string(r), nil
}

// sanitizeReply trims the reply and rejects blank output, which some
// models produce when a stop sequence fires immediately.
func sanitizeReply(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", fmt.Errorf("model returned an empty reply")
	}
	return trimmed, nil
}
