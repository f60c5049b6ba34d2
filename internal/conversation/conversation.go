// Package conversation defines the shared data model for a workflow run's
// chat history.
//
// A workflow run is a single ordered conversation between the human and the
// three scripted roles. Messages are append-only: once a [Message] is added
// to a [History] it is never mutated, and its Sequence records the append
// order. The conversation driver is the only writer; every other component
// receives the history as a read-only snapshot.
//
// Key types:
//   - [Speaker] - Closed enumeration of message authors (human + three roles)
//   - [Message] - A single immutable history entry
//   - [History] - Ordered message sequence with append and lookup helpers
package conversation

import "strings"

// Speaker identifies the author of a [Message].
//
// The value is either [SpeakerHuman] or one of the three fixed role
// identifiers. Roles are a closed set; there is no mechanism for
// registering additional speakers at runtime.
type Speaker string

const (
	// SpeakerHuman is the person driving the workflow. Human messages are
	// only ever seeded or injected by the shell, never generated.
	SpeakerHuman Speaker = "human"

	// RoleRequirements gathers requirements from the initial request and
	// signals completion with the requirements-clear phrase.
	RoleRequirements Speaker = "requirements"

	// RoleBuilder produces the page artifact inside a fenced html code block.
	RoleBuilder Speaker = "builder"

	// RoleReviewer reviews builder output and signals fitness for human
	// approval with the ready marker.
	RoleReviewer Speaker = "reviewer"
)

// ReadyMarker is the literal reviewer phrase that signals the artifact is
// fit for human approval. Detection is case-insensitive and only meaningful
// on messages authored by [RoleReviewer].
const ReadyMarker = "READY FOR USER APPROVAL"

// RequirementsDonePhrase is the phrase the requirements role uses to signal
// that requirements gathering is complete. Matching is a case-insensitive
// substring check.
const RequirementsDonePhrase = "requirements are clear"

// Roles returns the three role speakers in their natural workflow order.
func Roles() []Speaker {
	return []Speaker{RoleRequirements, RoleBuilder, RoleReviewer}
}

// IsRole reports whether the speaker is one of the three fixed roles
// (i.e. not the human).
func (s Speaker) IsRole() bool {
	switch s {
	case RoleRequirements, RoleBuilder, RoleReviewer:
		return true
	}
	return false
}

// IsValid reports whether the speaker is a recognized value, including
// [SpeakerHuman].
func (s Speaker) IsValid() bool {
	return s == SpeakerHuman || s.IsRole()
}

// Message is a single entry in a workflow conversation.
//
// Messages are immutable once appended. Sequence is assigned by
// [History.Append] and equals the message's position in append order,
// starting at zero with the seeded human request.
type Message struct {
	Speaker  Speaker `json:"speaker"`
	Text     string  `json:"text"`
	Sequence int     `json:"sequence"`
}

// ContainsFold reports whether the message text contains the given phrase,
// ignoring case. Used for marker detection.
func (m Message) ContainsFold(phrase string) bool {
	return strings.Contains(strings.ToUpper(m.Text), strings.ToUpper(phrase))
}

// History is an ordered, append-only sequence of messages.
//
// The zero value is ready to use. History is not safe for concurrent
// mutation; the driver is the single writer and hands out copies via
// [History.Snapshot] when other goroutines need to read.
type History []Message

// Append adds a message with the next sequence number and returns the
// appended message.
func (h *History) Append(speaker Speaker, text string) Message {
	msg := Message{Speaker: speaker, Text: text, Sequence: len(*h)}
	*h = append(*h, msg)
	return msg
}

// Last returns the most recent message and true, or a zero message and
// false when the history is empty.
func (h History) Last() (Message, bool) {
	if len(h) == 0 {
		return Message{}, false
	}
	return h[len(h)-1], true
}

// LastFrom returns the most recent message authored by the given speaker
// and true, or a zero message and false when the speaker has not spoken.
func (h History) LastFrom(speaker Speaker) (Message, bool) {
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].Speaker == speaker {
			return h[i], true
		}
	}
	return Message{}, false
}

// CountFrom returns the number of messages authored by the given speaker.
func (h History) CountFrom(speaker Speaker) int {
	n := 0
	for _, m := range h {
		if m.Speaker == speaker {
			n++
		}
	}
	return n
}

// Tail returns the last n messages (or the whole history when it is
// shorter). The returned slice shares backing storage and must be treated
// as read-only.
func (h History) Tail(n int) History {
	if n <= 0 {
		return nil
	}
	if len(h) <= n {
		return h
	}
	return h[len(h)-n:]
}

// Snapshot returns an independent copy of the history for safe concurrent
// reads.
func (h History) Snapshot() History {
	out := make(History, len(h))
	copy(out, h)
	return out
}
