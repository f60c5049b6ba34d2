// Package selector decides which role speaks next in a workflow run.
//
// The default [Rules] strategy is a fixed precedence table over the rolling
// history, so runs driven by it are fully deterministic. [LLMStrategy] is an
// optional model-assisted variant behind the same [Strategy] contract; it
// falls back to the rule table whenever the model's answer cannot be parsed.
package selector

import (
	"context"

	"pagewright/internal/conversation"
	"pagewright/internal/extract"
)

// DefaultRequirementsTurnLimit is how many consecutive requirements turns
// may pass without a human reply before the escape valve forces the builder
// to take over. The exact threshold is a policy knob, not a correctness
// bound; it only needs to be finite.
const DefaultRequirementsTurnLimit = 3

// SynthesizedCompletion is the text appended on the requirements role's
// behalf when the escape valve fires, so later selections see a normal
// completion phrase instead of an abandoned question.
const SynthesizedCompletion = "Requirements are clear. Proceeding with implementation based on the discussion so far."

// Decision is the outcome of one selection step.
type Decision struct {
	// Next is the role that should produce the next message.
	Next conversation.Speaker

	// Synthesized, when non-empty, is a message the driver must append to
	// history attributed to the requirements role before invoking Next.
	// It is set only by the anti-loop escape valve.
	Synthesized string
}

// Strategy chooses the next speaker for a history. Implementations must be
// side-effect free: any history mutation they require is communicated
// through [Decision.Synthesized] and performed by the caller.
type Strategy interface {
	Select(ctx context.Context, h conversation.History) (Decision, error)
}

// Rules is the deterministic precedence-table strategy. The zero value uses
// [DefaultRequirementsTurnLimit].
type Rules struct {
	// RequirementsTurnLimit overrides the escape-valve threshold when > 0.
	RequirementsTurnLimit int
}

// Select applies the precedence table, first match wins:
//
//  1. Empty history, or a human spoke last and requirements has not yet
//     declared completion → requirements.
//  2. The most recent requirements message declares completion → builder.
//  3. The last message is builder output containing a code fence → reviewer.
//  4. The last message is reviewer feedback without the ready marker →
//     builder (a revision was requested).
//  5. Requirements has produced too many messages with no human reply in
//     between → force builder and synthesize a completion message.
//  6. Otherwise → requirements.
//
// Select never fails and ignores ctx; both exist to satisfy [Strategy].
func (r Rules) Select(_ context.Context, h conversation.History) (Decision, error) {
	last, exists := h.Last()

	// Rule 1.
	if !exists || (last.Speaker == conversation.SpeakerHuman && !requirementsDone(h)) {
		return Decision{Next: conversation.RoleRequirements}, nil
	}

	// Rule 2.
	if requirementsDone(h) && needsBuild(h) {
		return Decision{Next: conversation.RoleBuilder}, nil
	}

	// Rule 3.
	if last.Speaker == conversation.RoleBuilder && extract.HasFence(last.Text) {
		return Decision{Next: conversation.RoleReviewer}, nil
	}

	// Rule 4.
	if last.Speaker == conversation.RoleReviewer && !last.ContainsFold(conversation.ReadyMarker) {
		return Decision{Next: conversation.RoleBuilder}, nil
	}

	// Rule 5.
	if r.requirementsStuck(h) {
		return Decision{
			Next:        conversation.RoleBuilder,
			Synthesized: SynthesizedCompletion,
		}, nil
	}

	// Rule 6.
	return Decision{Next: conversation.RoleRequirements}, nil
}

// requirementsDone reports whether the most recent requirements message
// contains the completion phrase.
func requirementsDone(h conversation.History) bool {
	m, ok := h.LastFrom(conversation.RoleRequirements)
	return ok && m.ContainsFold(conversation.RequirementsDonePhrase)
}

// needsBuild reports whether the builder still owes a turn after the most
// recent requirements completion: true unless a builder message already
// follows the completing requirements message.
func needsBuild(h conversation.History) bool {
	done, ok := h.LastFrom(conversation.RoleRequirements)
	if !ok {
		return false
	}
	b, built := h.LastFrom(conversation.RoleBuilder)
	return !built || b.Sequence < done.Sequence
}

// requirementsStuck reports whether the requirements role has spoken at
// least the limit number of times since the last human message.
func (r Rules) requirementsStuck(h conversation.History) bool {
	limit := r.RequirementsTurnLimit
	if limit <= 0 {
		limit = DefaultRequirementsTurnLimit
	}
	n := 0
	for i := len(h) - 1; i >= 0; i-- {
		switch h[i].Speaker {
		case conversation.SpeakerHuman:
			return false
		case conversation.RoleRequirements:
			n++
			if n >= limit {
				return true
			}
		}
	}
	return false
}
