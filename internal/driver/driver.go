// Package driver owns the turn loop that coordinates the three roles.
//
// [Driver] is the single writer of conversation history for a run: it asks
// the turn selector who speaks next, invokes that role's reply capability,
// appends the result, and re-evaluates completion and the safety bound
// after every turn. Generation never touches the publish path; the driver's
// only side effects are history appends and reply calls.
package driver

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"pagewright/internal/approval"
	"pagewright/internal/conversation"
	"pagewright/internal/llm"
	"pagewright/internal/role"
	"pagewright/internal/selector"
)

// SafetyLimit is the hard backstop on messages appended by roles in one
// run. The selection heuristic can oscillate, so the loop stops once the
// count exceeds this bound regardless of conversation state. It is not a
// per-run tunable.
const SafetyLimit = 20

// WorkflowState is the explicit state value for one run. The driver builds
// it; callers own persisting it between turns and never reach into driver
// internals.
type WorkflowState struct {
	// History is the full recorded conversation, in append order.
	History conversation.History

	// Outcome is write-once: once terminal, no further turns are taken.
	Outcome Outcome

	// TurnCount is the number of role messages appended, synthesized
	// completions included.
	TurnCount int

	// FailureReason carries the underlying error text when Outcome is
	// [OutcomeIncomplete]. Empty otherwise.
	FailureReason string
}

// finish records a terminal outcome exactly once.
func (s *WorkflowState) finish(o Outcome, reason string) {
	if s.Outcome.Terminal() {
		return
	}
	s.Outcome = o
	s.FailureReason = reason
}

// TurnCallback is invoked after each message is appended to history,
// including the seed human message and any synthesized completion. It
// enables live transcript rendering in the UI shells.
type TurnCallback func(m conversation.Message)

// HumanInput supplies a human reply mid-run when the requirements role has
// asked a question. Returning an empty string means the human has nothing
// to add; the driver then forces the requirements phase closed rather than
// letting the role question an empty room.
type HumanInput func(ctx context.Context) (string, error)

// Driver runs the turn loop. Construct with [New]; the zero value is not
// usable.
type Driver struct {
	strategy selector.Strategy
	client   llm.Client
	roles    *role.Registry
	log      *zap.Logger

	turnCallback TurnCallback
	humanInput   HumanInput
}

// New creates a driver. strategy picks speakers, client generates replies,
// roles supplies each speaker's instruction profile. A nil logger is
// replaced with a no-op logger.
func New(strategy selector.Strategy, client llm.Client, roles *role.Registry, log *zap.Logger) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Driver{
		strategy: strategy,
		client:   client,
		roles:    roles,
		log:      log,
	}
}

// SetTurnCallback configures an optional per-message callback.
func (d *Driver) SetTurnCallback(cb TurnCallback) {
	d.turnCallback = cb
}

// SetHumanInput configures an optional mid-run human reply source. Without
// one, an unanswered requirements question immediately closes the
// requirements phase with a synthesized completion.
func (d *Driver) SetHumanInput(in HumanInput) {
	d.humanInput = in
}

// Run executes the turn loop for one request and returns the final state.
// The request is seeded into history as the initial human message before
// the first selection. Run never panics or propagates generation errors:
// every failure path lands in a terminal [Outcome].
//
// Cancellation is observed between turns only; a cancel arriving while a
// reply call is in flight takes effect at the next loop check (the call
// itself also receives ctx and may end early).
func (d *Driver) Run(ctx context.Context, request string) *WorkflowState {
	state := &WorkflowState{Outcome: OutcomePending}
	d.append(state, conversation.SpeakerHuman, request)

	for {
		if err := ctx.Err(); err != nil {
			d.log.Info("run canceled", zap.Int("turns", state.TurnCount))
			state.finish(OutcomeIncomplete, "canceled: "+err.Error())
			return state
		}

		next, ok := d.selectSpeaker(ctx, state)
		if !ok {
			return state
		}

		if err := d.takeTurn(ctx, state, next); err != nil {
			d.log.Warn("reply capability failed",
				zap.String("role", string(next)),
				zap.Error(err))
			state.finish(OutcomeIncomplete, err.Error())
			return state
		}

		if approval.ReadyForApproval(state.History) {
			d.log.Info("reviewer signalled readiness", zap.Int("turns", state.TurnCount))
			state.finish(OutcomeReadyForApproval, "")
			return state
		}

		if state.TurnCount > SafetyLimit {
			d.log.Warn("safety limit exceeded", zap.Int("turns", state.TurnCount))
			state.finish(OutcomeSafetyLimitExceeded, "")
			return state
		}
	}
}

// selectSpeaker consults the strategy and enforces the no-consecutive-
// requirements invariant: when the selector picks requirements while
// requirements spoke last, the driver first collects a human reply, or
// closes the requirements phase when none is available. The returned bool
// is false when the run reached a terminal state during selection.
func (d *Driver) selectSpeaker(ctx context.Context, state *WorkflowState) (conversation.Speaker, bool) {
	for {
		decision, err := d.strategy.Select(ctx, state.History)
		if err != nil {
			state.finish(OutcomeIncomplete, "turn selection failed: "+err.Error())
			return "", false
		}

		if decision.Synthesized != "" {
			if !d.appendRole(state, conversation.RoleRequirements, decision.Synthesized) {
				return "", false
			}
			return decision.Next, true
		}

		last, exists := state.History.Last()
		if decision.Next != conversation.RoleRequirements ||
			!exists || last.Speaker != conversation.RoleRequirements {
			return decision.Next, true
		}

		// Requirements would speak twice in a row. A human reply must sit
		// between consecutive requirements turns.
		reply, err := d.collectHumanReply(ctx)
		if err != nil {
			state.finish(OutcomeIncomplete, "human input failed: "+err.Error())
			return "", false
		}
		if reply == "" {
			if !d.appendRole(state, conversation.RoleRequirements, selector.SynthesizedCompletion) {
				return "", false
			}
			return conversation.RoleBuilder, true
		}
		d.append(state, conversation.SpeakerHuman, reply)
	}
}

// collectHumanReply returns the configured human input, or empty when no
// source is configured.
func (d *Driver) collectHumanReply(ctx context.Context) (string, error) {
	if d.humanInput == nil {
		return "", nil
	}
	reply, err := d.humanInput(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

// takeTurn invokes one role's reply capability and records the result.
func (d *Driver) takeTurn(ctx context.Context, state *WorkflowState, speaker conversation.Speaker) error {
	def, err := d.roles.Lookup(speaker)
	if err != nil {
		return err
	}

	reply, err := d.client.GenerateReply(ctx, def, state.History.Snapshot())
	if err != nil {
		return fmt.Errorf("reply from %s: %w", speaker, err)
	}

	d.append(state, speaker, reply)
	state.TurnCount++
	d.log.Debug("turn taken",
		zap.String("role", string(speaker)),
		zap.Int("turn", state.TurnCount),
		zap.Int("chars", len(reply)))
	return nil
}

// appendRole records a synthesized role message, counting it against the
// safety bound. It reports false when the bound was crossed.
func (d *Driver) appendRole(state *WorkflowState, speaker conversation.Speaker, text string) bool {
	d.append(state, speaker, text)
	state.TurnCount++
	if state.TurnCount > SafetyLimit {
		d.log.Warn("safety limit exceeded", zap.Int("turns", state.TurnCount))
		state.finish(OutcomeSafetyLimitExceeded, "")
		return false
	}
	return true
}

// append records a message and fires the turn callback.
func (d *Driver) append(state *WorkflowState, speaker conversation.Speaker, text string) {
	m := state.History.Append(speaker, text)
	if d.turnCallback != nil {
		d.turnCallback(m)
	}
}
