package driver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagewright/internal/conversation"
	"pagewright/internal/llm"
	"pagewright/internal/role"
	"pagewright/internal/selector"
)

func newDriver(client llm.Client) *Driver {
	return New(selector.Rules{}, client, role.Defaults(), nil)
}

func TestRunHappyPath(t *testing.T) {
	client := llm.NewScripted(map[conversation.Speaker][]string{
		conversation.RoleRequirements: {"Requirements are clear. Ready for development."},
		conversation.RoleBuilder:      {"```html\n<html><body>stopwatch</body></html>\n```"},
		conversation.RoleReviewer:     {"Page satisfies the requirements. READY FOR USER APPROVAL"},
	})

	state := newDriver(client).Run(context.Background(), "build a stopwatch")

	assert.Equal(t, OutcomeReadyForApproval, state.Outcome)
	assert.Equal(t, 3, state.TurnCount)
	assert.Empty(t, state.FailureReason)

	require.Len(t, state.History, 4)
	assert.Equal(t, conversation.SpeakerHuman, state.History[0].Speaker)
	assert.Equal(t, conversation.RoleRequirements, state.History[1].Speaker)
	assert.Equal(t, conversation.RoleBuilder, state.History[2].Speaker)
	assert.Equal(t, conversation.RoleReviewer, state.History[3].Speaker)
}

func TestRunSafetyLimit(t *testing.T) {
	// A reply that never completes requirements, never carries a fence,
	// and never carries the ready marker keeps the loop oscillating until
	// the hard bound stops it.
	state := newDriver(llm.Repeating("still working on it")).Run(context.Background(), "build a page")

	assert.Equal(t, OutcomeSafetyLimitExceeded, state.Outcome)
	assert.Equal(t, SafetyLimit+1, state.TurnCount)
}

func TestRunReplyFailureIsIncomplete(t *testing.T) {
	// An empty scripted queue makes the first generation call fail.
	client := llm.NewScripted(nil)

	state := newDriver(client).Run(context.Background(), "build a page")

	assert.Equal(t, OutcomeIncomplete, state.Outcome)
	assert.Contains(t, state.FailureReason, "no scripted reply left")
	// The failed turn appended nothing beyond the seed message.
	assert.Len(t, state.History, 1)
}

func TestRunCancelBeforeFirstTurn(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := llm.NewScripted(map[conversation.Speaker][]string{
		conversation.RoleRequirements: {"Requirements are clear."},
	})
	state := newDriver(client).Run(ctx, "build a page")

	assert.Equal(t, OutcomeIncomplete, state.Outcome)
	assert.Contains(t, state.FailureReason, "canceled")
	assert.Zero(t, state.TurnCount)
	assert.Empty(t, client.Calls)
}

func TestRunCancelBetweenTurns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	client := llm.NewScripted(map[conversation.Speaker][]string{
		conversation.RoleRequirements: {"Requirements are clear."},
		conversation.RoleBuilder:      {"```html\n<p>x</p>\n```"},
	})
	d := newDriver(client)
	d.SetTurnCallback(func(m conversation.Message) {
		if m.Speaker == conversation.RoleRequirements {
			cancel()
		}
	})

	state := d.Run(ctx, "build a page")

	assert.Equal(t, OutcomeIncomplete, state.Outcome)
	// The cancel landed after the requirements turn; the builder never ran.
	assert.Equal(t, 1, state.TurnCount)
	assert.Equal(t, []conversation.Speaker{conversation.RoleRequirements}, client.Calls)
}

func TestRunCollectsHumanReplyBetweenRequirementsTurns(t *testing.T) {
	client := llm.NewScripted(map[conversation.Speaker][]string{
		conversation.RoleRequirements: {
			"What color scheme do you prefer?",
			"Requirements are clear. Ready for development.",
		},
		conversation.RoleBuilder:  {"```html\n<p>blue page</p>\n```"},
		conversation.RoleReviewer: {"READY FOR USER APPROVAL"},
	})

	d := newDriver(client)
	d.SetHumanInput(func(context.Context) (string, error) {
		return "blue, please", nil
	})

	state := d.Run(context.Background(), "build a page")

	require.Equal(t, OutcomeReadyForApproval, state.Outcome)

	// The human reply must sit between the two requirements messages.
	var speakers []conversation.Speaker
	for _, m := range state.History {
		speakers = append(speakers, m.Speaker)
	}
	assert.Equal(t, []conversation.Speaker{
		conversation.SpeakerHuman,
		conversation.RoleRequirements,
		conversation.SpeakerHuman,
		conversation.RoleRequirements,
		conversation.RoleBuilder,
		conversation.RoleReviewer,
	}, speakers)
	assert.Equal(t, "blue, please", state.History[2].Text)
}

func TestRunWithoutHumanInputClosesRequirementsPhase(t *testing.T) {
	client := llm.NewScripted(map[conversation.Speaker][]string{
		conversation.RoleRequirements: {"What color scheme do you prefer?"},
		conversation.RoleBuilder:      {"```html\n<p>page</p>\n```"},
		conversation.RoleReviewer:     {"READY FOR USER APPROVAL"},
	})

	state := newDriver(client).Run(context.Background(), "build a page")

	require.Equal(t, OutcomeReadyForApproval, state.Outcome)

	// A synthesized completion closed the unanswered question so the
	// builder could proceed.
	found := false
	for _, m := range state.History {
		if m.Speaker == conversation.RoleRequirements && m.Text == selector.SynthesizedCompletion {
			found = true
		}
	}
	assert.True(t, found, "synthesized completion missing from history")
}

func TestRunNeverGeneratesConsecutiveRequirementsTurns(t *testing.T) {
	client := llm.NewScripted(map[conversation.Speaker][]string{
		conversation.RoleRequirements: {"Question one?", "Question two?"},
		conversation.RoleBuilder:      {"```html\n<p>x</p>\n```"},
		conversation.RoleReviewer:     {"READY FOR USER APPROVAL"},
	})
	d := newDriver(client)
	replies := []string{"answer one"}
	d.SetHumanInput(func(context.Context) (string, error) {
		if len(replies) == 0 {
			return "", nil
		}
		r := replies[0]
		replies = replies[1:]
		return r, nil
	})

	state := d.Run(context.Background(), "build a page")
	require.Equal(t, OutcomeReadyForApproval, state.Outcome)

	for i := 1; i < len(state.History); i++ {
		prev, cur := state.History[i-1], state.History[i]
		if cur.Speaker == conversation.RoleRequirements && prev.Speaker == conversation.RoleRequirements {
			// Only a synthesized completion may directly follow a
			// requirements message.
			assert.Equal(t, selector.SynthesizedCompletion, cur.Text)
		}
	}
}

func TestTurnCallbackSeesEveryMessage(t *testing.T) {
	client := llm.NewScripted(map[conversation.Speaker][]string{
		conversation.RoleRequirements: {"Requirements are clear."},
		conversation.RoleBuilder:      {"```html\n<p>x</p>\n```"},
		conversation.RoleReviewer:     {"READY FOR USER APPROVAL"},
	})
	d := newDriver(client)

	var seen []int
	d.SetTurnCallback(func(m conversation.Message) {
		seen = append(seen, m.Sequence)
	})

	state := d.Run(context.Background(), "build a page")
	require.Equal(t, OutcomeReadyForApproval, state.Outcome)
	assert.Equal(t, []int{0, 1, 2, 3}, seen)
}

func TestOutcomeTerminal(t *testing.T) {
	assert.False(t, OutcomePending.Terminal())
	assert.False(t, Outcome("").Terminal())
	assert.True(t, OutcomeReadyForApproval.Terminal())
	assert.True(t, OutcomeSafetyLimitExceeded.Terminal())
	assert.True(t, OutcomeIncomplete.Terminal())

	assert.True(t, OutcomePending.IsValid())
	assert.False(t, Outcome("done").IsValid())
}
