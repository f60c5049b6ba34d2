package llm

import (
	"context"
	"fmt"
	"strings"

	"pagewright/internal/conversation"
	"pagewright/internal/role"
)

const oraclePrompt = `You are a conversation router for a three-role workflow.
The roles are: requirements (clarifies the request), builder (writes the
page), reviewer (checks the page). Given the transcript, answer with the
single role name that should speak next. Answer with one word only.`

// SpeakerOracle adapts a [Client] to the turn selector's oracle contract:
// it asks the model which role should speak next and returns the raw text
// for the selector to parse.
type SpeakerOracle struct {
	Client Client
}

// SuggestSpeaker renders the transcript and asks for a one-word routing
// decision.
func (o SpeakerOracle) SuggestSpeaker(ctx context.Context, h conversation.History) (string, error) {
	var b strings.Builder
	for _, m := range h.Tail(10) {
		fmt.Fprintf(&b, "[%s] %s\n", m.Speaker, m.Text)
	}
	def := role.Definition{
		Name:         "router",
		SystemPrompt: oraclePrompt,
	}
	var routed conversation.History
	routed.Append(conversation.SpeakerHuman, b.String())
	return o.Client.GenerateReply(ctx, def, routed)
}
