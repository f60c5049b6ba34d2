package selector

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"pagewright/internal/conversation"
)

// Oracle produces a free-text suggestion for which role should speak next.
// The suggestion does not have to be a clean enum value; [LLMStrategy]
// parses it tolerantly and falls back to the rule table when it cannot.
type Oracle interface {
	SuggestSpeaker(ctx context.Context, h conversation.History) (string, error)
}

// LLMStrategy asks an [Oracle] to pick the next speaker and validates the
// answer against the deterministic rule table. A model answer only replaces
// the table's choice when it parses to a valid role; every other case
// (error, ambiguous text, unknown role) uses the table's decision, so the
// workflow can never stall on a confused model.
type LLMStrategy struct {
	Oracle   Oracle
	Fallback Rules
	Log      *zap.Logger
}

// NewLLMStrategy returns a strategy backed by oracle. A nil logger is
// replaced with a no-op logger.
func NewLLMStrategy(oracle Oracle, log *zap.Logger) *LLMStrategy {
	if log == nil {
		log = zap.NewNop()
	}
	return &LLMStrategy{Oracle: oracle, Log: log}
}

// Select consults the oracle and parses its suggestion. The escape-valve
// synthesis is always taken from the rule table: a model suggestion never
// fabricates history.
func (s *LLMStrategy) Select(ctx context.Context, h conversation.History) (Decision, error) {
	fallback, _ := s.Fallback.Select(ctx, h)
	if fallback.Synthesized != "" {
		// The anti-loop valve overrides any model opinion.
		return fallback, nil
	}

	raw, err := s.Oracle.SuggestSpeaker(ctx, h)
	if err != nil {
		s.Log.Warn("speaker suggestion failed, using rule table",
			zap.Error(err))
		return fallback, nil
	}

	role, ok := ParseSpeaker(raw)
	if !ok {
		s.Log.Warn("unparseable speaker suggestion, using rule table",
			zap.String("suggestion", raw))
		return fallback, nil
	}
	return Decision{Next: role}, nil
}

// ParseSpeaker extracts a role from free-form text. Matching is
// case-insensitive and tolerant of surrounding prose ("I think the Builder
// should go next"). It reports false when zero or more than one role name
// appears, since an ambiguous answer is as useless as none.
func ParseSpeaker(text string) (conversation.Speaker, bool) {
	lower := strings.ToLower(text)
	var found conversation.Speaker
	n := 0
	for _, role := range conversation.Roles() {
		if strings.Contains(lower, string(role)) {
			found = role
			n++
		}
	}
	if n != 1 {
		return "", false
	}
	return found, true
}
