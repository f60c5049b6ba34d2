package role

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagewright/internal/conversation"
)

func TestDefaults(t *testing.T) {
	r := Defaults()

	for _, s := range conversation.Roles() {
		d, err := r.Lookup(s)
		require.NoError(t, err)
		assert.Equal(t, string(s), d.Name)
		assert.NotEmpty(t, d.SystemPrompt)
	}

	_, err := r.Lookup(conversation.SpeakerHuman)
	assert.Error(t, err)

	assert.Len(t, r.All(), 3)
}

func TestDefaultPromptsCarrySignalPhrases(t *testing.T) {
	r := Defaults()

	req, _ := r.Lookup(conversation.RoleRequirements)
	assert.Contains(t, req.SystemPrompt, "Requirements are clear")

	rev, _ := r.Lookup(conversation.RoleReviewer)
	assert.Contains(t, rev.SystemPrompt, conversation.ReadyMarker)
}

func TestApplyOverrides(t *testing.T) {
	t.Run("replaces prompt, keeps description", func(t *testing.T) {
		r := Defaults()
		before, _ := r.Lookup(conversation.RoleBuilder)

		err := r.ApplyOverrides([]byte(`
kind: RoleDefinition
roles:
  - name: builder
    systemPrompt: "Build pages in a brutalist style."
`))
		require.NoError(t, err)

		after, _ := r.Lookup(conversation.RoleBuilder)
		assert.Equal(t, "Build pages in a brutalist style.", after.SystemPrompt)
		assert.Equal(t, before.Description, after.Description)
	})

	t.Run("wrong kind rejected", func(t *testing.T) {
		err := Defaults().ApplyOverrides([]byte("kind: Persona\nroles: []\n"))
		assert.ErrorContains(t, err, "unexpected override kind")
	})

	t.Run("unknown role rejected", func(t *testing.T) {
		err := Defaults().ApplyOverrides([]byte(`
kind: RoleDefinition
roles:
  - name: architect
    systemPrompt: "x"
`))
		assert.ErrorContains(t, err, "unknown role")
	})

	t.Run("malformed yaml rejected", func(t *testing.T) {
		err := Defaults().ApplyOverrides([]byte("kind: [unterminated"))
		assert.Error(t, err)
	})
}
