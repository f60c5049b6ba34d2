// Package role holds the static instruction profiles for the three
// conversational personas.
//
// Each role maps to a system prompt handed to the reply capability; roles
// carry no per-run state. Built-in prompts cover the common case, and a
// deployment can override any of them with a YAML definition file (see
// [LoadOverrides]).
package role

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"pagewright/internal/conversation"
)

// Definition is one persona's instruction profile.
type Definition struct {
	// Name matches a role speaker value ("requirements", "builder",
	// "reviewer").
	Name string `yaml:"name"`

	// Description is a short human-readable summary shown in listings.
	Description string `yaml:"description"`

	// SystemPrompt is the full instruction text for the reply capability.
	SystemPrompt string `yaml:"systemPrompt"`
}

// overrideFile is the on-disk shape of a role override document.
type overrideFile struct {
	Kind  string       `yaml:"kind"`
	Roles []Definition `yaml:"roles"`
}

// OverrideKind is the required kind value in a role override file.
const OverrideKind = "RoleDefinition"

const requirementsPrompt = `You are a requirements analyst for single-page web applications.
Read the user's request and ask at most two short clarifying questions if the
request is genuinely ambiguous. When the requirements are understood, state
them as a concise numbered list and finish with the exact phrase
"Requirements are clear. Ready for development."
Do not write any code.`

const builderPrompt = `You are a web developer who builds complete single-page applications.
Produce one self-contained HTML document with inline CSS and JavaScript,
wrapped in a single fenced code block tagged html:

` + "```html\n<!DOCTYPE html>\n...\n```" + `

The page must work when saved to a file and opened directly in a browser.
No external dependencies, no build step, no server. When a reviewer requests
changes, emit the full revised document, never a diff.`

const reviewerPrompt = `You are a quality reviewer for single-page web applications.
Inspect the most recent builder output against the stated requirements.
If anything is missing or broken, list the concrete problems and ask the
builder to revise. When the page fully satisfies the requirements, reply
with a short summary ending in the exact phrase "READY FOR USER APPROVAL".
Never emit that phrase unless the page is genuinely complete.`

// Registry maps each role to its definition. Construct with [Defaults] and
// optionally layer a deployment's overrides on top.
type Registry struct {
	defs map[conversation.Speaker]Definition
}

// Defaults returns a registry with the built-in persona definitions.
func Defaults() *Registry {
	return &Registry{defs: map[conversation.Speaker]Definition{
		conversation.RoleRequirements: {
			Name:         string(conversation.RoleRequirements),
			Description:  "clarifies the request and declares when requirements are settled",
			SystemPrompt: requirementsPrompt,
		},
		conversation.RoleBuilder: {
			Name:         string(conversation.RoleBuilder),
			Description:  "produces the single-page artifact as a fenced html block",
			SystemPrompt: builderPrompt,
		},
		conversation.RoleReviewer: {
			Name:         string(conversation.RoleReviewer),
			Description:  "reviews builder output and emits the ready marker",
			SystemPrompt: reviewerPrompt,
		},
	}}
}

// Lookup returns the definition for a role speaker.
func (r *Registry) Lookup(s conversation.Speaker) (Definition, error) {
	d, ok := r.defs[s]
	if !ok {
		return Definition{}, fmt.Errorf("no definition for role %q", s)
	}
	return d, nil
}

// All returns the definitions in the fixed role order.
func (r *Registry) All() []Definition {
	out := make([]Definition, 0, len(r.defs))
	for _, s := range conversation.Roles() {
		if d, ok := r.defs[s]; ok {
			out = append(out, d)
		}
	}
	return out
}

// LoadOverrides reads a YAML override file and replaces the matching
// built-in definitions. Unknown role names are rejected rather than
// silently ignored so a typo in the file surfaces immediately.
func (r *Registry) LoadOverrides(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read role overrides: %w", err)
	}
	return r.ApplyOverrides(data)
}

// ApplyOverrides parses override YAML and merges it into the registry.
func (r *Registry) ApplyOverrides(data []byte) error {
	var file overrideFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse role overrides: %w", err)
	}
	if file.Kind != OverrideKind {
		return fmt.Errorf("unexpected override kind %q, want %q", file.Kind, OverrideKind)
	}
	for _, def := range file.Roles {
		s := conversation.Speaker(def.Name)
		if !s.IsRole() {
			return fmt.Errorf("override names unknown role %q", def.Name)
		}
		merged := r.defs[s]
		if def.Description != "" {
			merged.Description = def.Description
		}
		if def.SystemPrompt != "" {
			merged.SystemPrompt = def.SystemPrompt
		}
		r.defs[s] = merged
	}
	return nil
}
