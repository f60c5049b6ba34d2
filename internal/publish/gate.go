// Package publish is the single choke point between a finished conversation
// and the irreversible publish side effect.
//
// [Gate.Publish] refuses without the exact approval token, always persists
// the artifact locally before any remote action, and reports remote
// failures through the [Receipt] rather than failing the call, so the user
// never loses generated work to a flaky remote.
package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"pagewright/internal/approval"
	"pagewright/internal/conversation"
	"pagewright/internal/extract"
)

// MinArtifactLen guards against publishing an empty or placeholder fence.
// Builder messages whose extracted artifact is shorter are skipped when
// locating the publishable output.
const MinArtifactLen = 50

// DefaultRemoteTimeout bounds the remote publish step. The remote action
// spawns network work and must not hang the gate indefinitely.
const DefaultRemoteTimeout = 2 * time.Minute

// ErrNoArtifact means the conversation holds no builder message with a
// usable artifact. Distinct from [NotApprovedError] so a UI can tell
// "nothing to approve" apart from "user declined".
var ErrNoArtifact = errors.New("no publishable artifact in conversation")

// NotApprovedError reports a rejected approval input. It carries the
// literal text the user entered so they can see what was compared.
type NotApprovedError struct {
	Input string
}

func (e *NotApprovedError) Error() string {
	return fmt.Sprintf("not approved: input %q is not the approval token", e.Input)
}

// Result is what a [Publisher] reports for one remote attempt.
type Result struct {
	// LocalOnly means no repository exists at the target location; the
	// remote step was legitimately skipped rather than failed.
	LocalOnly bool

	// Pushed means the commit reached the remote.
	Pushed bool

	// Commit is the created commit hash, when one was made.
	Commit string

	// Locators point at the published artifact, when available.
	Locators *Locators
}

// Publisher performs the external publish action for a locally saved
// artifact: stage, commit, push.
type Publisher interface {
	PublishArtifact(ctx context.Context, localPath string) (Result, error)
}

// Receipt describes one gate invocation that passed the approval check.
type Receipt struct {
	// LocalPath is where the artifact was saved. The save succeeded if a
	// receipt exists at all.
	LocalPath string `json:"localPath"`

	// Bytes is the artifact length.
	Bytes int `json:"bytes"`

	// RemoteSuccess is true when the remote step pushed the artifact.
	// False covers both local-only mode and remote failure; check
	// LocalOnly and RemoteError to tell them apart.
	RemoteSuccess bool `json:"remoteSuccess"`

	// LocalOnly means no repository was present and no remote action was
	// attempted.
	LocalOnly bool `json:"localOnly"`

	// RemoteError carries the remote step's failure text, if any.
	RemoteError string `json:"remoteError,omitempty"`

	// Commit is the commit hash created by a successful remote step.
	Commit string `json:"commit,omitempty"`

	// Locators point at the published artifact on the remote, when the
	// publisher provides them.
	Locators *Locators `json:"locators,omitempty"`
}

// Gate validates approval and routes the artifact to disk and the
// publisher. Construct with [NewGate].
type Gate struct {
	outputPath    string
	publisher     Publisher
	remoteTimeout time.Duration
	log           *zap.Logger
}

// NewGate creates a gate writing to outputPath. publisher may be nil for a
// purely local deployment; a nil logger is replaced with a no-op logger.
func NewGate(outputPath string, publisher Publisher, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{
		outputPath:    outputPath,
		publisher:     publisher,
		remoteTimeout: DefaultRemoteTimeout,
		log:           log,
	}
}

// SetRemoteTimeout overrides the bound on the remote publish step.
func (g *Gate) SetRemoteTimeout(d time.Duration) {
	if d > 0 {
		g.remoteTimeout = d
	}
}

// Publish validates the decision, locates the artifact, saves it locally,
// and attempts the remote action.
//
// It fails with [*NotApprovedError] before touching anything when decision
// is not the approval token, and with [ErrNoArtifact] when no builder
// message yields a long-enough artifact. Remote failures do not fail the
// call: they are reported in the receipt alongside the successful local
// save.
//
// Publish is re-entrant: a repeat call with the same approved decision
// overwrites the local file and creates a new commit. Callers must not
// auto-retry silently.
func (g *Gate) Publish(ctx context.Context, h conversation.History, decision string) (*Receipt, error) {
	if !approval.Approved(decision) {
		return nil, &NotApprovedError{Input: decision}
	}

	artifact, ok := FindArtifact(h)
	if !ok {
		return nil, ErrNoArtifact
	}

	if err := g.save(artifact); err != nil {
		return nil, err
	}
	g.log.Info("artifact saved",
		zap.String("path", g.outputPath),
		zap.Int("bytes", len(artifact)))

	receipt := &Receipt{
		LocalPath: g.outputPath,
		Bytes:     len(artifact),
	}
	if g.publisher == nil {
		receipt.LocalOnly = true
		return receipt, nil
	}

	remoteCtx, cancel := context.WithTimeout(ctx, g.remoteTimeout)
	defer cancel()

	result, err := g.publisher.PublishArtifact(remoteCtx, g.outputPath)
	if err != nil {
		g.log.Warn("remote publish failed, artifact kept locally",
			zap.String("path", g.outputPath),
			zap.Error(err))
		receipt.RemoteError = err.Error()
		return receipt, nil
	}

	receipt.LocalOnly = result.LocalOnly
	receipt.RemoteSuccess = result.Pushed
	receipt.Commit = result.Commit
	receipt.Locators = result.Locators
	return receipt, nil
}

// FindArtifact scans history from the start for the first builder message
// whose extracted artifact meets the minimum length.
func FindArtifact(h conversation.History) (string, bool) {
	for _, m := range h {
		if m.Speaker != conversation.RoleBuilder {
			continue
		}
		artifact := extract.Artifact(m.Text)
		if len(artifact) >= MinArtifactLen {
			return artifact, true
		}
	}
	return "", false
}

// save writes the artifact atomically (write to temp, then rename).
func (g *Gate) save(artifact string) error {
	if dir := filepath.Dir(g.outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	tmpPath := g.outputPath + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(artifact), 0644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Rename(tmpPath, g.outputPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}
