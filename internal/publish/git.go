package publish

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"
)

// GitPublisher implements [Publisher] over a working repository: stage the
// artifact, commit with a timestamped message, push to the configured
// remote.
//
// A missing repository at RepoPath is local-only mode, not a failure: the
// artifact stays saved on disk and the result says so.
type GitPublisher struct {
	// RepoPath is the working tree root containing the artifact.
	RepoPath string

	// Remote is the push target. Defaults to "origin" when empty.
	Remote string

	// AuthorName and AuthorEmail sign the commit.
	AuthorName  string
	AuthorEmail string

	// Log may be nil.
	Log *zap.Logger
}

// PublishArtifact stages, commits, and pushes localPath. The commit is
// created even when the push subsequently fails, matching normal git
// workflow: a failed push leaves local history intact for a manual retry.
func (p *GitPublisher) PublishArtifact(ctx context.Context, localPath string) (Result, error) {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}

	repo, err := git.PlainOpen(p.RepoPath)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		log.Info("no repository at target, keeping artifact local only",
			zap.String("path", p.RepoPath))
		return Result{LocalOnly: true}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to open repository: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return Result{}, fmt.Errorf("failed to open worktree: %w", err)
	}

	rel, err := filepath.Rel(p.RepoPath, localPath)
	if err != nil {
		return Result{}, fmt.Errorf("artifact %s is outside repository %s: %w", localPath, p.RepoPath, err)
	}

	if _, err := wt.Add(rel); err != nil {
		return Result{}, fmt.Errorf("failed to stage %s: %w", rel, err)
	}

	now := time.Now()
	msg := fmt.Sprintf("Auto-deploy: Updated web app - %s", now.Format("2006-01-02 15:04:05"))
	hash, err := wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{
			Name:  p.AuthorName,
			Email: p.AuthorEmail,
			When:  now,
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to commit %s: %w", rel, err)
	}
	log.Info("artifact committed",
		zap.String("commit", hash.String()),
		zap.String("file", rel))

	remote := p.Remote
	if remote == "" {
		remote = "origin"
	}
	err = repo.PushContext(ctx, &git.PushOptions{RemoteName: remote})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return Result{Commit: hash.String()}, fmt.Errorf("failed to push to %s: %w", remote, err)
	}

	result := Result{
		Pushed: true,
		Commit: hash.String(),
	}
	if loc := p.locators(repo, rel); loc != nil {
		result.Locators = loc
	}
	return result, nil
}

// locators derives artifact URLs from the remote and current branch. A
// remote that is not GitHub-shaped just yields no locators.
func (p *GitPublisher) locators(repo *git.Repository, rel string) *Locators {
	remote := p.Remote
	if remote == "" {
		remote = "origin"
	}
	r, err := repo.Remote(remote)
	if err != nil || len(r.Config().URLs) == 0 {
		return nil
	}

	branch := "main"
	if head, err := repo.Head(); err == nil && head.Name().IsBranch() {
		branch = head.Name().Short()
	}

	loc, err := NewLocators(r.Config().URLs[0], branch, filepath.ToSlash(rel))
	if err != nil {
		return nil
	}
	return loc
}
