package publish

import (
	"fmt"
	"strings"
	"time"
)

// Locators are the user-facing URLs for a published artifact on GitHub.
type Locators struct {
	// BlobURL renders the file in the repository browser.
	BlobURL string `json:"blobUrl"`

	// RawURL serves the raw file contents.
	RawURL string `json:"rawUrl"`

	// PagesURL serves the file through GitHub Pages. It carries a
	// cache-busting query parameter because Pages caches aggressively.
	PagesURL string `json:"pagesUrl"`
}

// NewLocators builds locators from a GitHub remote URL, branch, and
// repository-relative file path. Both https and ssh remote forms are
// accepted; anything else is rejected.
func NewLocators(remoteURL, branch, relPath string) (*Locators, error) {
	owner, repo, err := parseGitHubRemote(remoteURL)
	if err != nil {
		return nil, err
	}
	return &Locators{
		BlobURL:  fmt.Sprintf("https://github.com/%s/%s/blob/%s/%s", owner, repo, branch, relPath),
		RawURL:   fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s/%s", owner, repo, branch, relPath),
		PagesURL: fmt.Sprintf("https://%s.github.io/%s/%s?v=%d", owner, repo, relPath, time.Now().Unix()),
	}, nil
}

// parseGitHubRemote extracts owner and repository name from
// https://github.com/owner/repo(.git) or git@github.com:owner/repo(.git).
func parseGitHubRemote(remoteURL string) (owner, repo string, err error) {
	var path string
	switch {
	case strings.HasPrefix(remoteURL, "https://github.com/"):
		path = strings.TrimPrefix(remoteURL, "https://github.com/")
	case strings.HasPrefix(remoteURL, "git@github.com:"):
		path = strings.TrimPrefix(remoteURL, "git@github.com:")
	default:
		return "", "", fmt.Errorf("remote %q is not a GitHub URL", remoteURL)
	}

	path = strings.TrimSuffix(path, ".git")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("remote %q has no owner/repo path", remoteURL)
	}
	return parts[0], parts[1], nil
}
