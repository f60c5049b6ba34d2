// Package extract pulls the generated page artifact out of free-form
// builder output.
//
// Builders are instructed to wrap the page in a triple-backtick fence tagged
// "html", but model output is not guaranteed to comply. [Artifact] therefore
// falls back to the whole message text when no fence is present rather than
// failing, leaving length validation to the publish gate.
package extract

import (
	"regexp"
	"strings"
)

// fenceRe matches the first ```html ... ``` block. The (?is) flags make the
// tag match case-insensitive and let the body span multiple lines.
var fenceRe = regexp.MustCompile("(?is)```html(.*?)```")

// Artifact returns the trimmed interior of the first html-tagged code fence
// in text. When no such fence exists it returns the trimmed input unchanged.
// It never fails; an empty result simply means the input was empty.
func Artifact(text string) string {
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

// HasFence reports whether text contains an html-tagged code fence. The
// turn selector uses this to decide that builder output is ready for
// review.
func HasFence(text string) bool {
	return fenceRe.MatchString(text)
}
