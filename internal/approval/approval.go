// Package approval detects workflow completion signals and validates the
// human sign-off that gates publishing.
package approval

import (
	"strings"

	"pagewright/internal/conversation"
)

// readyWindow bounds how far back the completion scan looks. Older reviewer
// messages may carry the marker from an earlier draft that has since been
// revised, so only the most recent messages count.
const readyWindow = 5

// ReadyForApproval reports whether a reviewer has signalled, within the most
// recent messages, that the artifact is ready for human sign-off. The scan
// walks newest-first and only reviewer messages are consulted; the marker
// appearing in a human or builder message never completes the workflow.
func ReadyForApproval(h conversation.History) bool {
	for _, m := range h.Tail(readyWindow) {
		if m.Speaker != conversation.RoleReviewer {
			continue
		}
		if m.ContainsFold(conversation.ReadyMarker) {
			return true
		}
	}
	return false
}

// Approved reports whether input is an exact approval token. Leading and
// trailing whitespace is ignored and the comparison is case-insensitive,
// but any other decoration ("APPROVED!", "yes approved") is rejected: the
// gate must never fire on an ambiguous reply.
func Approved(input string) bool {
	return strings.ToUpper(strings.TrimSpace(input)) == "APPROVED"
}
