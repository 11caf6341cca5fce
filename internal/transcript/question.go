package transcript

import (
	"strings"
)

// Leading words that mark an utterance as interrogative even without a
// trailing question mark.
var questionWords = map[string]struct{}{
	// wh-words
	"what": {}, "who": {}, "where": {}, "when": {}, "why": {},
	"how": {}, "which": {}, "whose": {}, "whom": {},
	// auxiliaries and modals
	"can": {}, "could": {}, "would": {}, "should": {}, "will": {},
	"do": {}, "does": {}, "did": {}, "is": {}, "are": {}, "was": {},
	"were": {}, "have": {}, "has": {}, "had": {},
}

// IsQuestion reports whether a finalized utterance reads as a question.
// Used to drive assist triggers when a system-source bubble finalizes.
func IsQuestion(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}

	if strings.HasSuffix(trimmed, "?") {
		return true
	}

	fields := strings.Fields(strings.ToLower(trimmed))
	if len(fields) < 2 {
		return false
	}
	_, ok := questionWords[fields[0]]
	return ok
}
