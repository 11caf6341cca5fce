package transcript

import (
	"strings"
	"time"

	"github.com/codev612/hearnow/pkg/logger"
)

// Reconciler merges the two per-source transcription streams into one
// ordered, de-duplicated bubble list. It consumes one normalized event at a
// time and must not be called concurrently; the owning session serializes
// events through a single consumer goroutine.
//
// The reconciler never fails: malformed events (empty text, unknown source)
// are absorbed as no-ops because transcription providers are untrusted and
// may send odd payloads.
type Reconciler struct {
	suppressor *Suppressor
	logger     *logger.Logger
	now        func() time.Time

	bubbles []Bubble
	nextID  int64
	// ID of the open draft bubble per source, 0 when none. Stable under
	// removals, unlike slice indices.
	draftID map[Source]int64
}

// NewReconciler creates a reconciler backed by the given session-scoped
// suppressor.
func NewReconciler(suppressor *Suppressor, log *logger.Logger) *Reconciler {
	return &Reconciler{
		suppressor: suppressor,
		logger:     log.Named("reconciler"),
		now:        time.Now,
		nextID:     1,
		draftID:    make(map[Source]int64),
	}
}

// Bubbles returns a snapshot of the current bubble list in insertion order.
func (r *Reconciler) Bubbles() []Bubble {
	out := make([]Bubble, len(r.bubbles))
	copy(out, r.bubbles)
	return out
}

// ProcessEvent runs one normalized event through the state machine and
// returns the resulting bubble mutations.
func (r *Reconciler) ProcessEvent(source Source, text string, isFinal bool) Effects {
	var eff Effects

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return eff
	}
	if source != SourceMic && source != SourceSystem {
		r.logger.Debug("Ignoring event with unknown source", logger.String("text", trimmed))
		return eff
	}

	now := r.now()

	if source == SourceMic && isFinal {
		drop, removeIDs := r.suppressor.EvaluateMicFinal(trimmed, r.bubbles, now)
		for _, id := range removeIDs {
			if removed, ok := r.removeBubble(id); ok {
				eff.Changes = append(eff.Changes, Change{Kind: BubbleRemoved, Bubble: removed})
			}
		}
		if drop {
			eff.Suppressed = true
			// Any open mic draft holds interim text of the same dropped
			// echo; remove it rather than leaving the fragment behind.
			if id, ok := r.draftID[SourceMic]; ok {
				if removed, ok := r.removeBubble(id); ok {
					eff.Changes = append(eff.Changes, Change{Kind: BubbleRemoved, Bubble: removed})
				}
				delete(r.draftID, SourceMic)
			}
			return eff
		}
	}

	tail := r.tailBubble()
	switch {
	case tail != nil && tail.Source == source && tail.IsDraft:
		if isFinal {
			// Drafts accumulate by wholesale replacement, so the final
			// text supersedes whatever the draft held.
			tail.Text = trimmed
			tail.IsDraft = false
			tail.Timestamp = now
			delete(r.draftID, source)
			eff.Changes = append(eff.Changes, Change{Kind: BubbleUpdated, Bubble: *tail})
			if source == SourceSystem && IsQuestion(tail.Text) {
				eff.QuestionDetected = true
				eff.QuestionText = tail.Text
			}
		} else {
			// Latest interim wins; provider interims are absolute
			// restatements of the utterance so far, not increments.
			tail.Text = trimmed
			tail.Timestamp = now
			eff.Changes = append(eff.Changes, Change{Kind: BubbleUpdated, Bubble: *tail})
		}

	case tail != nil && tail.Source == source && !tail.IsDraft && isFinal:
		// A final followed shortly by another final from the same source
		// is a continuation; the overlap merger deduplicates the region
		// the provider re-sent.
		wasQuestion := IsQuestion(tail.Text)
		tail.Text = MergeAppend(tail.Text, trimmed)
		tail.Timestamp = now
		eff.Changes = append(eff.Changes, Change{Kind: BubbleUpdated, Bubble: *tail})
		if source == SourceSystem && !wasQuestion && IsQuestion(tail.Text) {
			eff.QuestionDetected = true
			eff.QuestionText = tail.Text
		}

	default:
		// Different-source tail, empty list, or a fresh interim after a
		// finalized utterance: a new bubble starts.
		eff.Changes = append(eff.Changes, r.appendBubble(source, trimmed, isFinal, now)...)
		if source == SourceSystem && isFinal && IsQuestion(trimmed) {
			eff.QuestionDetected = true
			eff.QuestionText = trimmed
		}
	}

	if isFinal {
		if source == SourceSystem {
			r.suppressor.RecordSystemFinal(now)
		} else {
			r.suppressor.RecordMicFinal(now)
		}
	}

	return eff
}

// FinalizeDrafts downgrades any remaining draft bubbles to final. Called
// when a session stops; events still in flight have no further correctness
// requirement and the UI should not show a perpetually "in progress" bubble.
func (r *Reconciler) FinalizeDrafts() []Change {
	var changes []Change
	for i := range r.bubbles {
		if r.bubbles[i].IsDraft {
			r.bubbles[i].IsDraft = false
			changes = append(changes, Change{Kind: BubbleUpdated, Bubble: r.bubbles[i]})
		}
	}
	r.draftID = make(map[Source]int64)
	return changes
}

// appendBubble adds a new bubble at the tail. If an older draft for the
// same source is still open (its source's turn was interrupted by the other
// source), it is finalized first so at most one draft per source exists.
func (r *Reconciler) appendBubble(source Source, text string, isFinal bool, now time.Time) []Change {
	var changes []Change

	if id, ok := r.draftID[source]; ok {
		if i := r.indexOf(id); i >= 0 {
			r.bubbles[i].IsDraft = false
			changes = append(changes, Change{Kind: BubbleUpdated, Bubble: r.bubbles[i]})
		}
		delete(r.draftID, source)
	}

	b := Bubble{
		ID:        r.nextID,
		Source:    source,
		SourceTag: source.String(),
		Text:      text,
		Timestamp: now,
		IsDraft:   !isFinal,
	}
	r.nextID++
	r.bubbles = append(r.bubbles, b)
	if b.IsDraft {
		r.draftID[source] = b.ID
	}
	changes = append(changes, Change{Kind: BubbleAdded, Bubble: b})
	return changes
}

// tailBubble returns the last bubble in the sequence, or nil when empty.
func (r *Reconciler) tailBubble() *Bubble {
	if len(r.bubbles) == 0 {
		return nil
	}
	return &r.bubbles[len(r.bubbles)-1]
}

// removeBubble deletes the bubble with the given ID, returning it.
func (r *Reconciler) removeBubble(id int64) (Bubble, bool) {
	i := r.indexOf(id)
	if i < 0 {
		return Bubble{}, false
	}
	removed := r.bubbles[i]
	r.bubbles = append(r.bubbles[:i], r.bubbles[i+1:]...)
	return removed, true
}

// indexOf returns the slice index of the bubble with the given ID, or -1.
// Scans from the tail since suppression only ever touches recent bubbles.
func (r *Reconciler) indexOf(id int64) int {
	for i := len(r.bubbles) - 1; i >= 0; i-- {
		if r.bubbles[i].ID == id {
			return i
		}
	}
	return -1
}
