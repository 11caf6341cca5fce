package transcript

import (
	"time"
)

// Source identifies the physical origin of captured audio.
type Source int

const (
	// SourceUnknown is the fallback for events whose origin tag could not
	// be resolved. The reconciler ignores these.
	SourceUnknown Source = iota
	// SourceMic is the local microphone.
	SourceMic
	// SourceSystem is the system-audio loopback (remote party in a call).
	SourceSystem
)

// String returns the string representation of the source.
func (s Source) String() string {
	switch s {
	case SourceMic:
		return "mic"
	case SourceSystem:
		return "system"
	default:
		return "unknown"
	}
}

// ParseSource maps a provider source tag to a Source value.
func ParseSource(tag string) Source {
	switch tag {
	case "mic":
		return SourceMic
	case "system":
		return SourceSystem
	default:
		return SourceUnknown
	}
}

// Event is a normalized transcription event produced by a stream adapter.
// Events are ephemeral; they are consumed by the reconciler and not retained.
type Event struct {
	Source     Source
	Text       string
	IsFinal    bool
	ReceivedAt time.Time
}

// Bubble is the durable transcript unit. A draft bubble represents an
// in-progress utterance and is mutated in place until finalized. A final
// bubble may still be appended to by a same-source continuation, and may be
// removed by the echo-suppression replace rule, but is otherwise immutable.
//
// Bubble order in the transcript is insertion order, not timestamp order;
// out-of-order arrival across sources is expected.
type Bubble struct {
	ID        int64     `json:"id"`
	Source    Source    `json:"-"`
	SourceTag string    `json:"source"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	IsDraft   bool      `json:"is_draft"`
}

// ChangeKind describes how a bubble was affected by an event.
type ChangeKind int

const (
	BubbleAdded ChangeKind = iota
	BubbleUpdated
	BubbleRemoved
)

// String returns the string representation of the change kind.
func (k ChangeKind) String() string {
	switch k {
	case BubbleAdded:
		return "bubble_added"
	case BubbleUpdated:
		return "bubble_updated"
	case BubbleRemoved:
		return "bubble_removed"
	default:
		return "unknown"
	}
}

// Change records a single mutation of the bubble list.
type Change struct {
	Kind   ChangeKind
	Bubble Bubble
}

// Effects is the result of processing one event through the reconciler.
type Effects struct {
	// Changes lists bubble mutations in the order they were applied.
	Changes []Change
	// Suppressed is true when the event was dropped as echo.
	Suppressed bool
	// QuestionDetected is true when a System bubble newly became a
	// question as a result of this event (edge-triggered).
	QuestionDetected bool
	// QuestionText is the full text of the question bubble when
	// QuestionDetected is true.
	QuestionText string
}
