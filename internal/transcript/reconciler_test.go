package transcript

import (
	"testing"
	"time"

	"github.com/codev612/hearnow/pkg/logger"
)

// testClock lets tests advance the reconciler's notion of time explicitly.
type testClock struct {
	t time.Time
}

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestReconciler() (*Reconciler, *testClock) {
	clock := &testClock{t: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
	sup := NewSuppressor(DefaultSuppressionConfig(), clock.t, logger.NewNop())
	r := NewReconciler(sup, logger.NewNop())
	r.now = clock.Now
	return r, clock
}

func TestProcessEventIgnoresEmptyAndUnknown(t *testing.T) {
	r, _ := newTestReconciler()

	for _, tc := range []struct {
		name   string
		source Source
		text   string
	}{
		{"empty text", SourceMic, ""},
		{"whitespace text", SourceSystem, "   \t"},
		{"unknown source", SourceUnknown, "hello"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			eff := r.ProcessEvent(tc.source, tc.text, true)
			if len(eff.Changes) != 0 || eff.Suppressed || eff.QuestionDetected {
				t.Fatalf("expected no-op, got %+v", eff)
			}
		})
	}
	if len(r.Bubbles()) != 0 {
		t.Fatal("malformed events must not create bubbles")
	}
}

func TestProcessEventDraftLifecycle(t *testing.T) {
	r, clock := newTestReconciler()

	eff := r.ProcessEvent(SourceMic, "hel", false)
	if len(eff.Changes) != 1 || eff.Changes[0].Kind != BubbleAdded {
		t.Fatalf("first interim should add a bubble, got %+v", eff.Changes)
	}
	if !eff.Changes[0].Bubble.IsDraft {
		t.Fatal("interim bubble should be a draft")
	}
	id := eff.Changes[0].Bubble.ID

	clock.Advance(300 * time.Millisecond)
	eff = r.ProcessEvent(SourceMic, "hello the", false)
	if len(eff.Changes) != 1 || eff.Changes[0].Kind != BubbleUpdated {
		t.Fatalf("later interim should update in place, got %+v", eff.Changes)
	}
	if eff.Changes[0].Bubble.ID != id {
		t.Fatal("interim update must keep the bubble ID")
	}
	if got := eff.Changes[0].Bubble.Text; got != "hello the" {
		t.Fatalf("latest interim should replace the draft text, got %q", got)
	}

	clock.Advance(300 * time.Millisecond)
	eff = r.ProcessEvent(SourceMic, "hello there", true)
	if len(eff.Changes) != 1 || eff.Changes[0].Kind != BubbleUpdated {
		t.Fatalf("final should update the draft in place, got %+v", eff.Changes)
	}
	b := eff.Changes[0].Bubble
	if b.ID != id || b.IsDraft || b.Text != "hello there" {
		t.Fatalf("final should finalize the same bubble, got %+v", b)
	}

	if got := r.Bubbles(); len(got) != 1 {
		t.Fatalf("expected exactly one bubble, got %d", len(got))
	}
}

func TestProcessEventSystemFinalAfterMicFinalStaysSeparate(t *testing.T) {
	r, clock := newTestReconciler()

	r.ProcessEvent(SourceMic, "hel", false)
	r.ProcessEvent(SourceMic, "hello the", false)
	r.ProcessEvent(SourceMic, "hello there", true)

	clock.Advance(time.Second)
	eff := r.ProcessEvent(SourceSystem, "hello there", true)
	if eff.Suppressed {
		t.Fatal("suppression applies to mic finals only")
	}
	if len(eff.Changes) != 1 || eff.Changes[0].Kind != BubbleAdded {
		t.Fatalf("system final should start its own bubble, got %+v", eff.Changes)
	}

	bubbles := r.Bubbles()
	if len(bubbles) != 2 {
		t.Fatalf("expected two bubbles, got %d", len(bubbles))
	}
	if bubbles[0].Source != SourceMic || bubbles[1].Source != SourceSystem {
		t.Fatalf("unexpected bubble order: %+v", bubbles)
	}
}

func TestProcessEventOneDraftPerSource(t *testing.T) {
	r, _ := newTestReconciler()

	r.ProcessEvent(SourceMic, "I was saying", false)
	r.ProcessEvent(SourceSystem, "sorry, go", false)
	// The mic speaks again; its earlier draft was interrupted by the
	// system turn and must be closed out, not left dangling.
	eff := r.ProcessEvent(SourceMic, "as I was", false)

	if len(eff.Changes) != 2 {
		t.Fatalf("expected finalize + add, got %+v", eff.Changes)
	}
	if eff.Changes[0].Kind != BubbleUpdated || eff.Changes[0].Bubble.IsDraft {
		t.Fatalf("interrupted draft should be finalized, got %+v", eff.Changes[0])
	}
	if eff.Changes[1].Kind != BubbleAdded || !eff.Changes[1].Bubble.IsDraft {
		t.Fatalf("new interim should open a draft, got %+v", eff.Changes[1])
	}

	perSource := make(map[Source]int)
	for _, b := range r.Bubbles() {
		if b.IsDraft {
			perSource[b.Source]++
		}
	}
	for src, n := range perSource {
		if n > 1 {
			t.Fatalf("source %s has %d open drafts", src, n)
		}
	}
}

func TestProcessEventFinalContinuationMerges(t *testing.T) {
	r, clock := newTestReconciler()

	r.ProcessEvent(SourceSystem, "I went to the", true)
	clock.Advance(time.Second)
	eff := r.ProcessEvent(SourceSystem, "the store today", true)

	if len(eff.Changes) != 1 || eff.Changes[0].Kind != BubbleUpdated {
		t.Fatalf("continuation final should update the tail, got %+v", eff.Changes)
	}
	if got := eff.Changes[0].Bubble.Text; got != "I went to the store today" {
		t.Fatalf("overlap not merged, got %q", got)
	}
	if len(r.Bubbles()) != 1 {
		t.Fatal("continuation must not create a second bubble")
	}
}

func TestProcessEventInterimAfterFinalStartsNewBubble(t *testing.T) {
	r, clock := newTestReconciler()

	r.ProcessEvent(SourceMic, "first thought", true)
	clock.Advance(2 * time.Second)
	eff := r.ProcessEvent(SourceMic, "second", false)

	if len(eff.Changes) != 1 || eff.Changes[0].Kind != BubbleAdded {
		t.Fatalf("interim after a finalized utterance should open a new bubble, got %+v", eff.Changes)
	}
	bubbles := r.Bubbles()
	if len(bubbles) != 2 || bubbles[0].Text != "first thought" {
		t.Fatalf("finalized text must not be overwritten, got %+v", bubbles)
	}
}

func TestProcessEventQuestionDetection(t *testing.T) {
	t.Run("fresh system final question fires once", func(t *testing.T) {
		r, _ := newTestReconciler()
		eff := r.ProcessEvent(SourceSystem, "Can you confirm the date", true)
		if !eff.QuestionDetected || eff.QuestionText != "Can you confirm the date" {
			t.Fatalf("expected question detection, got %+v", eff)
		}
	})

	t.Run("mic questions never fire", func(t *testing.T) {
		r, _ := newTestReconciler()
		eff := r.ProcessEvent(SourceMic, "Can you confirm the date", true)
		if eff.QuestionDetected {
			t.Fatal("question detection applies to system finals only")
		}
	})

	t.Run("continuation turning into a question fires", func(t *testing.T) {
		r, clock := newTestReconciler()
		eff := r.ProcessEvent(SourceSystem, "I think", true)
		if eff.QuestionDetected {
			t.Fatal("statement should not fire")
		}
		clock.Advance(time.Second)
		eff = r.ProcessEvent(SourceSystem, "think we should ask them?", true)
		if !eff.QuestionDetected {
			t.Fatal("merged text ending in ? should fire")
		}
	})

	t.Run("continuation of an existing question does not refire", func(t *testing.T) {
		r, clock := newTestReconciler()
		eff := r.ProcessEvent(SourceSystem, "what do you think", true)
		if !eff.QuestionDetected {
			t.Fatal("question should fire on first detection")
		}
		clock.Advance(time.Second)
		eff = r.ProcessEvent(SourceSystem, "think about the budget", true)
		if eff.QuestionDetected {
			t.Fatal("already-question bubble must not fire again")
		}
	})

	t.Run("finalized draft question fires", func(t *testing.T) {
		r, _ := newTestReconciler()
		r.ProcessEvent(SourceSystem, "where is", false)
		eff := r.ProcessEvent(SourceSystem, "where is the report", true)
		if !eff.QuestionDetected || eff.QuestionText != "where is the report" {
			t.Fatalf("expected question on finalize, got %+v", eff)
		}
	})
}

func TestProcessEventDropsMicEcho(t *testing.T) {
	r, clock := newTestReconciler()

	r.ProcessEvent(SourceSystem, "can you hear me", true)
	clock.Advance(2 * time.Second)
	eff := r.ProcessEvent(SourceMic, "can you hear me", true)

	if !eff.Suppressed {
		t.Fatal("mic echo of recent system audio should be suppressed")
	}
	if len(eff.Changes) != 0 {
		t.Fatalf("suppressed event must not mutate bubbles, got %+v", eff.Changes)
	}
	if got := r.Bubbles(); len(got) != 1 || got[0].Source != SourceSystem {
		t.Fatalf("only the system bubble should remain, got %+v", got)
	}
}

func TestProcessEventDropsMicEchoWithItsDraft(t *testing.T) {
	r, clock := newTestReconciler()

	r.ProcessEvent(SourceSystem, "can you hear me", true)
	clock.Advance(time.Second)
	eff := r.ProcessEvent(SourceMic, "can you hear", false)
	draftID := eff.Changes[0].Bubble.ID

	clock.Advance(time.Second)
	eff = r.ProcessEvent(SourceMic, "can you hear me", true)

	if !eff.Suppressed {
		t.Fatal("mic echo of recent system audio should be suppressed")
	}
	if len(eff.Changes) != 1 || eff.Changes[0].Kind != BubbleRemoved || eff.Changes[0].Bubble.ID != draftID {
		t.Fatalf("suppressed final should remove its interim draft, got %+v", eff.Changes)
	}
	if got := r.Bubbles(); len(got) != 1 || got[0].Source != SourceSystem {
		t.Fatalf("only the system bubble should remain, got %+v", got)
	}

	// The next mic utterance starts cleanly; no stale draft ID lingers.
	eff = r.ProcessEvent(SourceMic, "moving on", false)
	if len(eff.Changes) != 1 || eff.Changes[0].Kind != BubbleAdded {
		t.Fatalf("fresh interim after a dropped echo should add a bubble, got %+v", eff.Changes)
	}
}

func TestProcessEventRemovesLateArrivalEcho(t *testing.T) {
	r, clock := newTestReconciler()

	// The mic version of the shared audio lands first and is admitted.
	eff := r.ProcessEvent(SourceMic, "let's review the quarterly numbers", true)
	if eff.Suppressed {
		t.Fatal("nothing to suppress against yet")
	}
	micID := eff.Changes[0].Bubble.ID

	clock.Advance(time.Second)
	r.ProcessEvent(SourceSystem, "let's review the quarterly numbers", true)

	// The next admitted mic final triggers the cross-scan that notices
	// the duplication and keeps the system version.
	clock.Advance(time.Second)
	eff = r.ProcessEvent(SourceMic, "moving on to staffing", true)

	var removed bool
	for _, c := range eff.Changes {
		if c.Kind == BubbleRemoved && c.Bubble.ID == micID {
			removed = true
		}
	}
	if !removed {
		t.Fatalf("expected removal of bubble %d, got %+v", micID, eff.Changes)
	}

	for _, b := range r.Bubbles() {
		if b.ID == micID {
			t.Fatal("removed bubble still present")
		}
	}
}

func TestProcessEventChronologicalOrder(t *testing.T) {
	r, clock := newTestReconciler()

	r.ProcessEvent(SourceMic, "good morning everyone", true)
	clock.Advance(time.Second)
	r.ProcessEvent(SourceSystem, "morning, shall we start", true)
	clock.Advance(time.Second)
	r.ProcessEvent(SourceMic, "yes please go ahead", true)

	bubbles := r.Bubbles()
	for i := 1; i < len(bubbles); i++ {
		if bubbles[i].Timestamp.Before(bubbles[i-1].Timestamp) {
			t.Fatalf("bubbles out of order at %d: %+v", i, bubbles)
		}
	}
}

func TestFinalizeDrafts(t *testing.T) {
	r, _ := newTestReconciler()

	r.ProcessEvent(SourceMic, "wrapping up the", false)
	r.ProcessEvent(SourceSystem, "thanks every", false)

	changes := r.FinalizeDrafts()
	if len(changes) != 2 {
		t.Fatalf("expected both drafts finalized, got %+v", changes)
	}
	for _, b := range r.Bubbles() {
		if b.IsDraft {
			t.Fatalf("draft survived finalize: %+v", b)
		}
	}

	if extra := r.FinalizeDrafts(); len(extra) != 0 {
		t.Fatalf("second finalize should be a no-op, got %+v", extra)
	}
}
