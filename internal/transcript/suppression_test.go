package transcript

import (
	"testing"
	"time"

	"github.com/codev612/hearnow/pkg/logger"
)

func testSuppressor(startedAt time.Time) *Suppressor {
	return NewSuppressor(DefaultSuppressionConfig(), startedAt, logger.NewNop())
}

func TestEvaluateMicFinalDropsEcho(t *testing.T) {
	start := time.Now()
	s := testSuppressor(start)

	bubbles := []Bubble{
		{ID: 1, Source: SourceSystem, Text: "can you hear me", Timestamp: start},
	}

	drop, removeIDs := s.EvaluateMicFinal("can you hear me", bubbles, start.Add(2*time.Second))
	if !drop {
		t.Fatal("identical mic final 2s after system bubble should be dropped")
	}
	if len(removeIDs) != 0 {
		t.Fatalf("dropped fragment should not also trigger removals, got %v", removeIDs)
	}
}

func TestEvaluateMicFinalRespectsSimilarityWindow(t *testing.T) {
	start := time.Now()
	s := testSuppressor(start)

	bubbles := []Bubble{
		{ID: 1, Source: SourceSystem, Text: "can you hear me", Timestamp: start},
	}

	// Same text, but the system bubble is older than the window.
	drop, _ := s.EvaluateMicFinal("can you hear me", bubbles, start.Add(9*time.Second))
	if drop {
		t.Fatal("mic final should not be dropped for a system bubble outside the window")
	}
}

func TestEvaluateMicFinalTieGoesToAdmission(t *testing.T) {
	start := time.Now()
	cfg := DefaultSuppressionConfig()
	cfg.PhoneticMatching = false
	s := NewSuppressor(cfg, start, logger.NewNop())

	// Token sets: {alpha bravo charlie} vs {alpha bravo charlie delta echo}
	// give exactly 3/5 = 0.6, the threshold itself.
	bubbles := []Bubble{
		{ID: 1, Source: SourceSystem, Text: "alpha bravo charlie delta echo", Timestamp: start},
	}

	drop, _ := s.EvaluateMicFinal("alpha bravo charlie", bubbles, start.Add(time.Second))
	if drop {
		t.Fatal("score exactly at the threshold must not suppress")
	}
}

func TestEvaluateMicFinalScanDepth(t *testing.T) {
	start := time.Now()
	s := testSuppressor(start)

	// The matching system bubble is buried deeper than the scan depth by
	// fresher unrelated bubbles.
	bubbles := []Bubble{
		{ID: 1, Source: SourceSystem, Text: "can you hear me", Timestamp: start},
	}
	for i := 0; i < 15; i++ {
		bubbles = append(bubbles, Bubble{
			ID:        int64(i + 2),
			Source:    SourceSystem,
			Text:      "completely unrelated chatter",
			Timestamp: start.Add(time.Second),
		})
	}

	drop, _ := s.EvaluateMicFinal("can you hear me", bubbles, start.Add(2*time.Second))
	if drop {
		t.Fatal("bubbles beyond the scan depth must not trigger suppression")
	}
}

func TestEvaluateMicFinalReplaceOnLateArrival(t *testing.T) {
	start := time.Now()
	s := testSuppressor(start)

	// The mic echo was admitted first; the system original arrived after.
	bubbles := []Bubble{
		{ID: 1, Source: SourceMic, Text: "let's review the quarterly numbers", Timestamp: start},
		{ID: 2, Source: SourceSystem, Text: "let's review the quarterly numbers", Timestamp: start.Add(time.Second)},
	}

	drop, removeIDs := s.EvaluateMicFinal("something entirely different", bubbles, start.Add(2*time.Second))
	if drop {
		t.Fatal("unrelated mic final should be admitted")
	}
	if len(removeIDs) != 1 || removeIDs[0] != 1 {
		t.Fatalf("admitted mic echo should be removed in favor of the system version, got %v", removeIDs)
	}
}

func TestEvaluateMicFinalNoRemovalWhenSystemOlder(t *testing.T) {
	start := time.Now()
	s := testSuppressor(start)

	// System bubble precedes the mic bubble: that ordering is handled by
	// the direct drop rule at mic arrival time, not by removal.
	bubbles := []Bubble{
		{ID: 1, Source: SourceSystem, Text: "let's review the quarterly numbers", Timestamp: start},
		{ID: 2, Source: SourceMic, Text: "let's review the quarterly numbers", Timestamp: start.Add(time.Second)},
	}

	_, removeIDs := s.EvaluateMicFinal("something entirely different", bubbles, start.Add(2*time.Second))
	if len(removeIDs) != 0 {
		t.Fatalf("mic bubble admitted after the system version should stand, got removals %v", removeIDs)
	}
}

func TestShouldSuppressMicNowCaptureHoldoff(t *testing.T) {
	start := time.Now()
	s := testSuppressor(start)

	s.RecordSystemFinal(start.Add(10 * time.Second))

	if !s.ShouldSuppressMicNow(start.Add(12 * time.Second)) {
		t.Fatal("mic should be suppressed within the capture holdoff after a system final")
	}
	if s.ShouldSuppressMicNow(start.Add(14 * time.Second)) {
		t.Fatal("mic should not be suppressed after the holdoff expires")
	}
}

func TestShouldSuppressMicNowEarlySession(t *testing.T) {
	start := time.Now()

	// Shorten the holdoff so the early-session rule can be observed on
	// its own; with the defaults the holdoff from a t=0 system final
	// covers the entire early-session window.
	cfg := DefaultSuppressionConfig()
	cfg.CaptureHoldoff = time.Second

	s := NewSuppressor(cfg, start, logger.NewNop())
	s.RecordSystemFinal(start)

	// +2s: holdoff lapsed, but the call is talking and the user has not
	// said anything yet.
	if !s.ShouldSuppressMicNow(start.Add(2 * time.Second)) {
		t.Fatal("mic should be suppressed early in the session while only the system side talks")
	}

	s2 := NewSuppressor(cfg, start, logger.NewNop())
	s2.RecordSystemFinal(start)
	s2.RecordMicFinal(start.Add(500 * time.Millisecond))

	if s2.ShouldSuppressMicNow(start.Add(2 * time.Second)) {
		t.Fatal("mic should not be suppressed once the user has produced a transcript")
	}

	// Past the early-session window the rule stops applying even with no
	// mic finals on record.
	s3 := NewSuppressor(cfg, start, logger.NewNop())
	s3.RecordSystemFinal(start)
	if s3.ShouldSuppressMicNow(start.Add(4 * time.Second)) {
		t.Fatal("early-session suppression must end with the window")
	}
}

func TestShouldSuppressMicNowQuietStart(t *testing.T) {
	start := time.Now()
	s := testSuppressor(start)

	// Nobody has said anything; the early-session rule needs system
	// activity to engage.
	if s.ShouldSuppressMicNow(start.Add(time.Second)) {
		t.Fatal("mic should not be suppressed during a quiet session start")
	}
}

func TestSuppressorSessionIsolation(t *testing.T) {
	start := time.Now()
	a := testSuppressor(start)
	a.RecordSystemFinal(start)
	a.RecordMicFinal(start)

	// A fresh suppressor for a new session must not inherit timing state;
	// a stale system final would wrongly gate the new session's mic.
	b := testSuppressor(start.Add(time.Minute))
	if b.ShouldSuppressMicNow(start.Add(time.Minute + time.Second)) {
		t.Fatal("new session suppressor must start with empty state")
	}
}
