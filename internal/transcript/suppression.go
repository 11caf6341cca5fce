package transcript

import (
	"sync"
	"time"

	"github.com/codev612/hearnow/pkg/logger"
)

// SuppressionConfig holds the tuning constants for echo suppression. The
// defaults are empirical; they can be overridden from the application
// config without touching the decision logic.
type SuppressionConfig struct {
	// MicSimilarityThreshold is the score above which an inbound mic
	// final is judged an echo of recent system audio and dropped.
	MicSimilarityThreshold float64
	// SystemSimilarityThreshold is the score above which an already
	// admitted mic bubble is judged an echo of a newer system bubble and
	// removed. Held higher than the mic threshold because removal is the
	// more destructive action.
	SystemSimilarityThreshold float64
	// SimilarityWindow bounds how far back in time similarity scans look.
	SimilarityWindow time.Duration
	// ScanDepth bounds how many bubbles a similarity scan inspects.
	ScanDepth int
	// CaptureHoldoff is how long after a system final the capture layer
	// keeps mic frames from reaching the transcription provider.
	CaptureHoldoff time.Duration
	// EarlySessionWindow is the period after recording start during which
	// mic capture is suppressed while only the system side is talking.
	EarlySessionWindow time.Duration
	// SystemActivityWindow is how long a system final counts as "system
	// is actively producing audio".
	SystemActivityWindow time.Duration
	// PhoneticMatching additionally compares utterances by Double
	// Metaphone codes, catching echoes the two transcription passes
	// rendered with homophone drift.
	PhoneticMatching bool
}

// DefaultSuppressionConfig returns the tuned defaults.
func DefaultSuppressionConfig() SuppressionConfig {
	return SuppressionConfig{
		MicSimilarityThreshold:    0.6,
		SystemSimilarityThreshold: 0.7,
		SimilarityWindow:          8 * time.Second,
		ScanDepth:                 15,
		CaptureHoldoff:            3000 * time.Millisecond,
		EarlySessionWindow:        3 * time.Second,
		SystemActivityWindow:      10 * time.Second,
		PhoneticMatching:          true,
	}
}

// Suppressor decides whether inbound mic text is echo of system audio.
// One instance exists per recording session; its timing state starts empty
// and is never shared across sessions.
//
// Safe for concurrent use: stream adapters query ShouldSuppressMicNow from
// their own goroutines while the reconciler records finals.
type Suppressor struct {
	cfg    SuppressionConfig
	logger *logger.Logger

	mu               sync.Mutex
	startedAt        time.Time
	lastSystemFinal  time.Time
	systemFinalTimes []time.Time
	micFinals        int
}

// NewSuppressor creates a suppressor for a session that started at the
// given time.
func NewSuppressor(cfg SuppressionConfig, startedAt time.Time, log *logger.Logger) *Suppressor {
	return &Suppressor{
		cfg:       cfg,
		logger:    log.Named("suppressor"),
		startedAt: startedAt,
	}
}

// RecordSystemFinal notes that a system-source final transcript was
// processed at the given time.
func (s *Suppressor) RecordSystemFinal(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSystemFinal = now
	s.systemFinalTimes = append(s.systemFinalTimes, now)
	s.pruneLocked(now)
}

// RecordMicFinal notes that a mic-source final transcript was admitted at
// the given time. Dropped echoes are not recorded; the early-session rule
// asks whether the user has actually said anything.
func (s *Suppressor) RecordMicFinal(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.micFinals++
}

// ShouldSuppressMicNow reports whether the capture layer should withhold
// mic frames from the transcription provider at the given instant. This is
// the first line of defense: audio that never reaches the provider cannot
// come back as echo text, and it costs nothing to transcribe.
func (s *Suppressor) ShouldSuppressMicNow(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A system final just happened; anything the mic hears right now is
	// most likely the speakers.
	if !s.lastSystemFinal.IsZero() && now.Sub(s.lastSystemFinal) < s.cfg.CaptureHoldoff {
		return true
	}

	// Startup race: the call is already talking (ringing, greeting) but
	// the user has not spoken yet.
	if now.Sub(s.startedAt) < s.cfg.EarlySessionWindow && s.micFinals == 0 && s.systemActiveLocked(now) {
		return true
	}

	return false
}

// EvaluateMicFinal applies the transcript-level suppression rules to an
// inbound mic final. It returns drop=true when the fragment is judged an
// echo of recent system audio, and removeIDs listing already-admitted mic
// bubbles that a newer system bubble has since duplicated (the system
// version stands, on the reasoning that system audio is normally the
// original and the mic the echo).
//
// bubbles must be in insertion order, oldest first. Scores exactly at a
// threshold do not trigger; ties go to admission.
func (s *Suppressor) EvaluateMicFinal(text string, bubbles []Bubble, now time.Time) (drop bool, removeIDs []int64) {
	cutoff := now.Add(-s.cfg.SimilarityWindow)

	scanned := 0
	scanStart := len(bubbles)
	for i := len(bubbles) - 1; i >= 0 && scanned < s.cfg.ScanDepth; i-- {
		// Insertion order is recency-biased, so the first bubble past
		// the window ends the scan.
		if bubbles[i].Timestamp.Before(cutoff) {
			break
		}
		scanStart = i
		scanned++

		if bubbles[i].Source != SourceSystem {
			continue
		}
		if score := s.score(text, bubbles[i].Text); score > s.cfg.MicSimilarityThreshold {
			s.logger.Debug("Dropping mic final as echo of system audio",
				logger.String("text", text),
				logger.Float64("score", score),
				logger.Int64("system_bubble_id", bubbles[i].ID))
			return true, nil
		}
	}

	// Replace-on-late-arrival: a mic echo that was admitted before the
	// system original arrived is removed once a newer, sufficiently
	// similar system bubble exists in the same window.
	window := bubbles[scanStart:]
	for i, b := range window {
		if b.Source != SourceMic || b.IsDraft {
			continue
		}
		for _, other := range window[i+1:] {
			if other.Source != SourceSystem {
				continue
			}
			if score := s.score(b.Text, other.Text); score > s.cfg.SystemSimilarityThreshold {
				s.logger.Debug("Removing admitted mic bubble duplicated by system audio",
					logger.Int64("mic_bubble_id", b.ID),
					logger.Int64("system_bubble_id", other.ID),
					logger.Float64("score", score))
				removeIDs = append(removeIDs, b.ID)
				break
			}
		}
	}

	return false, removeIDs
}

// score returns the similarity between two utterances, widened by the
// phonetic pass when enabled.
func (s *Suppressor) score(a, b string) float64 {
	score := Similarity(a, b)
	if s.cfg.PhoneticMatching {
		if p := PhoneticSimilarity(a, b); p > score {
			score = p
		}
	}
	return score
}

// systemActiveLocked reports whether any system final landed within the
// activity window. Must be called with s.mu held.
func (s *Suppressor) systemActiveLocked(now time.Time) bool {
	s.pruneLocked(now)
	return len(s.systemFinalTimes) > 0
}

// pruneLocked drops system final timestamps older than the activity
// window. Must be called with s.mu held.
func (s *Suppressor) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.cfg.SystemActivityWindow)
	start := 0
	for start < len(s.systemFinalTimes) && s.systemFinalTimes[start].Before(cutoff) {
		start++
	}
	if start > 0 {
		s.systemFinalTimes = append(s.systemFinalTimes[:0], s.systemFinalTimes[start:]...)
	}
}
