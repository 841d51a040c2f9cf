package scorer

import (
	"fmt"

	"github.com/iderdiyok/basketball-tourney/models"
)

const (
	DefaultHalfTimeSeconds = 300
	// DemoHalfTimeSeconds is the one-minute half used for test and demo tournaments.
	DemoHalfTimeSeconds = 60
)

// Timing holds the derived, side-effect free queries over elapsed game seconds.
// Every query clamps its input to [0, Total] first.
type Timing struct {
	HalfSeconds int
}

func (t Timing) Total() int {
	return 2 * t.HalfSeconds
}

func (t Timing) clamp(elapsed int) int {
	if elapsed < 0 {
		return 0
	}
	if total := t.Total(); elapsed > total {
		return total
	}
	return elapsed
}

// CurrentHalf returns 1 before the half boundary and 2 from it on.
func (t Timing) CurrentHalf(elapsed int) int {
	if t.clamp(elapsed) < t.HalfSeconds {
		return 1
	}
	return 2
}

// Remaining counts down to zero within whichever half is active.
func (t Timing) Remaining(elapsed int) int {
	e := t.clamp(elapsed)
	switch {
	case e >= t.Total():
		return 0
	case e < t.HalfSeconds:
		return t.HalfSeconds - e
	default:
		return t.Total() - e
	}
}

func (t Timing) IsFinished(elapsed int) bool {
	return t.clamp(elapsed) >= t.Total()
}

// IsHalftimeBreak is true exactly during the manual gap between the halves.
func (t Timing) IsHalftimeBreak(elapsed int, running bool) bool {
	e := t.clamp(elapsed)
	return e >= t.HalfSeconds && !running && e < t.Total()
}

// FirstHalfFinished drives the "1. Halbzeit beendet" banner on the scorer screen.
func (t Timing) FirstHalfFinished(elapsed int) bool {
	e := t.clamp(elapsed)
	return e >= t.HalfSeconds && e < t.Total()
}

// Progress is the share of total game time played, in percent.
func (t Timing) Progress(elapsed int) float64 {
	total := t.Total()
	if total <= 0 {
		return 100
	}
	p := float64(t.clamp(elapsed)) / float64(total) * 100
	if p > 100 {
		return 100
	}
	return p
}

// ScoringAllowed is the single gate consulted before any point mutation.
func (t Timing) ScoringAllowed(status models.GameStatus, elapsed int, running bool) bool {
	return t.rejectReason(status, elapsed, running) == ""
}

func (t Timing) rejectReason(status models.GameStatus, elapsed int, running bool) RejectReason {
	switch {
	case status == models.GameStatusFinished:
		return RejectGameFinished
	case t.IsFinished(elapsed):
		return RejectTimeExpired
	case t.IsHalftimeBreak(elapsed, running):
		return RejectHalftimeBreak
	}
	return ""
}

func (t Timing) checkScoring(status models.GameStatus, elapsed int, running bool) error {
	if reason := t.rejectReason(status, elapsed, running); reason != "" {
		return &ScoringRejectedError{Reason: reason}
	}
	return nil
}

// DisplayRemaining renders the countdown shown on the scorer screen.
func (t Timing) DisplayRemaining(elapsed int) string {
	return FormatMMSS(t.Remaining(elapsed))
}

// FormatMMSS renders seconds as MM:SS. Negative input renders 00:00.
func FormatMMSS(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
