package scorer

import "errors"

var (
	ErrIncompleteRoster  = errors.New("scorer: game has incomplete roster data")
	ErrInvalidPoints     = errors.New("scorer: points must be 1, 2 or 3")
	ErrPlayerNotFound    = errors.New("scorer: player not found in either roster")
	ErrPlayerInBothTeams = errors.New("scorer: player is listed in both rosters")
	ErrScoringNotAllowed = errors.New("scorer: scoring not allowed")
	ErrGameFinished      = errors.New("scorer: game already finished")
	ErrSaveInFlight      = errors.New("scorer: save already in progress")
	ErrSessionClosed     = errors.New("scorer: session closed")
)

// RejectReason explains why the scoring gate is closed.
type RejectReason string

const (
	RejectGameFinished  RejectReason = "game_finished"
	RejectTimeExpired   RejectReason = "time_expired"
	RejectHalftimeBreak RejectReason = "halftime_break"
)

// ScoringRejectedError is returned when points are submitted while the gate is closed.
// errors.Is(err, ErrScoringNotAllowed) holds for every value of this type.
type ScoringRejectedError struct {
	Reason RejectReason
}

func (e *ScoringRejectedError) Error() string {
	return "scorer: scoring not allowed: " + string(e.Reason)
}

func (e *ScoringRejectedError) Unwrap() error {
	return ErrScoringNotAllowed
}

func (r RejectReason) message() string {
	switch r {
	case RejectGameFinished:
		return "Game finished, points can no longer be added"
	case RejectTimeExpired:
		return "Game time expired"
	case RejectHalftimeBreak:
		return "Halftime break, start the second half first"
	}
	return "Scoring not allowed"
}
