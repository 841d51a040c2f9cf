package scorer

import (
	"fmt"
	"time"

	"github.com/iderdiyok/basketball-tourney/models"
)

type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyError   NotificationKind = "error"
	NotifyInfo    NotificationKind = "info"
)

// NotificationEvent names the session event that produced a message.
type NotificationEvent string

const (
	EventHalfEnded          NotificationEvent = "half_ended"
	EventGameEnded          NotificationEvent = "game_ended"
	EventPointsAdded        NotificationEvent = "points_added"
	EventScoringRejected    NotificationEvent = "scoring_rejected"
	EventPointsUndone       NotificationEvent = "points_undone"
	EventSaveSucceeded      NotificationEvent = "save_succeeded"
	EventSaveFailed         NotificationEvent = "save_failed"
	EventStatusUpdateFailed NotificationEvent = "status_update_failed"
)

// Notification is a user-facing message emitted by a session.
type Notification struct {
	GameID  int               `json:"game_id"`
	Kind    NotificationKind  `json:"kind"`
	Event   NotificationEvent `json:"event"`
	Message string            `json:"message"`
	At      time.Time         `json:"at"`
}

// Observer receives a snapshot after every visible change. Implementations must not block.
type Observer interface {
	Observe(Snapshot)
}

// Notifier receives user-facing messages. Implementations must not block.
type Notifier interface {
	Notify(Notification)
}

// Snapshot is the full scorer view at one instant.
type Snapshot struct {
	SessionID      string            `json:"session_id"`
	GameID         int               `json:"game_id"`
	Status         models.GameStatus `json:"status"`
	Clock          ClockView         `json:"clock"`
	ScoringAllowed bool              `json:"scoring_allowed"`
	TeamA          TeamLedger        `json:"team_a"`
	TeamB          TeamLedger        `json:"team_b"`
	CanUndo        bool              `json:"can_undo"`
	LastAction     *ScoringAction    `json:"last_action,omitempty"`
	Saving         bool              `json:"saving"`
	At             time.Time         `json:"at"`
}

func pointsLabel(n int) string {
	if n == 1 {
		return "1 point"
	}
	return fmt.Sprintf("%d points", n)
}
