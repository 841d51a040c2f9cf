package models

import "time"

// GameStatus mirrors the status column of the games table.
type GameStatus string

const (
	GameStatusPending  GameStatus = "pending"
	GameStatusLive     GameStatus = "live"
	GameStatusFinished GameStatus = "finished"
)

func (s GameStatus) Valid() bool {
	switch s {
	case GameStatusPending, GameStatusLive, GameStatusFinished:
		return true
	}
	return false
}

// PlayerStat is the persisted per-player line of a game.
type PlayerStat struct {
	PlayerID int `json:"player_id" db:"player_id"`
	Points1  int `json:"points1" db:"points1"`
	Points2  int `json:"points2" db:"points2"`
	Points3  int `json:"points3" db:"points3"`
	Total    int `json:"total" db:"total"`
}

// Game представляет одну игру турнира вместе с ростерами обеих команд.
type Game struct {
	ID            int          `json:"id" db:"id"`
	TournamentID  int          `json:"tournament_id" db:"tournament_id"`
	TeamAID       int          `json:"team_a_id" db:"team_a_id"`
	TeamBID       int          `json:"team_b_id" db:"team_b_id"`
	ScoreA        int          `json:"score_a" db:"score_a"`
	ScoreB        int          `json:"score_b" db:"score_b"`
	Status        GameStatus   `json:"status" db:"status"`
	ScheduledTime *time.Time   `json:"scheduled_time,omitempty" db:"scheduled_time"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
	PlayerStats   []PlayerStat `json:"player_stats" db:"-"`

	TeamA *Team `json:"team_a,omitempty" db:"-"`
	TeamB *Team `json:"team_b,omitempty" db:"-"`
}

// GameResult is the final write issued when a scorer session saves.
type GameResult struct {
	Status      GameStatus   `json:"status"`
	ScoreA      int          `json:"score_a"`
	ScoreB      int          `json:"score_b"`
	PlayerStats []PlayerStat `json:"player_stats"`
}
