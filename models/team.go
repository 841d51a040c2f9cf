package models

import "time"

type Team struct {
	ID           int       `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	TournamentID int       `json:"tournament_id" db:"tournament_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`

	// Ростер в порядке добавления игроков, заполняется репозиторием.
	Players []Player `json:"players,omitempty" db:"-"`
}
