package models

import "time"

type Player struct {
	ID        int       `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	TeamID    int       `json:"team_id" db:"team_id"`
	Number    *int      `json:"number,omitempty" db:"number"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
