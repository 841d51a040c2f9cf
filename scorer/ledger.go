package scorer

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iderdiyok/basketball-tourney/models"
)

// PlayerScoreEntry is one player's running tally. Total is always derived.
type PlayerScoreEntry struct {
	PlayerID   int    `json:"player_id"`
	PlayerName string `json:"player_name"`
	Points1    int    `json:"points1"`
	Points2    int    `json:"points2"`
	Points3    int    `json:"points3"`
	Total      int    `json:"total"`
}

func (p *PlayerScoreEntry) recompute() {
	p.Total = p.Points1 + 2*p.Points2 + 3*p.Points3
}

func (p *PlayerScoreEntry) add(points int) {
	switch points {
	case 1:
		p.Points1++
	case 2:
		p.Points2++
	case 3:
		p.Points3++
	}
	p.recompute()
}

// remove is floored at zero.
func (p *PlayerScoreEntry) remove(points int) {
	switch points {
	case 1:
		if p.Points1 > 0 {
			p.Points1--
		}
	case 2:
		if p.Points2 > 0 {
			p.Points2--
		}
	case 3:
		if p.Points3 > 0 {
			p.Points3--
		}
	}
	p.recompute()
}

// TeamLedger holds one team's players in roster order.
type TeamLedger struct {
	TeamID     int                `json:"team_id"`
	TeamName   string             `json:"team_name"`
	TotalScore int                `json:"total_score"`
	Players    []PlayerScoreEntry `json:"players"`
}

func (t *TeamLedger) recompute() {
	sum := 0
	for i := range t.Players {
		sum += t.Players[i].Total
	}
	t.TotalScore = sum
}

func (t *TeamLedger) find(playerID int) *PlayerScoreEntry {
	for i := range t.Players {
		if t.Players[i].PlayerID == playerID {
			return &t.Players[i]
		}
	}
	return nil
}

func (t *TeamLedger) clone() TeamLedger {
	c := *t
	c.Players = make([]PlayerScoreEntry, len(t.Players))
	copy(c.Players, t.Players)
	return c
}

// ScoringAction is one entry of the undo history.
type ScoringAction struct {
	ID         uuid.UUID `json:"id"`
	PlayerID   int       `json:"player_id"`
	PlayerName string    `json:"player_name"`
	TeamID     int       `json:"team_id"`
	TeamName   string    `json:"team_name"`
	Points     int       `json:"points"`
	Timestamp  time.Time `json:"timestamp"`
}

// Ledger is the in-memory tally of both teams plus the undo history.
// It is not safe for concurrent use; a Session serializes access.
type Ledger struct {
	teamA   TeamLedger
	teamB   TeamLedger
	history []ScoringAction
}

// NewLedger seeds both team ledgers from the persisted game record.
// Stored totals are ignored and recomputed from the three counters.
func NewLedger(game *models.Game) (*Ledger, error) {
	if game == nil || game.TeamA == nil || game.TeamB == nil {
		return nil, ErrIncompleteRoster
	}
	if len(game.TeamA.Players) == 0 || len(game.TeamB.Players) == 0 {
		return nil, fmt.Errorf("%w: game %d has an empty roster", ErrIncompleteRoster, game.ID)
	}
	if game.TeamA.ID == game.TeamB.ID {
		return nil, fmt.Errorf("%w: game %d lists team %d on both sides", ErrIncompleteRoster, game.ID, game.TeamA.ID)
	}

	stats := make(map[int]models.PlayerStat, len(game.PlayerStats))
	for _, s := range game.PlayerStats {
		stats[s.PlayerID] = s
	}

	return &Ledger{
		teamA: seedTeam(game.TeamA, stats),
		teamB: seedTeam(game.TeamB, stats),
	}, nil
}

func seedTeam(team *models.Team, stats map[int]models.PlayerStat) TeamLedger {
	tl := TeamLedger{
		TeamID:   team.ID,
		TeamName: team.Name,
		Players:  make([]PlayerScoreEntry, 0, len(team.Players)),
	}
	for _, p := range team.Players {
		entry := PlayerScoreEntry{PlayerID: p.ID, PlayerName: p.Name}
		if s, ok := stats[p.ID]; ok {
			entry.Points1 = max(s.Points1, 0)
			entry.Points2 = max(s.Points2, 0)
			entry.Points3 = max(s.Points3, 0)
		}
		entry.recompute()
		tl.Players = append(tl.Players, entry)
	}
	tl.recompute()
	return tl
}

// AddPoints credits a made shot to the player. The scoring gate is the caller's concern.
func (l *Ledger) AddPoints(playerID, points int, at time.Time) (ScoringAction, error) {
	if points < 1 || points > 3 {
		return ScoringAction{}, fmt.Errorf("%w: got %d", ErrInvalidPoints, points)
	}

	inA, inB := l.teamA.find(playerID), l.teamB.find(playerID)
	var team *TeamLedger
	var entry *PlayerScoreEntry
	switch {
	case inA != nil && inB != nil:
		return ScoringAction{}, fmt.Errorf("%w: player %d", ErrPlayerInBothTeams, playerID)
	case inA != nil:
		team, entry = &l.teamA, inA
	case inB != nil:
		team, entry = &l.teamB, inB
	default:
		return ScoringAction{}, fmt.Errorf("%w: player %d", ErrPlayerNotFound, playerID)
	}

	entry.add(points)
	team.recompute()

	action := ScoringAction{
		ID:         uuid.New(),
		PlayerID:   entry.PlayerID,
		PlayerName: entry.PlayerName,
		TeamID:     team.TeamID,
		TeamName:   team.TeamName,
		Points:     points,
		Timestamp:  at,
	}
	l.history = append(l.history, action)
	return action, nil
}

// UndoLast reverses the most recent action using its recorded team and player.
// ok is false when the history is empty.
func (l *Ledger) UndoLast() (action ScoringAction, ok bool) {
	if len(l.history) == 0 {
		return ScoringAction{}, false
	}
	action = l.history[len(l.history)-1]
	l.history = l.history[:len(l.history)-1]

	team := l.teamByID(action.TeamID)
	if team == nil {
		return action, true
	}
	if entry := team.find(action.PlayerID); entry != nil {
		entry.remove(action.Points)
	}
	team.recompute()
	return action, true
}

func (l *Ledger) teamByID(teamID int) *TeamLedger {
	switch teamID {
	case l.teamA.TeamID:
		return &l.teamA
	case l.teamB.TeamID:
		return &l.teamB
	}
	return nil
}

func (l *Ledger) TeamA() TeamLedger { return l.teamA.clone() }
func (l *Ledger) TeamB() TeamLedger { return l.teamB.clone() }

func (l *Ledger) Scores() (scoreA, scoreB int) {
	return l.teamA.TotalScore, l.teamB.TotalScore
}

func (l *Ledger) HistoryLen() int { return len(l.history) }

func (l *Ledger) LastAction() (ScoringAction, bool) {
	if len(l.history) == 0 {
		return ScoringAction{}, false
	}
	return l.history[len(l.history)-1], true
}

// Result flattens both ledgers into the final game write: team A roster order, then team B.
func (l *Ledger) Result() models.GameResult {
	stats := make([]models.PlayerStat, 0, len(l.teamA.Players)+len(l.teamB.Players))
	for _, team := range []*TeamLedger{&l.teamA, &l.teamB} {
		for _, p := range team.Players {
			stats = append(stats, models.PlayerStat{
				PlayerID: p.PlayerID,
				Points1:  p.Points1,
				Points2:  p.Points2,
				Points3:  p.Points3,
				Total:    p.Total,
			})
		}
	}
	return models.GameResult{
		Status:      models.GameStatusFinished,
		ScoreA:      l.teamA.TotalScore,
		ScoreB:      l.teamB.TotalScore,
		PlayerStats: stats,
	}
}
