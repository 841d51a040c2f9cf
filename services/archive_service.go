package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/iderdiyok/basketball-tourney/models"
	"github.com/iderdiyok/basketball-tourney/storage"
)

// BoxScore is the archived JSON document of a finished game.
type BoxScore struct {
	GameID       int               `json:"game_id"`
	TournamentID int               `json:"tournament_id"`
	Status       models.GameStatus `json:"status"`
	TeamA        BoxScoreTeam      `json:"team_a"`
	TeamB        BoxScoreTeam      `json:"team_b"`
	ArchivedAt   time.Time         `json:"archived_at"`
}

type BoxScoreTeam struct {
	TeamID  int              `json:"team_id"`
	Name    string           `json:"name"`
	Score   int              `json:"score"`
	Players []BoxScorePlayer `json:"players"`
}

type BoxScorePlayer struct {
	Name string `json:"name"`
	models.PlayerStat
}

type ArchiveService struct {
	uploader storage.FileUploader
	clock    clockwork.Clock
}

func NewArchiveService(uploader storage.FileUploader, clock clockwork.Clock) *ArchiveService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ArchiveService{uploader: uploader, clock: clock}
}

func BoxScoreKey(gameID int) string {
	return fmt.Sprintf("games/%d/boxscore.json", gameID)
}

// ArchiveResult uploads the box score and returns its public URL.
func (s *ArchiveService) ArchiveResult(ctx context.Context, game *models.Game, result models.GameResult) (string, error) {
	doc := buildBoxScore(game, result, s.clock.Now().UTC())

	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode box score for game %d: %w", game.ID, err)
	}

	res, err := s.uploader.Upload(ctx, BoxScoreKey(game.ID), "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	return res.Location, nil
}

func buildBoxScore(game *models.Game, result models.GameResult, at time.Time) BoxScore {
	stats := make(map[int]models.PlayerStat, len(result.PlayerStats))
	for _, ps := range result.PlayerStats {
		stats[ps.PlayerID] = ps
	}

	team := func(t *models.Team, id, score int) BoxScoreTeam {
		bt := BoxScoreTeam{TeamID: id, Score: score, Players: []BoxScorePlayer{}}
		if t == nil {
			return bt
		}
		bt.Name = t.Name
		for _, p := range t.Players {
			ps := stats[p.ID]
			ps.PlayerID = p.ID
			bt.Players = append(bt.Players, BoxScorePlayer{Name: p.Name, PlayerStat: ps})
		}
		return bt
	}

	return BoxScore{
		GameID:       game.ID,
		TournamentID: game.TournamentID,
		Status:       result.Status,
		TeamA:        team(game.TeamA, game.TeamAID, result.ScoreA),
		TeamB:        team(game.TeamB, game.TeamBID, result.ScoreB),
		ArchivedAt:   at,
	}
}
