package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iderdiyok/basketball-tourney/models"
	"github.com/iderdiyok/basketball-tourney/repositories"
)

// GameService is the persisted game record used by scorer sessions and the public API.
type GameService interface {
	GetGame(ctx context.Context, id int) (*models.Game, error)
	UpdateGameStatus(ctx context.Context, id int, status models.GameStatus) error
	SaveGameResult(ctx context.Context, id int, result models.GameResult) error
}

// ResultArchiver receives every successfully saved result.
type ResultArchiver interface {
	ArchiveResult(ctx context.Context, game *models.Game, result models.GameResult) (string, error)
}

type gameService struct {
	gameRepo repositories.GameRepository
	archiver ResultArchiver
	logger   *slog.Logger
}

// NewGameService создаёт сервис игр. archiver может быть nil: архив отключён.
func NewGameService(gameRepo repositories.GameRepository, archiver ResultArchiver, logger *slog.Logger) GameService {
	return &gameService{
		gameRepo: gameRepo,
		archiver: archiver,
		logger:   logger,
	}
}

func (s *gameService) GetGame(ctx context.Context, id int) (*models.Game, error) {
	game, err := s.gameRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrGameNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to get game by id %d: %w", id, err)
	}
	if game.PlayerStats == nil {
		game.PlayerStats = []models.PlayerStat{}
	}
	return game, nil
}

func (s *gameService) UpdateGameStatus(ctx context.Context, id int, status models.GameStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrGameInvalidStatus, status)
	}

	err := s.gameRepo.UpdateStatus(ctx, nil, id, status)
	if err != nil {
		return mapGameRepoError(id, err)
	}
	s.logger.InfoContext(ctx, "game status updated", slog.Int("game_id", id), slog.String("status", string(status)))
	return nil
}

func (s *gameService) SaveGameResult(ctx context.Context, id int, result models.GameResult) error {
	if err := validateGameResult(result); err != nil {
		return err
	}

	if err := s.gameRepo.SaveResult(ctx, id, result); err != nil {
		return mapGameRepoError(id, err)
	}
	s.logger.InfoContext(ctx, "game result saved",
		slog.Int("game_id", id), slog.Int("score_a", result.ScoreA), slog.Int("score_b", result.ScoreB))

	if s.archiver != nil {
		s.archive(ctx, id, result)
	}
	return nil
}

// archive failures never fail the save.
func (s *gameService) archive(ctx context.Context, id int, result models.GameResult) {
	game, err := s.gameRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load game for archive", slog.Int("game_id", id), slog.Any("error", err))
		return
	}
	location, err := s.archiver.ArchiveResult(ctx, game, result)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to archive box score", slog.Int("game_id", id), slog.Any("error", err))
		return
	}
	s.logger.InfoContext(ctx, "box score archived", slog.Int("game_id", id), slog.String("location", location))
}

func validateGameResult(result models.GameResult) error {
	if result.Status != models.GameStatusFinished {
		return fmt.Errorf("%w: status must be %q, got %q", ErrGameInvalidResult, models.GameStatusFinished, result.Status)
	}
	if result.ScoreA < 0 || result.ScoreB < 0 {
		return fmt.Errorf("%w: negative score", ErrGameInvalidResult)
	}

	sum := 0
	seen := make(map[int]struct{}, len(result.PlayerStats))
	for _, ps := range result.PlayerStats {
		if ps.Points1 < 0 || ps.Points2 < 0 || ps.Points3 < 0 {
			return fmt.Errorf("%w: negative counter for player %d", ErrGameInvalidResult, ps.PlayerID)
		}
		if ps.Total != ps.Points1+2*ps.Points2+3*ps.Points3 {
			return fmt.Errorf("%w: total of player %d does not match its counters", ErrGameInvalidResult, ps.PlayerID)
		}
		if _, dup := seen[ps.PlayerID]; dup {
			return fmt.Errorf("%w: player %d listed twice", ErrGameInvalidResult, ps.PlayerID)
		}
		seen[ps.PlayerID] = struct{}{}
		sum += ps.Total
	}
	if result.ScoreA+result.ScoreB != sum {
		return fmt.Errorf("%w: team scores %d+%d do not match player totals %d",
			ErrGameInvalidResult, result.ScoreA, result.ScoreB, sum)
	}
	return nil
}

func mapGameRepoError(id int, err error) error {
	switch {
	case errors.Is(err, repositories.ErrGameNotFound):
		return ErrGameNotFound
	case errors.Is(err, repositories.ErrGameStatusInvalid):
		return fmt.Errorf("%w: %w", ErrGameInvalidStatus, err)
	case errors.Is(err, repositories.ErrGameStatsPlayerInvalid):
		return fmt.Errorf("%w: %w", ErrGameInvalidResult, err)
	}
	return fmt.Errorf("%w %d: %w", ErrGameUpdateFailed, id, err)
}
