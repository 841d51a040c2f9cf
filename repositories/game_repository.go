package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/iderdiyok/basketball-tourney/models"
)

var (
	ErrGameNotFound           = errors.New("game not found")
	ErrGameStatusInvalid      = errors.New("game status rejected by database")
	ErrGameStatsPlayerInvalid = errors.New("player stats reference an unknown player")
)

type GameRepository interface {
	// GetByID возвращает игру вместе с ростерами обеих команд и статистикой игроков.
	GetByID(ctx context.Context, id int) (*models.Game, error)
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.GameStatus) error
	// SaveResult атомарно записывает финальный счёт и статистику игроков.
	SaveResult(ctx context.Context, id int, result models.GameResult) error
}

type postgresGameRepository struct {
	db *sql.DB
}

func NewPostgresGameRepository(db *sql.DB) GameRepository {
	return &postgresGameRepository{db: db}
}

func (r *postgresGameRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresGameRepository) GetByID(ctx context.Context, id int) (*models.Game, error) {
	query := `
		SELECT id, tournament_id, team_a_id, team_b_id, score_a, score_b, status, scheduled_time, created_at
		FROM games
		WHERE id = $1`

	game := &models.Game{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&game.ID,
		&game.TournamentID,
		&game.TeamAID,
		&game.TeamBID,
		&game.ScoreA,
		&game.ScoreB,
		&game.Status,
		&game.ScheduledTime,
		&game.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to get game %d: %w", id, err)
	}

	// Ростеры и статистика независимы друг от друга, грузим параллельно.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		team, err := r.getTeamWithPlayers(gctx, game.TeamAID)
		game.TeamA = team
		return err
	})
	g.Go(func() error {
		team, err := r.getTeamWithPlayers(gctx, game.TeamBID)
		game.TeamB = team
		return err
	})
	g.Go(func() error {
		stats, err := r.listPlayerStats(gctx, game.ID)
		game.PlayerStats = stats
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return game, nil
}

// getTeamWithPlayers returns nil without error when the team row is missing.
func (r *postgresGameRepository) getTeamWithPlayers(ctx context.Context, teamID int) (*models.Team, error) {
	team := &models.Team{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, tournament_id, created_at FROM teams WHERE id = $1`, teamID,
	).Scan(&team.ID, &team.Name, &team.TournamentID, &team.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get team %d: %w", teamID, err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, team_id, number, created_at
		FROM players
		WHERE team_id = $1
		ORDER BY created_at, id`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list players of team %d: %w", teamID, err)
	}
	defer rows.Close()

	team.Players = make([]models.Player, 0)
	for rows.Next() {
		var p models.Player
		if err := rows.Scan(&p.ID, &p.Name, &p.TeamID, &p.Number, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan player of team %d: %w", teamID, err)
		}
		team.Players = append(team.Players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating players of team %d: %w", teamID, err)
	}
	return team, nil
}

func (r *postgresGameRepository) listPlayerStats(ctx context.Context, gameID int) ([]models.PlayerStat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT player_id, points1, points2, points3, total
		FROM game_player_stats
		WHERE game_id = $1`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list player stats of game %d: %w", gameID, err)
	}
	defer rows.Close()

	stats := make([]models.PlayerStat, 0)
	for rows.Next() {
		var s models.PlayerStat
		if err := rows.Scan(&s.PlayerID, &s.Points1, &s.Points2, &s.Points3, &s.Total); err != nil {
			return nil, fmt.Errorf("failed to scan player stat: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func (r *postgresGameRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.GameStatus) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `UPDATE games SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return r.handleGameError(fmt.Errorf("UpdateStatus: game %d: %w", id, err))
	}
	return checkAffectedRows(result, ErrGameNotFound)
}

func (r *postgresGameRepository) SaveResult(ctx context.Context, id int, result models.GameResult) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("SaveResult failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE games SET status = $1, score_a = $2, score_b = $3 WHERE id = $4`,
		result.Status, result.ScoreA, result.ScoreB, id)
	if err != nil {
		return r.handleGameError(fmt.Errorf("SaveResult: update game %d: %w", id, err))
	}
	if err = checkAffectedRows(res, ErrGameNotFound); err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM game_player_stats WHERE game_id = $1`, id); err != nil {
		return fmt.Errorf("SaveResult: clear stats of game %d: %w", id, err)
	}
	if len(result.PlayerStats) == 0 {
		return nil
	}

	n := len(result.PlayerStats)
	playerIDs := make([]int64, 0, n)
	p1 := make([]int64, 0, n)
	p2 := make([]int64, 0, n)
	p3 := make([]int64, 0, n)
	totals := make([]int64, 0, n)
	for _, s := range result.PlayerStats {
		playerIDs = append(playerIDs, int64(s.PlayerID))
		p1 = append(p1, int64(s.Points1))
		p2 = append(p2, int64(s.Points2))
		p3 = append(p3, int64(s.Points3))
		totals = append(totals, int64(s.Total))
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO game_player_stats (game_id, player_id, points1, points2, points3, total)
		SELECT $1, s.player_id, s.points1, s.points2, s.points3, s.total
		FROM unnest($2::int[], $3::int[], $4::int[], $5::int[], $6::int[])
			AS s(player_id, points1, points2, points3, total)`,
		id, pq.Array(playerIDs), pq.Array(p1), pq.Array(p2), pq.Array(p3), pq.Array(totals))
	if err != nil {
		return r.handleGameError(fmt.Errorf("SaveResult: insert stats of game %d: %w", id, err))
	}
	return nil
}

func (r *postgresGameRepository) handleGameError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23503": // foreign_key_violation
			if pqErr.Constraint == "game_player_stats_player_id_fkey" {
				return fmt.Errorf("%w: %v", ErrGameStatsPlayerInvalid, err)
			}
		case "23514", "22P02": // check_violation, invalid_text_representation (enum)
			return fmt.Errorf("%w: %v", ErrGameStatusInvalid, err)
		}
	}
	return err
}
