package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/knockout-app/knockout/internal/bracket"
)

// TournamentStore persists tournaments, players, rounds and matches. Methods
// take an sqlx.ExtContext so callers can run them either on the shared pool
// or inside a transaction; every externally triggered operation wraps its
// reads and writes in one transaction.
type TournamentStore struct {
	db *sqlx.DB
}

func NewTournamentStore(db *sqlx.DB) *TournamentStore {
	return &TournamentStore{db: db}
}

// DB exposes the underlying pool for beginning transactions.
func (s *TournamentStore) DB() *sqlx.DB {
	return s.db
}

func (s *TournamentStore) CreateTournament(ctx context.Context, ext sqlx.ExtContext, t *bracket.Tournament) error {
	_, err := sqlx.NamedExecContext(ctx, ext, `INSERT INTO tournaments (
            id, organizer_id, name, status, draw_seed, total_rounds, started_at, finished_at,
            entry_fee, late_entry_fee, rebuy_fee,
            organizer_percent, champion_percent, runner_up_percent, third_percent, fourth_percent,
            total_collected, prize_pool, organizer_amount,
            allow_late_entry, late_entry_until_round, allow_rebuy, rebuy_until_round)
        VALUES (
            :id, :organizer_id, :name, :status, :draw_seed, :total_rounds, :started_at, :finished_at,
            :entry_fee, :late_entry_fee, :rebuy_fee,
            :organizer_percent, :champion_percent, :runner_up_percent, :third_percent, :fourth_percent,
            :total_collected, :prize_pool, :organizer_amount,
            :allow_late_entry, :late_entry_until_round, :allow_rebuy, :rebuy_until_round)`, t)
	return err
}

func (s *TournamentStore) UpdateTournament(ctx context.Context, ext sqlx.ExtContext, t *bracket.Tournament) error {
	_, err := sqlx.NamedExecContext(ctx, ext, `UPDATE tournaments SET
            name = :name,
            status = :status,
            draw_seed = :draw_seed,
            total_rounds = :total_rounds,
            started_at = :started_at,
            finished_at = :finished_at,
            total_collected = :total_collected,
            prize_pool = :prize_pool,
            organizer_amount = :organizer_amount
        WHERE id = :id`, t)
	return err
}

func (s *TournamentStore) GetTournament(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*bracket.Tournament, error) {
	var t bracket.Tournament
	err := sqlx.GetContext(ctx, ext, &t, "SELECT * FROM tournaments WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *TournamentStore) GetTournamentsByOrganizer(ctx context.Context, organizerID uuid.UUID) ([]bracket.Tournament, error) {
	var tournaments []bracket.Tournament
	err := s.db.SelectContext(ctx, &tournaments,
		"SELECT * FROM tournaments WHERE organizer_id = ? ORDER BY created_at DESC", organizerID)
	return tournaments, err
}

func (s *TournamentStore) CreatePlayers(ctx context.Context, ext sqlx.ExtContext, players []bracket.Player) error {
	if len(players) == 0 {
		return nil
	}
	_, err := sqlx.NamedExecContext(ctx, ext, `INSERT INTO players (id, tournament_id, name, is_rebuy)
            VALUES (:id, :tournament_id, :name, :is_rebuy)`, players)
	return err
}

func (s *TournamentStore) GetPlayer(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*bracket.Player, error) {
	var p bracket.Player
	err := sqlx.GetContext(ctx, ext, &p, "SELECT * FROM players WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *TournamentStore) GetPlayersByIDs(ctx context.Context, ext sqlx.ExtContext, ids []uuid.UUID) ([]bracket.Player, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In("SELECT * FROM players WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	var players []bracket.Player
	err = sqlx.SelectContext(ctx, ext, &players, ext.Rebind(query), args...)
	return players, err
}

func (s *TournamentStore) UpdatePlayer(ctx context.Context, ext sqlx.ExtContext, p *bracket.Player) error {
	_, err := sqlx.NamedExecContext(ctx, ext,
		"UPDATE players SET name = :name, is_rebuy = :is_rebuy WHERE id = :id", p)
	return err
}

func (s *TournamentStore) GetPlayers(ctx context.Context, tournamentID uuid.UUID) ([]bracket.Player, error) {
	var players []bracket.Player
	err := s.db.SelectContext(ctx, &players,
		"SELECT * FROM players WHERE tournament_id = ? ORDER BY created_at ASC, id ASC", tournamentID)
	return players, err
}

func (s *TournamentStore) CreateRounds(ctx context.Context, ext sqlx.ExtContext, rounds []bracket.Round) error {
	if len(rounds) == 0 {
		return nil
	}
	_, err := sqlx.NamedExecContext(ctx, ext, `INSERT INTO rounds (id, tournament_id, round_number, is_repechage)
            VALUES (:id, :tournament_id, :round_number, :is_repechage)`, rounds)
	return err
}

func (s *TournamentStore) GetRound(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*bracket.Round, error) {
	var r bracket.Round
	err := sqlx.GetContext(ctx, ext, &r, "SELECT * FROM rounds WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetMainRoundByNumber looks up a main-bracket round. Repechage rounds share
// the number space but must never be picked up as the "next round".
func (s *TournamentStore) GetMainRoundByNumber(ctx context.Context, ext sqlx.ExtContext, tournamentID uuid.UUID, number int) (*bracket.Round, error) {
	var r bracket.Round
	err := sqlx.GetContext(ctx, ext, &r,
		"SELECT * FROM rounds WHERE tournament_id = ? AND round_number = ? AND is_repechage = 0",
		tournamentID, number)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *TournamentStore) GetRounds(ctx context.Context, tournamentID uuid.UUID) ([]bracket.Round, error) {
	var rounds []bracket.Round
	err := s.db.SelectContext(ctx, &rounds,
		"SELECT * FROM rounds WHERE tournament_id = ? ORDER BY is_repechage ASC, round_number ASC", tournamentID)
	return rounds, err
}

// CurrentMainRound is the highest main-bracket round that already has
// matches, i.e. the round play currently sits in.
func (s *TournamentStore) CurrentMainRound(ctx context.Context, ext sqlx.ExtContext, tournamentID uuid.UUID) (*bracket.Round, error) {
	var r bracket.Round
	err := sqlx.GetContext(ctx, ext, &r, `SELECT r.* FROM rounds r
            WHERE r.tournament_id = ? AND r.is_repechage = 0
              AND EXISTS (SELECT 1 FROM matches m WHERE m.round_id = r.id)
            ORDER BY r.round_number DESC LIMIT 1`, tournamentID)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *TournamentStore) CreateMatches(ctx context.Context, ext sqlx.ExtContext, matches []bracket.Match) error {
	if len(matches) == 0 {
		return nil
	}
	_, err := sqlx.NamedExecContext(ctx, ext, `INSERT INTO matches (
            id, tournament_id, round_id, position_in_bracket,
            player1_id, player2_id, winner_id, player1_score, player2_score, is_bye, finished_at)
        VALUES (
            :id, :tournament_id, :round_id, :position_in_bracket,
            :player1_id, :player2_id, :winner_id, :player1_score, :player2_score, :is_bye, :finished_at)`,
		matches)
	return err
}

func (s *TournamentStore) UpdateMatch(ctx context.Context, ext sqlx.ExtContext, m *bracket.Match) error {
	_, err := sqlx.NamedExecContext(ctx, ext, `UPDATE matches SET
            player1_id = :player1_id,
            player2_id = :player2_id,
            winner_id = :winner_id,
            player1_score = :player1_score,
            player2_score = :player2_score,
            finished_at = :finished_at
        WHERE id = :id`, m)
	return err
}

func (s *TournamentStore) GetMatch(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*bracket.Match, error) {
	var m bracket.Match
	err := sqlx.GetContext(ctx, ext, &m, "SELECT * FROM matches WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *TournamentStore) GetMatchesByRound(ctx context.Context, ext sqlx.ExtContext, roundID uuid.UUID) ([]bracket.Match, error) {
	var matches []bracket.Match
	err := sqlx.SelectContext(ctx, ext, &matches,
		"SELECT * FROM matches WHERE round_id = ? ORDER BY position_in_bracket ASC", roundID)
	return matches, err
}

func (s *TournamentStore) GetMatches(ctx context.Context, tournamentID uuid.UUID) ([]bracket.Match, error) {
	var matches []bracket.Match
	err := s.db.SelectContext(ctx, &matches, `SELECT m.* FROM matches m
            JOIN rounds r ON r.id = m.round_id
            WHERE m.tournament_id = ?
            ORDER BY r.is_repechage ASC, r.round_number ASC, m.position_in_bracket ASC`, tournamentID)
	return matches, err
}

// HasUndecidedSiblings reports whether any match other than exceptID in the
// round still awaits a result. With pairedOnly set, matches without a second
// player are ignored: an unfilled repechage slot has no participants yet and
// cannot block round completion.
func (s *TournamentStore) HasUndecidedSiblings(ctx context.Context, ext sqlx.ExtContext, roundID, exceptID uuid.UUID, pairedOnly bool) (bool, error) {
	query := "SELECT COUNT(*) FROM matches WHERE round_id = ? AND id != ? AND winner_id IS NULL"
	if pairedOnly {
		query += " AND player2_id IS NOT NULL"
	}
	var count int
	if err := sqlx.GetContext(ctx, ext, &count, query, roundID, exceptID); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *TournamentStore) MaxPositionInRound(ctx context.Context, ext sqlx.ExtContext, roundID uuid.UUID) (int, error) {
	var position sql.NullInt64
	err := sqlx.GetContext(ctx, ext, &position,
		"SELECT MAX(position_in_bracket) FROM matches WHERE round_id = ?", roundID)
	if err != nil {
		return 0, err
	}
	return int(position.Int64), nil
}

// LatestDecidedMatch returns the most recently decided non-bye match, or nil
// when nothing has been recorded yet.
func (s *TournamentStore) LatestDecidedMatch(ctx context.Context, ext sqlx.ExtContext, tournamentID uuid.UUID) (*bracket.Match, error) {
	var m bracket.Match
	err := sqlx.GetContext(ctx, ext, &m, `SELECT * FROM matches
            WHERE tournament_id = ? AND winner_id IS NOT NULL AND is_bye = 0
            ORDER BY finished_at DESC, rowid DESC LIMIT 1`, tournamentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// LatestMatchForPlayer returns the player's most recent match, or nil if the
// player never appeared in the bracket.
func (s *TournamentStore) LatestMatchForPlayer(ctx context.Context, ext sqlx.ExtContext, tournamentID, playerID uuid.UUID) (*bracket.Match, error) {
	var m bracket.Match
	err := sqlx.GetContext(ctx, ext, &m, `SELECT m.* FROM matches m
            JOIN rounds r ON r.id = m.round_id
            WHERE m.tournament_id = ? AND (m.player1_id = ? OR m.player2_id = ?)
            ORDER BY r.round_number DESC, m.rowid DESC LIMIT 1`,
		tournamentID, playerID, playerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *TournamentStore) DeleteMatches(ctx context.Context, ext sqlx.ExtContext, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In("DELETE FROM matches WHERE id IN (?)", ids)
	if err != nil {
		return err
	}
	_, err = ext.ExecContext(ctx, ext.Rebind(query), args...)
	return err
}
