package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/knockout-app/knockout/internal/bracket"
	"github.com/knockout-app/knockout/internal/finance"
	"github.com/knockout-app/knockout/internal/store"
)

// RosterService mutates a live bracket outside the normal advancement flow:
// late entries, rebuys and result undo. All mutations are additive byes or
// reverts; existing pairings are never rewritten.
type RosterService struct {
	db    *sqlx.DB
	store *store.TournamentStore
}

func NewRosterService(db *sqlx.DB, store *store.TournamentStore) *RosterService {
	return &RosterService{db: db, store: store}
}

// LateEntry registers a new player into the current round of a running
// tournament via an auto-resolved bye. force overrides the allow flag but
// never the round cutoff.
func (s *RosterService) LateEntry(ctx context.Context, tournamentID, organizerID uuid.UUID, playerName string, force bool) (*bracket.Player, error) {
	playerName = strings.TrimSpace(playerName)
	if playerName == "" {
		return nil, InvalidInput("player name is required")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	tournament, err := s.getOwnedRunningTournament(ctx, tx, tournamentID, organizerID)
	if err != nil {
		return nil, err
	}
	if !tournament.AllowLateEntry && !force {
		return nil, Conflict("late entries are not allowed for this tournament")
	}

	current, err := s.store.CurrentMainRound(ctx, tx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get current round: %w", err)
	}
	if current.RoundNumber > tournament.LateEntryUntilRound {
		return nil, Conflict("late entries are closed after round %d", tournament.LateEntryUntilRound)
	}

	player := &bracket.Player{
		ID:           uuid.New(),
		TournamentID: tournamentID,
		Name:         playerName,
	}
	if err := s.store.CreatePlayers(ctx, tx, []bracket.Player{*player}); err != nil {
		return nil, fmt.Errorf("failed to create player: %w", err)
	}

	if err := s.insertByeMatch(ctx, tx, tournamentID, current.ID, player.ID); err != nil {
		return nil, err
	}
	if err := s.collectFee(ctx, tx, tournament, tournament.LateEntryAmount()); err != nil {
		return nil, err
	}

	return player, tx.Commit()
}

// Rebuy re-enters an eliminated player, once per tournament, via a bye in
// the current round.
func (s *RosterService) Rebuy(ctx context.Context, tournamentID, organizerID, playerID uuid.UUID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tournament, err := s.getOwnedRunningTournament(ctx, tx, tournamentID, organizerID)
	if err != nil {
		return err
	}
	if !tournament.AllowRebuy {
		return Conflict("rebuys are not allowed for this tournament")
	}

	current, err := s.store.CurrentMainRound(ctx, tx, tournamentID)
	if err != nil {
		return fmt.Errorf("failed to get current round: %w", err)
	}
	if current.RoundNumber > tournament.RebuyUntilRound {
		return Conflict("rebuys are closed after round %d", tournament.RebuyUntilRound)
	}

	player, err := s.store.GetPlayer(ctx, tx, playerID)
	if errors.Is(err, sql.ErrNoRows) {
		return NotFound("player %s not found", playerID)
	}
	if err != nil {
		return fmt.Errorf("failed to get player: %w", err)
	}
	if player.TournamentID != tournamentID {
		return NotFound("player %s not found in tournament %s", playerID, tournamentID)
	}
	if player.IsRebuy {
		return Conflict("player has already used their rebuy")
	}

	elimination, err := s.store.LatestMatchForPlayer(ctx, tx, tournamentID, playerID)
	if err != nil {
		return fmt.Errorf("failed to find elimination match: %w", err)
	}
	if elimination == nil || elimination.WinnerID == nil || *elimination.WinnerID == playerID {
		return Conflict("player is not eliminated and cannot rebuy")
	}

	player.IsRebuy = true
	if err := s.store.UpdatePlayer(ctx, tx, player); err != nil {
		return fmt.Errorf("failed to update player: %w", err)
	}

	if err := s.insertByeMatch(ctx, tx, tournamentID, current.ID, playerID); err != nil {
		return err
	}
	if err := s.collectFee(ctx, tx, tournament, tournament.RebuyAmount()); err != nil {
		return err
	}

	return tx.Commit()
}

// UndoLastMatchResult reverts the most recently decided match to pending.
// If the completed round had already produced the next round's matches,
// those are deleted — unless anything there was decided manually or a late
// entry landed in it, in which case the undo is rejected rather than
// cascading data loss.
func (s *RosterService) UndoLastMatchResult(ctx context.Context, tournamentID, organizerID uuid.UUID) (*bracket.Match, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	tournament, err := s.store.GetTournament(ctx, tx, tournamentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("tournament %s not found", tournamentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tournament: %w", err)
	}
	if tournament.OrganizerID != organizerID {
		return nil, Forbidden("only the organizer can undo results")
	}
	if tournament.Status != bracket.TournamentRunning && tournament.Status != bracket.TournamentFinished {
		return nil, Conflict("undo requires a running or finished tournament, current status is %s", tournament.Status)
	}

	match, err := s.store.LatestDecidedMatch(ctx, tx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to find last decided match: %w", err)
	}
	if match == nil {
		return nil, Conflict("no recorded result to undo")
	}

	round, err := s.store.GetRound(ctx, tx, match.RoundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	if !round.IsRepechage {
		if err := s.removeGeneratedNextRound(ctx, tx, tournament, round); err != nil {
			return nil, err
		}
	}

	match.WinnerID = nil
	match.Player1Score = nil
	match.Player2Score = nil
	match.FinishedAt = nil
	if err := s.store.UpdateMatch(ctx, tx, match); err != nil {
		return nil, fmt.Errorf("failed to revert match: %w", err)
	}

	if tournament.Status == bracket.TournamentFinished {
		tournament.Status = bracket.TournamentRunning
		tournament.FinishedAt = nil
		if err := s.store.UpdateTournament(ctx, tx, tournament); err != nil {
			return nil, fmt.Errorf("failed to reopen tournament: %w", err)
		}
	}

	return match, tx.Commit()
}

// removeGeneratedNextRound deletes next-round matches that exist only as a
// product of the round the undone result belongs to. Matches carrying later
// results, and byes inserted for players who were not winners of this round
// (late entries, rebuys), block the undo.
func (s *RosterService) removeGeneratedNextRound(ctx context.Context, tx *sqlx.Tx, tournament *bracket.Tournament, round *bracket.Round) error {
	next, err := s.store.GetMainRoundByNumber(ctx, tx, tournament.ID, round.RoundNumber+1)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up next round: %w", err)
	}

	nextMatches, err := s.store.GetMatchesByRound(ctx, tx, next.ID)
	if err != nil {
		return fmt.Errorf("failed to load next-round matches: %w", err)
	}
	if len(nextMatches) == 0 {
		return nil
	}

	roundMatches, err := s.store.GetMatchesByRound(ctx, tx, round.ID)
	if err != nil {
		return fmt.Errorf("failed to load round matches: %w", err)
	}
	winners := make(map[uuid.UUID]bool, len(roundMatches))
	for _, m := range roundMatches {
		if m.WinnerID != nil {
			winners[*m.WinnerID] = true
		}
	}

	ids := make([]uuid.UUID, 0, len(nextMatches))
	for _, m := range nextMatches {
		if m.Decided() && !m.IsBye {
			return Conflict("a later result depends on this match, undo it first")
		}
		if m.IsBye && m.Player1ID != nil && !winners[*m.Player1ID] {
			return Conflict("a late entry or rebuy depends on the next round, cannot undo")
		}
		ids = append(ids, m.ID)
	}

	if err := s.store.DeleteMatches(ctx, tx, ids); err != nil {
		return fmt.Errorf("failed to delete generated matches: %w", err)
	}
	return nil
}

func (s *RosterService) getOwnedRunningTournament(ctx context.Context, tx *sqlx.Tx, tournamentID, organizerID uuid.UUID) (*bracket.Tournament, error) {
	tournament, err := s.store.GetTournament(ctx, tx, tournamentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("tournament %s not found", tournamentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tournament: %w", err)
	}
	if tournament.OrganizerID != organizerID {
		return nil, Forbidden("only the organizer can modify the roster")
	}
	if tournament.Status != bracket.TournamentRunning {
		return nil, Conflict("roster changes require a running tournament, current status is %s", tournament.Status)
	}
	return tournament, nil
}

func (s *RosterService) insertByeMatch(ctx context.Context, tx *sqlx.Tx, tournamentID, roundID, playerID uuid.UUID) error {
	maxPosition, err := s.store.MaxPositionInRound(ctx, tx, roundID)
	if err != nil {
		return fmt.Errorf("failed to get max bracket position: %w", err)
	}

	now := time.Now().UTC()
	match := bracket.Match{
		ID:                uuid.New(),
		TournamentID:      tournamentID,
		RoundID:           roundID,
		PositionInBracket: maxPosition + 1,
		Player1ID:         &playerID,
		WinnerID:          &playerID,
		IsBye:             true,
		FinishedAt:        &now,
	}
	if err := s.store.CreateMatches(ctx, tx, []bracket.Match{match}); err != nil {
		return fmt.Errorf("failed to create bye match: %w", err)
	}
	return nil
}

func (s *RosterService) collectFee(ctx context.Context, tx *sqlx.Tx, tournament *bracket.Tournament, amount float64) error {
	tournament.TotalCollected = finance.Round2(tournament.TotalCollected + amount)
	tournament.OrganizerAmount, tournament.PrizePool = finance.Split(tournament.TotalCollected, tournament.OrganizerPercent)
	if err := s.store.UpdateTournament(ctx, tx, tournament); err != nil {
		return fmt.Errorf("failed to update tournament totals: %w", err)
	}
	return nil
}
