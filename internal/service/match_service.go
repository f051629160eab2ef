package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/knockout-app/knockout/internal/bracket"
	"github.com/knockout-app/knockout/internal/store"
)

// MatchService records match results and drives bracket advancement: winner
// pairing into the next round, bye insertion on odd winner counts, and
// tournament completion on the final main-bracket result.
type MatchService struct {
	db    *sqlx.DB
	store *store.TournamentStore
}

func NewMatchService(db *sqlx.DB, store *store.TournamentStore) *MatchService {
	return &MatchService{db: db, store: store}
}

type ResultInput struct {
	WinnerID     uuid.UUID
	Player1Score *int
	Player2Score *int
}

type ResultOutcome struct {
	WinnerID           uuid.UUID
	RoundComplete      bool
	TournamentFinished bool
}

func (s *MatchService) RecordResult(ctx context.Context, tournamentID, matchID, organizerID uuid.UUID, in ResultInput) (*ResultOutcome, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	match, err := s.store.GetMatch(ctx, tx, matchID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("match %s not found", matchID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	if match.TournamentID != tournamentID {
		return nil, NotFound("match %s not found in tournament %s", matchID, tournamentID)
	}

	tournament, err := s.store.GetTournament(ctx, tx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tournament: %w", err)
	}
	if tournament.OrganizerID != organizerID {
		return nil, Forbidden("only the organizer can record results")
	}
	if tournament.Status != bracket.TournamentRunning {
		return nil, Conflict("results can only be recorded while the tournament is running, current status is %s", tournament.Status)
	}
	if match.IsBye {
		return nil, Conflict("bye matches are resolved automatically and cannot be recorded")
	}
	if match.Decided() {
		return nil, Conflict("match already decided")
	}
	if match.Player2ID == nil {
		return nil, Conflict("match has no second player and cannot be decided manually")
	}
	if !match.HasPlayer(in.WinnerID) {
		return nil, InvalidInput("winner %s is not a participant of this match", in.WinnerID)
	}
	if err := validateScores(match, in); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	match.WinnerID = &in.WinnerID
	match.Player1Score = in.Player1Score
	match.Player2Score = in.Player2Score
	match.FinishedAt = &now
	if err := s.store.UpdateMatch(ctx, tx, match); err != nil {
		return nil, fmt.Errorf("failed to update match: %w", err)
	}

	round, err := s.store.GetRound(ctx, tx, match.RoundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %w", err)
	}

	outcome := &ResultOutcome{WinnerID: in.WinnerID}

	// Unfilled slots (player2 still empty) have no participants yet and
	// must not count as unfinished when checking round completion.
	undecided, err := s.store.HasUndecidedSiblings(ctx, tx, round.ID, match.ID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to check round completion: %w", err)
	}
	outcome.RoundComplete = !undecided

	if round.IsRepechage {
		// Repechage completion is terminal here: it never generates a
		// next round and never finishes the tournament.
		return outcome, tx.Commit()
	}

	if outcome.RoundComplete {
		if round.RoundNumber >= tournament.TotalRounds {
			tournament.Status = bracket.TournamentFinished
			tournament.FinishedAt = &now
			if err := s.store.UpdateTournament(ctx, tx, tournament); err != nil {
				return nil, fmt.Errorf("failed to finish tournament: %w", err)
			}
			outcome.TournamentFinished = true
		} else if err := s.advanceToNextRound(ctx, tx, tournament, round, now); err != nil {
			return nil, err
		}
	}

	return outcome, tx.Commit()
}

// advanceToNextRound pairs the completed round's winners into the next
// main-bracket round. Repechage rounds share the number space, so the lookup
// must filter them out or a loser's-bracket round could be mistaken for the
// main bracket's continuation.
func (s *MatchService) advanceToNextRound(ctx context.Context, tx *sqlx.Tx, tournament *bracket.Tournament, completed *bracket.Round, now time.Time) error {
	next, err := s.store.GetMainRoundByNumber(ctx, tx, tournament.ID, completed.RoundNumber+1)
	if errors.Is(err, sql.ErrNoRows) {
		next = &bracket.Round{
			ID:           uuid.New(),
			TournamentID: tournament.ID,
			RoundNumber:  completed.RoundNumber + 1,
		}
		if err := s.store.CreateRounds(ctx, tx, []bracket.Round{*next}); err != nil {
			return fmt.Errorf("failed to create next round: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to look up next round: %w", err)
	}

	existing, err := s.store.GetMatchesByRound(ctx, tx, next.ID)
	if err != nil {
		return fmt.Errorf("failed to load next-round matches: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	decided, err := s.store.GetMatchesByRound(ctx, tx, completed.ID)
	if err != nil {
		return fmt.Errorf("failed to load completed round: %w", err)
	}

	winners := make([]uuid.UUID, 0, len(decided))
	for _, m := range decided {
		if m.WinnerID == nil {
			// Unfilled slot, nothing to advance from it.
			continue
		}
		winners = append(winners, *m.WinnerID)
	}

	matches := buildNextRoundMatches(tournament.ID, next.ID, winners, now)
	if err := s.store.CreateMatches(ctx, tx, matches); err != nil {
		// Two concurrent completions racing to create the round land
		// here: the unique index on (round_id, position_in_bracket)
		// fails the second one and the transaction rolls back whole.
		return fmt.Errorf("failed to create next-round matches: %w", err)
	}
	return nil
}

// buildNextRoundMatches pairs consecutive winners, ordered by the completed
// round's bracket positions. An odd winner count leaves the last winner
// unpaired; they advance through an auto-resolved bye.
func buildNextRoundMatches(tournamentID, roundID uuid.UUID, winners []uuid.UUID, now time.Time) []bracket.Match {
	matches := make([]bracket.Match, 0, (len(winners)+1)/2)
	for i := 0; i+1 < len(winners); i += 2 {
		p1, p2 := winners[i], winners[i+1]
		matches = append(matches, bracket.Match{
			ID:                uuid.New(),
			TournamentID:      tournamentID,
			RoundID:           roundID,
			PositionInBracket: i/2 + 1,
			Player1ID:         &p1,
			Player2ID:         &p2,
		})
	}
	if len(winners)%2 != 0 {
		p := winners[len(winners)-1]
		matches = append(matches, bracket.Match{
			ID:                uuid.New(),
			TournamentID:      tournamentID,
			RoundID:           roundID,
			PositionInBracket: len(winners)/2 + 1,
			Player1ID:         &p,
			WinnerID:          &p,
			IsBye:             true,
			FinishedAt:        &now,
		})
	}
	return matches
}

func validateScores(match *bracket.Match, in ResultInput) error {
	if in.Player1Score == nil && in.Player2Score == nil {
		return nil
	}
	if in.Player1Score == nil || in.Player2Score == nil {
		return InvalidInput("both scores must be provided together")
	}

	s1, s2 := *in.Player1Score, *in.Player2Score
	if s1 < 0 || s2 < 0 {
		return InvalidInput("scores must be non-negative")
	}
	if s1 == s2 {
		return InvalidInput("drawn scores are not allowed")
	}

	higher := *match.Player1ID
	if s2 > s1 {
		higher = *match.Player2ID
	}
	if higher != in.WinnerID {
		return InvalidInput("winner does not match the higher score")
	}
	return nil
}
