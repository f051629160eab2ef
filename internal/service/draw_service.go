package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/knockout-app/knockout/internal/bracket"
	"github.com/knockout-app/knockout/internal/shuffle"
	"github.com/knockout-app/knockout/internal/store"
)

// DrawService seeds a bracket from a player list. The draw is a one-time
// operation: it fixes the seed, creates every main-bracket round and the
// first-round matches, and moves the tournament to running.
type DrawService struct {
	db    *sqlx.DB
	store *store.TournamentStore

	// newSeed produces the draw seed. Production uses a fresh UUID per
	// draw; tests inject a fixed value to make the shuffle reproducible.
	newSeed func() string
}

func NewDrawService(db *sqlx.DB, store *store.TournamentStore) *DrawService {
	return &DrawService{db: db, store: store, newSeed: uuid.NewString}
}

type DrawResult struct {
	Seed              string
	TotalRounds       int
	FirstRoundMatches []bracket.Match
}

func (s *DrawService) GenerateDraw(ctx context.Context, tournamentID, organizerID uuid.UUID, playerIDs []uuid.UUID) (*DrawResult, error) {
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
		return nil, Forbidden("only the organizer can generate the draw")
	}
	if tournament.Status != bracket.TournamentOpen {
		return nil, Conflict("draw requires an open tournament, current status is %s", tournament.Status)
	}
	if tournament.DrawSeed != nil {
		return nil, Conflict("draw has already been generated for this tournament")
	}
	if len(playerIDs) < 2 {
		return nil, InvalidInput("at least 2 players are required for a draw, got %d", len(playerIDs))
	}

	if err := s.checkPlayersExist(ctx, tx, tournamentID, playerIDs); err != nil {
		return nil, err
	}

	seed := s.newSeed()
	shuffled := shuffle.Shuffle(playerIDs, seed)
	now := time.Now().UTC()

	n := len(shuffled)
	totalRounds := bracket.TotalRounds(n)

	rounds := make([]bracket.Round, 0, totalRounds)
	for number := 1; number <= totalRounds; number++ {
		rounds = append(rounds, bracket.Round{
			ID:           uuid.New(),
			TournamentID: tournamentID,
			RoundNumber:  number,
		})
	}
	if err := s.store.CreateRounds(ctx, tx, rounds); err != nil {
		return nil, fmt.Errorf("failed to create rounds: %w", err)
	}
	firstRound := rounds[0]

	// Consecutive shuffled players pair up; the shuffled tail gets one
	// auto-resolved bye each so the bracket fills to a power of two.
	normal := bracket.NormalMatchCount(n)
	matches := make([]bracket.Match, 0, normal+bracket.ByeCount(n))
	for i := 0; i < normal; i++ {
		p1, p2 := shuffled[2*i], shuffled[2*i+1]
		matches = append(matches, bracket.Match{
			ID:                uuid.New(),
			TournamentID:      tournamentID,
			RoundID:           firstRound.ID,
			PositionInBracket: i + 1,
			Player1ID:         &p1,
			Player2ID:         &p2,
		})
	}
	for i := normal * 2; i < n; i++ {
		p := shuffled[i]
		matches = append(matches, bracket.Match{
			ID:                uuid.New(),
			TournamentID:      tournamentID,
			RoundID:           firstRound.ID,
			PositionInBracket: len(matches) + 1,
			Player1ID:         &p,
			WinnerID:          &p,
			IsBye:             true,
			FinishedAt:        &now,
		})
	}
	if err := s.store.CreateMatches(ctx, tx, matches); err != nil {
		return nil, fmt.Errorf("failed to create first-round matches: %w", err)
	}

	tournament.DrawSeed = &seed
	tournament.TotalRounds = totalRounds
	tournament.Status = bracket.TournamentRunning
	tournament.StartedAt = &now
	if err := s.store.UpdateTournament(ctx, tx, tournament); err != nil {
		return nil, fmt.Errorf("failed to update tournament: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &DrawResult{
		Seed:              seed,
		TotalRounds:       totalRounds,
		FirstRoundMatches: matches,
	}, nil
}

func (s *DrawService) checkPlayersExist(ctx context.Context, ext sqlx.ExtContext, tournamentID uuid.UUID, playerIDs []uuid.UUID) error {
	players, err := s.store.GetPlayersByIDs(ctx, ext, playerIDs)
	if err != nil {
		return fmt.Errorf("failed to load players: %w", err)
	}

	known := make(map[uuid.UUID]bool, len(players))
	for _, p := range players {
		if p.TournamentID == tournamentID {
			known[p.ID] = true
		}
	}

	var missing []string
	seen := make(map[uuid.UUID]bool, len(playerIDs))
	for _, id := range playerIDs {
		if seen[id] {
			return InvalidInput("duplicate player id in draw: %s", id)
		}
		seen[id] = true
		if !known[id] {
			missing = append(missing, id.String())
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return InvalidInput("unknown player ids: %s", strings.Join(missing, ", "))
	}
	return nil
}
