package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/knockout-app/knockout/internal/bracket"
	"github.com/knockout-app/knockout/internal/finance"
	"github.com/knockout-app/knockout/internal/store"
)

type TournamentService struct {
	db    *sqlx.DB
	store *store.TournamentStore
}

func NewTournamentService(db *sqlx.DB, store *store.TournamentStore) *TournamentService {
	return &TournamentService{db: db, store: store}
}

type CreateTournamentInput struct {
	Name         string
	EntryFee     float64
	LateEntryFee *float64
	RebuyFee     *float64

	OrganizerPercent float64
	ChampionPercent  float64
	RunnerUpPercent  float64
	ThirdPercent     float64
	FourthPercent    float64

	AllowLateEntry      bool
	LateEntryUntilRound int
	AllowRebuy          bool
	RebuyUntilRound     int
}

func (s *TournamentService) CreateTournament(ctx context.Context, organizerID uuid.UUID, in CreateTournamentInput) (*bracket.Tournament, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, InvalidInput("tournament name is required")
	}
	if in.EntryFee < 0 || (in.LateEntryFee != nil && *in.LateEntryFee < 0) || (in.RebuyFee != nil && *in.RebuyFee < 0) {
		return nil, InvalidInput("fees must be non-negative")
	}
	percents := []float64{in.OrganizerPercent, in.ChampionPercent, in.RunnerUpPercent, in.ThirdPercent, in.FourthPercent}
	for _, p := range percents {
		if p < 0 || p > 100 {
			return nil, InvalidInput("percentage splits must be between 0 and 100")
		}
	}

	tournament := &bracket.Tournament{
		ID:                  uuid.New(),
		OrganizerID:         organizerID,
		Name:                in.Name,
		Status:              bracket.TournamentOpen,
		EntryFee:            in.EntryFee,
		LateEntryFee:        in.LateEntryFee,
		RebuyFee:            in.RebuyFee,
		OrganizerPercent:    in.OrganizerPercent,
		ChampionPercent:     in.ChampionPercent,
		RunnerUpPercent:     in.RunnerUpPercent,
		ThirdPercent:        in.ThirdPercent,
		FourthPercent:       in.FourthPercent,
		AllowLateEntry:      in.AllowLateEntry,
		LateEntryUntilRound: in.LateEntryUntilRound,
		AllowRebuy:          in.AllowRebuy,
		RebuyUntilRound:     in.RebuyUntilRound,
	}
	if err := s.store.CreateTournament(ctx, s.db, tournament); err != nil {
		return nil, fmt.Errorf("failed to create tournament: %w", err)
	}
	return tournament, nil
}

// AddPlayers registers players into an open tournament, collecting the
// entry fee for each one.
func (s *TournamentService) AddPlayers(ctx context.Context, tournamentID, organizerID uuid.UUID, names []string) ([]bracket.Player, error) {
	if len(names) == 0 {
		return nil, InvalidInput("at least one player name is required")
	}

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
		return nil, Forbidden("only the organizer can register players")
	}
	if tournament.Status != bracket.TournamentOpen {
		return nil, Conflict("players can only be registered while the tournament is open, current status is %s", tournament.Status)
	}

	players := make([]bracket.Player, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, InvalidInput("player name is required")
		}
		players = append(players, bracket.Player{
			ID:           uuid.New(),
			TournamentID: tournamentID,
			Name:         name,
		})
	}
	if err := s.store.CreatePlayers(ctx, tx, players); err != nil {
		return nil, fmt.Errorf("failed to create players: %w", err)
	}

	tournament.TotalCollected = finance.Round2(tournament.TotalCollected + tournament.EntryFee*float64(len(players)))
	tournament.OrganizerAmount, tournament.PrizePool = finance.Split(tournament.TotalCollected, tournament.OrganizerPercent)
	if err := s.store.UpdateTournament(ctx, tx, tournament); err != nil {
		return nil, fmt.Errorf("failed to update tournament totals: %w", err)
	}

	return players, tx.Commit()
}

type TournamentData struct {
	Tournament *bracket.Tournament
	Rounds     []bracket.Round
	Matches    []bracket.Match
	Players    []bracket.Player
	ChampionID *uuid.UUID
}

// GetTournamentData is the public bracket view: a plain read of the
// tournament's state with the champion derived from the final round.
func (s *TournamentService) GetTournamentData(ctx context.Context, id uuid.UUID) (*TournamentData, error) {
	tournament, err := s.store.GetTournament(ctx, s.db, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("tournament %s not found", id)
	}
	if err != nil {
		return nil, err
	}

	rounds, err := s.store.GetRounds(ctx, id)
	if err != nil {
		return nil, err
	}
	matches, err := s.store.GetMatches(ctx, id)
	if err != nil {
		return nil, err
	}
	players, err := s.store.GetPlayers(ctx, id)
	if err != nil {
		return nil, err
	}

	data := &TournamentData{
		Tournament: tournament,
		Rounds:     rounds,
		Matches:    matches,
		Players:    players,
	}
	if tournament.Status == bracket.TournamentFinished {
		data.ChampionID = championID(tournament, rounds, matches)
	}
	return data, nil
}

func championID(t *bracket.Tournament, rounds []bracket.Round, matches []bracket.Match) *uuid.UUID {
	var finalRoundID uuid.UUID
	for _, r := range rounds {
		if !r.IsRepechage && r.RoundNumber == t.TotalRounds {
			finalRoundID = r.ID
			break
		}
	}
	for _, m := range matches {
		if m.RoundID == finalRoundID && m.WinnerID != nil {
			return m.WinnerID
		}
	}
	return nil
}

type PlayerStats struct {
	Player        bracket.Player
	MatchesPlayed int
	Wins          int
	Byes          int
}

type TournamentStats struct {
	TournamentID   uuid.UUID
	TotalMatches   int
	DecidedMatches int
	Players        []PlayerStats
}

// Statistics folds match data into per-player counters. Pure aggregation,
// no bracket invariants involved.
func (s *TournamentService) Statistics(ctx context.Context, id uuid.UUID) (*TournamentStats, error) {
	data, err := s.GetTournamentData(ctx, id)
	if err != nil {
		return nil, err
	}

	byPlayer := make(map[uuid.UUID]*PlayerStats, len(data.Players))
	stats := &TournamentStats{TournamentID: id}
	for _, p := range data.Players {
		byPlayer[p.ID] = &PlayerStats{Player: p}
	}

	for _, m := range data.Matches {
		stats.TotalMatches++
		if m.WinnerID == nil {
			continue
		}
		stats.DecidedMatches++

		if m.IsBye {
			if ps, ok := byPlayer[*m.WinnerID]; ok {
				ps.Byes++
			}
			continue
		}
		for _, pid := range []*uuid.UUID{m.Player1ID, m.Player2ID} {
			if pid == nil {
				continue
			}
			if ps, ok := byPlayer[*pid]; ok {
				ps.MatchesPlayed++
			}
		}
		if ps, ok := byPlayer[*m.WinnerID]; ok {
			ps.Wins++
		}
	}

	for _, p := range data.Players {
		stats.Players = append(stats.Players, *byPlayer[p.ID])
	}
	return stats, nil
}

func (s *TournamentService) GetTournamentsForOrganizer(ctx context.Context, organizerID uuid.UUID) ([]bracket.Tournament, error) {
	return s.store.GetTournamentsByOrganizer(ctx, organizerID)
}
