package service

import (
	"context"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/knockout-app/knockout/internal/bracket"
	"github.com/knockout-app/knockout/internal/store"
)

// setupTestDB creates an in-memory SQLite database and applies migrations.
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_fk=1"
	database, err := sqlx.Connect("sqlite3", dsn)
	require.NoError(t, err, "Failed to connect to in-memory DB")

	// One open connection, or the shared-cache memory DB disappears
	// between pooled connections.
	database.SetMaxOpenConns(1)

	driver, err := sqlite3.WithInstance(database.DB, &sqlite3.Config{})
	require.NoError(t, err, "Failed to create migrate driver instance")

	m, err := migrate.NewWithDatabaseInstance(
		"file://../../migrations",
		"sqlite3",
		driver,
	)
	require.NoError(t, err, "Failed to create migrate instance")

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		require.NoError(t, err, "Failed to apply migrations")
	}

	return database
}

type testEnv struct {
	db          *sqlx.DB
	store       *store.TournamentStore
	tournaments *TournamentService
	draws       *DrawService
	matches     *MatchService
	roster      *RosterService
	organizerID uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	t.Cleanup(func() { db.Close() })

	organizerID := uuid.New()
	_, err := db.Exec("INSERT INTO users (id, email, username) VALUES (?, ?, ?)",
		organizerID, "organizer@example.com", "Organizer")
	require.NoError(t, err)

	tournamentStore := store.NewTournamentStore(db)
	env := &testEnv{
		db:          db,
		store:       tournamentStore,
		tournaments: NewTournamentService(db, tournamentStore),
		draws:       NewDrawService(db, tournamentStore),
		matches:     NewMatchService(db, tournamentStore),
		roster:      NewRosterService(db, tournamentStore),
		organizerID: organizerID,
	}
	env.draws.newSeed = func() string { return "test-seed" }
	return env
}

func (e *testEnv) createTournament(t *testing.T, in CreateTournamentInput) *bracket.Tournament {
	t.Helper()
	if in.Name == "" {
		in.Name = "Test Tournament"
	}
	tournament, err := e.tournaments.CreateTournament(context.Background(), e.organizerID, in)
	require.NoError(t, err)
	return tournament
}

// createDrawnTournament runs the full setup path: tournament, n registered
// players, draw.
func (e *testEnv) createDrawnTournament(t *testing.T, n int, in CreateTournamentInput) (*bracket.Tournament, []bracket.Player, *DrawResult) {
	t.Helper()
	ctx := context.Background()

	tournament := e.createTournament(t, in)

	names := make([]string, n)
	for i := range names {
		names[i] = "Player " + string(rune('A'+i))
	}
	players, err := e.tournaments.AddPlayers(ctx, tournament.ID, e.organizerID, names)
	require.NoError(t, err)

	ids := make([]uuid.UUID, len(players))
	for i, p := range players {
		ids[i] = p.ID
	}
	result, err := e.draws.GenerateDraw(ctx, tournament.ID, e.organizerID, ids)
	require.NoError(t, err)

	return tournament, players, result
}

func (e *testEnv) getTournament(t *testing.T, id uuid.UUID) *bracket.Tournament {
	t.Helper()
	tournament, err := e.store.GetTournament(context.Background(), e.db, id)
	require.NoError(t, err)
	return tournament
}

func (e *testEnv) getMatch(t *testing.T, id uuid.UUID) *bracket.Match {
	t.Helper()
	match, err := e.store.GetMatch(context.Background(), e.db, id)
	require.NoError(t, err)
	return match
}

func (e *testEnv) mainRound(t *testing.T, tournamentID uuid.UUID, number int) *bracket.Round {
	t.Helper()
	round, err := e.store.GetMainRoundByNumber(context.Background(), e.db, tournamentID, number)
	require.NoError(t, err)
	return round
}

func (e *testEnv) roundMatches(t *testing.T, roundID uuid.UUID) []bracket.Match {
	t.Helper()
	matches, err := e.store.GetMatchesByRound(context.Background(), e.db, roundID)
	require.NoError(t, err)
	return matches
}

// decideRound records a result for every pending paired match of the round,
// always picking player 1 as winner, and returns the last outcome.
func (e *testEnv) decideRound(t *testing.T, tournamentID, roundID uuid.UUID) *ResultOutcome {
	t.Helper()
	ctx := context.Background()

	var last *ResultOutcome
	for _, m := range e.roundMatches(t, roundID) {
		if m.Decided() || m.Player2ID == nil {
			continue
		}
		outcome, err := e.matches.RecordResult(ctx, tournamentID, m.ID, e.organizerID, ResultInput{WinnerID: *m.Player1ID})
		require.NoError(t, err)
		last = outcome
	}
	return last
}

func (e *testEnv) createRepechageRound(t *testing.T, tournamentID uuid.UUID, number int) *bracket.Round {
	t.Helper()
	round := bracket.Round{
		ID:           uuid.New(),
		TournamentID: tournamentID,
		RoundNumber:  number,
		IsRepechage:  true,
	}
	require.NoError(t, e.store.CreateRounds(context.Background(), e.db, []bracket.Round{round}))
	return &round
}

func kindOf(t *testing.T, err error) Kind {
	t.Helper()
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	return svcErr.Kind
}
