package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knockout-app/knockout/internal/bracket"
	"github.com/knockout-app/knockout/internal/utils"
)

func TestRecordResult_EndToEndEightPlayers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tournament, _, _ := env.createDrawnTournament(t, 8, CreateTournamentInput{})

	round1 := env.mainRound(t, tournament.ID, 1)
	round1Matches := env.roundMatches(t, round1.ID)
	require.Len(t, round1Matches, 4)

	// Decide the first three matches: round must stay incomplete.
	for _, m := range round1Matches[:3] {
		outcome, err := env.matches.RecordResult(ctx, tournament.ID, m.ID, env.organizerID, ResultInput{WinnerID: *m.Player1ID})
		require.NoError(t, err)
		assert.False(t, outcome.RoundComplete)
		assert.False(t, outcome.TournamentFinished)

		round2Matches := env.roundMatches(t, env.mainRound(t, tournament.ID, 2).ID)
		assert.Empty(t, round2Matches, "round 2 must not be generated before round 1 completes")
	}

	// Fourth result completes the round and generates round 2 pairings.
	last := round1Matches[3]
	outcome, err := env.matches.RecordResult(ctx, tournament.ID, last.ID, env.organizerID, ResultInput{WinnerID: *last.Player1ID})
	require.NoError(t, err)
	assert.True(t, outcome.RoundComplete)
	assert.False(t, outcome.TournamentFinished)

	round2Matches := env.roundMatches(t, env.mainRound(t, tournament.ID, 2).ID)
	require.Len(t, round2Matches, 2)
	for i, m := range round2Matches {
		assert.Equal(t, i+1, m.PositionInBracket)
		assert.False(t, m.IsBye)
		// Consecutive winners pair up in bracket-position order.
		assert.Equal(t, *round1Matches[2*i].Player1ID, *m.Player1ID)
		assert.Equal(t, *round1Matches[2*i+1].Player1ID, *m.Player2ID)
	}

	outcome = env.decideRound(t, tournament.ID, round2Matches[0].RoundID)
	require.NotNil(t, outcome)
	assert.True(t, outcome.RoundComplete)
	assert.False(t, outcome.TournamentFinished)

	finalMatches := env.roundMatches(t, env.mainRound(t, tournament.ID, 3).ID)
	require.Len(t, finalMatches, 1)
	final := finalMatches[0]
	assert.Equal(t, *round2Matches[0].Player1ID, *final.Player1ID)
	assert.Equal(t, *round2Matches[1].Player1ID, *final.Player2ID)

	outcome, err = env.matches.RecordResult(ctx, tournament.ID, final.ID, env.organizerID, ResultInput{WinnerID: *final.Player2ID})
	require.NoError(t, err)
	assert.True(t, outcome.RoundComplete)
	assert.True(t, outcome.TournamentFinished)

	finished := env.getTournament(t, tournament.ID)
	assert.Equal(t, bracket.TournamentFinished, finished.Status)
	assert.NotNil(t, finished.FinishedAt)

	data, err := env.tournaments.GetTournamentData(ctx, tournament.ID)
	require.NoError(t, err)
	require.NotNil(t, data.ChampionID)
	assert.Equal(t, *final.Player2ID, *data.ChampionID)
}

func TestRecordResult_OddWinnerCountGetsTrailingBye(t *testing.T) {
	env := newTestEnv(t)

	// 6 players: round 1 has 2 paired matches and 2 byes (4 slots).
	// Completing both paired matches yields 4 advancing players.
	tournament, _, result := env.createDrawnTournament(t, 6, CreateTournamentInput{})
	require.Len(t, result.FirstRoundMatches, 4)

	round1 := env.mainRound(t, tournament.ID, 1)
	env.decideRound(t, tournament.ID, round1.ID)

	round2Matches := env.roundMatches(t, env.mainRound(t, tournament.ID, 2).ID)
	require.Len(t, round2Matches, 2)
	for _, m := range round2Matches {
		assert.False(t, m.IsBye)
	}
}

func TestBuildNextRoundMatches(t *testing.T) {
	tournamentID, roundID := uuid.New(), uuid.New()
	now := time.Now().UTC()
	w := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()}

	t.Run("four winners pair into two matches", func(t *testing.T) {
		matches := buildNextRoundMatches(tournamentID, roundID, w[:4], now)
		require.Len(t, matches, 2)
		for i, m := range matches {
			assert.Equal(t, i+1, m.PositionInBracket)
			assert.False(t, m.IsBye)
			assert.Equal(t, w[2*i], *m.Player1ID)
			assert.Equal(t, w[2*i+1], *m.Player2ID)
			assert.Nil(t, m.WinnerID)
		}
	})

	t.Run("three winners leave the last one a bye", func(t *testing.T) {
		matches := buildNextRoundMatches(tournamentID, roundID, w[:3], now)
		require.Len(t, matches, 2)

		assert.Equal(t, w[0], *matches[0].Player1ID)
		assert.Equal(t, w[1], *matches[0].Player2ID)

		bye := matches[1]
		assert.True(t, bye.IsBye)
		assert.Equal(t, 2, bye.PositionInBracket)
		assert.Equal(t, w[2], *bye.Player1ID)
		assert.Nil(t, bye.Player2ID)
		require.NotNil(t, bye.WinnerID)
		assert.Equal(t, w[2], *bye.WinnerID)
		assert.NotNil(t, bye.FinishedAt)
	})

	t.Run("five winners produce three matches with one bye", func(t *testing.T) {
		matches := buildNextRoundMatches(tournamentID, roundID, w, now)
		require.Len(t, matches, 3)

		byes := 0
		for _, m := range matches {
			if m.IsBye {
				byes++
				assert.Equal(t, w[4], *m.WinnerID, "the last winner takes the bye")
			}
		}
		assert.Equal(t, 1, byes)
	})
}

func TestRecordResult_ScoreValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tournament, _, _ := env.createDrawnTournament(t, 4, CreateTournamentInput{})
	round1 := env.mainRound(t, tournament.ID, 1)
	match := env.roundMatches(t, round1.ID)[0]
	winner, loser := *match.Player1ID, *match.Player2ID

	testCases := []struct {
		name    string
		input   ResultInput
		wantErr bool
	}{
		{
			name:    "negative score rejected",
			input:   ResultInput{WinnerID: winner, Player1Score: utils.Ptr(-1), Player2Score: utils.Ptr(2)},
			wantErr: true,
		},
		{
			name:    "equal scores rejected",
			input:   ResultInput{WinnerID: winner, Player1Score: utils.Ptr(3), Player2Score: utils.Ptr(3)},
			wantErr: true,
		},
		{
			name:    "winner must hold the higher score",
			input:   ResultInput{WinnerID: winner, Player1Score: utils.Ptr(1), Player2Score: utils.Ptr(5)},
			wantErr: true,
		},
		{
			name:    "single-sided score rejected",
			input:   ResultInput{WinnerID: winner, Player1Score: utils.Ptr(5)},
			wantErr: true,
		},
		{
			name:    "non-participant winner rejected",
			input:   ResultInput{WinnerID: uuid.New()},
			wantErr: true,
		},
		{
			name:  "scores are optional",
			input: ResultInput{WinnerID: loser},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.matches.RecordResult(ctx, tournament.ID, match.ID, env.organizerID, tc.input)
			if tc.wantErr {
				assert.Equal(t, KindInvalidInput, kindOf(t, err))
				return
			}
			require.NoError(t, err)
		})
	}

	t.Run("already decided conflicts", func(t *testing.T) {
		_, err := env.matches.RecordResult(ctx, tournament.ID, match.ID, env.organizerID, ResultInput{WinnerID: winner})
		assert.Equal(t, KindConflict, kindOf(t, err))
	})
}

func TestRecordResult_Preconditions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tournament, _, result := env.createDrawnTournament(t, 7, CreateTournamentInput{})

	var normalMatch, byeMatch *bracket.Match
	for i := range result.FirstRoundMatches {
		m := &result.FirstRoundMatches[i]
		if m.IsBye {
			byeMatch = m
		} else if normalMatch == nil {
			normalMatch = m
		}
	}
	require.NotNil(t, normalMatch)
	require.NotNil(t, byeMatch)

	t.Run("match not found", func(t *testing.T) {
		_, err := env.matches.RecordResult(ctx, tournament.ID, uuid.New(), env.organizerID, ResultInput{WinnerID: uuid.New()})
		assert.Equal(t, KindNotFound, kindOf(t, err))
	})

	t.Run("match of another tournament is not found", func(t *testing.T) {
		_, _, otherResult := env.createDrawnTournament(t, 4, CreateTournamentInput{Name: "Other"})
		foreign := otherResult.FirstRoundMatches[0]
		_, err := env.matches.RecordResult(ctx, tournament.ID, foreign.ID, env.organizerID, ResultInput{WinnerID: *foreign.Player1ID})
		assert.Equal(t, KindNotFound, kindOf(t, err))
	})

	t.Run("not the organizer", func(t *testing.T) {
		_, err := env.matches.RecordResult(ctx, tournament.ID, normalMatch.ID, uuid.New(), ResultInput{WinnerID: *normalMatch.Player1ID})
		assert.Equal(t, KindForbidden, kindOf(t, err))
	})

	t.Run("bye matches are immutable", func(t *testing.T) {
		_, err := env.matches.RecordResult(ctx, tournament.ID, byeMatch.ID, env.organizerID, ResultInput{WinnerID: *byeMatch.Player1ID})
		assert.Equal(t, KindConflict, kindOf(t, err))
	})
}

func TestRecordResult_RepechageRoundIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tournament, players, _ := env.createDrawnTournament(t, 4, CreateTournamentInput{})

	// A repechage round numbered alongside main round 2. One paired match
	// and one unfilled slot awaiting a future pairing.
	repechage := env.createRepechageRound(t, tournament.ID, 2)
	paired := bracket.Match{
		ID:                uuid.New(),
		TournamentID:      tournament.ID,
		RoundID:           repechage.ID,
		PositionInBracket: 1,
		Player1ID:         &players[0].ID,
		Player2ID:         &players[1].ID,
	}
	unfilled := bracket.Match{
		ID:                uuid.New(),
		TournamentID:      tournament.ID,
		RoundID:           repechage.ID,
		PositionInBracket: 2,
		Player1ID:         &players[2].ID,
	}
	require.NoError(t, env.store.CreateMatches(ctx, env.db, []bracket.Match{paired, unfilled}))

	outcome, err := env.matches.RecordResult(ctx, tournament.ID, paired.ID, env.organizerID, ResultInput{WinnerID: players[0].ID})
	require.NoError(t, err)

	// The unfilled slot has no second player and must not block completion,
	// and completing a repechage round never finishes the tournament.
	assert.True(t, outcome.RoundComplete)
	assert.False(t, outcome.TournamentFinished)

	assert.Equal(t, bracket.TournamentRunning, env.getTournament(t, tournament.ID).Status)

	// No next round may be generated out of a repechage completion: a
	// 4-player bracket has exactly two main rounds, and that must hold.
	_, err = env.store.GetMainRoundByNumber(ctx, env.db, tournament.ID, 3)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRecordResult_NextRoundLookupSkipsRepechage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tournament, players, _ := env.createDrawnTournament(t, 4, CreateTournamentInput{})

	// A repechage round numbered 2 sits next to the main bracket's round 2.
	repechage := env.createRepechageRound(t, tournament.ID, 2)
	decoy := bracket.Match{
		ID:                uuid.New(),
		TournamentID:      tournament.ID,
		RoundID:           repechage.ID,
		PositionInBracket: 1,
		Player1ID:         &players[0].ID,
		Player2ID:         &players[1].ID,
	}
	require.NoError(t, env.store.CreateMatches(ctx, env.db, []bracket.Match{decoy}))

	round1 := env.mainRound(t, tournament.ID, 1)
	outcome := env.decideRound(t, tournament.ID, round1.ID)
	require.NotNil(t, outcome)
	assert.True(t, outcome.RoundComplete)

	// Winners land in the main round 2, not in the repechage round.
	mainRound2 := env.mainRound(t, tournament.ID, 2)
	assert.False(t, mainRound2.IsRepechage)
	assert.Len(t, env.roundMatches(t, mainRound2.ID), 1)
	assert.Len(t, env.roundMatches(t, repechage.ID), 1, "repechage round must keep only its own match")
}

func TestRecordResult_FinishingFinalRound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tournament, _, result := env.createDrawnTournament(t, 2, CreateTournamentInput{})
	require.Len(t, result.FirstRoundMatches, 1)
	final := result.FirstRoundMatches[0]

	outcome, err := env.matches.RecordResult(ctx, tournament.ID, final.ID, env.organizerID, ResultInput{WinnerID: *final.Player1ID})
	require.NoError(t, err)
	assert.True(t, outcome.RoundComplete)
	assert.True(t, outcome.TournamentFinished)
	assert.Equal(t, bracket.TournamentFinished, env.getTournament(t, tournament.ID).Status)

	t.Run("no result possible on a finished tournament", func(t *testing.T) {
		_, err := env.matches.RecordResult(ctx, tournament.ID, final.ID, env.organizerID, ResultInput{WinnerID: *final.Player1ID})
		assert.Equal(t, KindConflict, kindOf(t, err))
	})
}
