package bracket

import (
	"time"

	"github.com/google/uuid"
)

type Match struct {
	ID           uuid.UUID `db:"id"`
	TournamentID uuid.UUID `db:"tournament_id"`
	RoundID      uuid.UUID `db:"round_id"`

	// PositionInBracket is 1-based and unique within the round. Consecutive
	// positions feed the same slot of the next round via ceil(position/2).
	PositionInBracket int `db:"position_in_bracket"`

	Player1ID *uuid.UUID `db:"player1_id"`
	Player2ID *uuid.UUID `db:"player2_id"`

	WinnerID     *uuid.UUID `db:"winner_id"`
	Player1Score *int       `db:"player1_score"`
	Player2Score *int       `db:"player2_score"`

	// A bye match has player2 empty and the winner set at creation time.
	// It is never recorded manually.
	IsBye bool `db:"is_bye"`

	FinishedAt *time.Time `db:"finished_at"`
	CreatedAt  time.Time  `db:"created_at"`
}

func (m *Match) Decided() bool {
	return m.WinnerID != nil
}

// HasPlayer reports whether id occupies either slot of the match.
func (m *Match) HasPlayer(id uuid.UUID) bool {
	return (m.Player1ID != nil && *m.Player1ID == id) ||
		(m.Player2ID != nil && *m.Player2ID == id)
}
