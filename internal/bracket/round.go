package bracket

import (
	"time"

	"github.com/google/uuid"
)

// Round groups the matches of one bracket level. Repechage rounds run as a
// parallel loser's bracket: they are excluded from main-bracket round
// numbering and never decide the champion.
type Round struct {
	ID           uuid.UUID `db:"id"`
	TournamentID uuid.UUID `db:"tournament_id"`
	RoundNumber  int       `db:"round_number"`
	IsRepechage  bool      `db:"is_repechage"`
	CreatedAt    time.Time `db:"created_at"`
}
