package bracket

import (
	"time"

	"github.com/google/uuid"
)

type Player struct {
	ID           uuid.UUID `db:"id"`
	TournamentID uuid.UUID `db:"tournament_id"`
	Name         string    `db:"name"`

	// IsRebuy flips to true once the player has used their single allowed
	// rebuy for the tournament.
	IsRebuy bool `db:"is_rebuy"`

	CreatedAt time.Time `db:"created_at"`
}
