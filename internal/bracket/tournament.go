package bracket

import (
	"time"

	"github.com/google/uuid"
)

type TournamentStatus string

const (
	TournamentDraft    TournamentStatus = "draft"
	TournamentOpen     TournamentStatus = "open"
	TournamentRunning  TournamentStatus = "running"
	TournamentFinished TournamentStatus = "finished"
)

type Tournament struct {
	ID          uuid.UUID        `db:"id"`
	OrganizerID uuid.UUID        `db:"organizer_id"`
	Name        string           `db:"name"`
	Status      TournamentStatus `db:"status"`

	// DrawSeed is set exactly once, when the draw runs. A non-nil value
	// marks the bracket as generated.
	DrawSeed    *string    `db:"draw_seed"`
	TotalRounds int        `db:"total_rounds"`
	StartedAt   *time.Time `db:"started_at"`
	FinishedAt  *time.Time `db:"finished_at"`

	EntryFee     float64  `db:"entry_fee"`
	LateEntryFee *float64 `db:"late_entry_fee"`
	RebuyFee     *float64 `db:"rebuy_fee"`

	OrganizerPercent float64 `db:"organizer_percent"`
	ChampionPercent  float64 `db:"champion_percent"`
	RunnerUpPercent  float64 `db:"runner_up_percent"`
	ThirdPercent     float64 `db:"third_percent"`
	FourthPercent    float64 `db:"fourth_percent"`

	TotalCollected  float64 `db:"total_collected"`
	PrizePool       float64 `db:"prize_pool"`
	OrganizerAmount float64 `db:"organizer_amount"`

	AllowLateEntry      bool `db:"allow_late_entry"`
	LateEntryUntilRound int  `db:"late_entry_until_round"`
	AllowRebuy          bool `db:"allow_rebuy"`
	RebuyUntilRound     int  `db:"rebuy_until_round"`

	CreatedAt time.Time `db:"created_at"`
}

// LateEntryAmount is the fee charged for a late entry, falling back to the
// base entry fee when no dedicated late fee is configured.
func (t *Tournament) LateEntryAmount() float64 {
	if t.LateEntryFee != nil {
		return *t.LateEntryFee
	}
	return t.EntryFee
}

func (t *Tournament) RebuyAmount() float64 {
	if t.RebuyFee != nil {
		return *t.RebuyFee
	}
	return t.EntryFee
}
