// Package finance holds the prize-pool arithmetic shared by entry, late
// entry and rebuy handling.
package finance

import "math"

// Round2 rounds to currency precision (2 decimals, half up).
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Split divides a collected total into the organizer's cut and the prize
// pool according to the organizer percentage.
func Split(total, organizerPercent float64) (organizerAmount, prizePool float64) {
	organizerAmount = Round2(total * organizerPercent / 100)
	prizePool = Round2(total - organizerAmount)
	return organizerAmount, prizePool
}
