package bracket

// NextPowerOfTwo returns the smallest power of two >= n. Exact powers of two
// map to themselves.
func NextPowerOfTwo(n int) int {
	if n < 1 {
		return 0
	}
	size := 1
	for size < n {
		size <<= 1
	}
	return size
}

// ByeCount is the number of unfilled first-round slots for n players.
func ByeCount(n int) int {
	return NextPowerOfTwo(n) - n
}

// TotalRounds is the number of main-bracket rounds needed for n players.
func TotalRounds(n int) int {
	size := NextPowerOfTwo(n)
	rounds := 0
	for size > 1 {
		size >>= 1
		rounds++
	}
	return rounds
}

// FirstRoundSlots is the number of match slots in round one, byes included.
func FirstRoundSlots(n int) int {
	return NextPowerOfTwo(n) / 2
}

// NormalMatchCount is the number of fully paired first-round matches. The
// remaining players (indices >= NormalMatchCount*2 in the shuffled order)
// each receive an auto-resolved bye.
func NormalMatchCount(n int) int {
	return FirstRoundSlots(n) - ByeCount(n)
}
