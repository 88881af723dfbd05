package game

import (
	"math"
	"time"
)

const (
	minPoints = 1
	maxPoints = 10
)

// Points maps response latency to the award for a correct answer: 10 for a
// near-instant response, scaling linearly down to 1 at the time limit. An
// answer exactly at the limit still earns the minimum. Incorrect and
// timed-out answers never reach this function; they score zero.
func Points(latency, limit time.Duration) int {
	if limit <= 0 {
		return minPoints
	}
	if latency < 0 {
		latency = 0
	}
	if latency > limit {
		latency = limit
	}
	frac := 1 - float64(latency)/float64(limit)
	return minPoints + int(math.Round(frac*float64(maxPoints-minPoints)))
}
