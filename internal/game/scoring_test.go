package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPoints(t *testing.T) {
	limit := 30 * time.Second

	tests := []struct {
		name    string
		latency time.Duration
		want    int
	}{
		{"instant", 0, 10},
		{"negative clamps to instant", -time.Second, 10},
		{"halfway", 15 * time.Second, 6},
		{"at the limit", limit, 1},
		{"past the limit clamps", limit + time.Minute, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Points(tt.latency, limit))
		})
	}
}

func TestPointsZeroLimit(t *testing.T) {
	assert.Equal(t, 1, Points(5*time.Second, 0))
}

func TestPointsMonotonic(t *testing.T) {
	limit := 30 * time.Second
	prev := Points(0, limit)
	for latency := time.Second; latency <= limit; latency += time.Second {
		p := Points(latency, limit)
		assert.LessOrEqual(t, p, prev, "latency %v", latency)
		assert.GreaterOrEqual(t, p, 1)
		assert.LessOrEqual(t, p, 10)
		prev = p
	}
}
