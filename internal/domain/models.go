package domain

import "time"

// Role distinguishes the single session authority from everyone else.
type Role string

const (
	RoleHost   Role = "host"
	RoleClient Role = "client"
)

// ConnectionState tracks a participant's transport-level status.
type ConnectionState string

const (
	StateDiscovering  ConnectionState = "discovering"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
)

// Participant represents one device in a session.
type Participant struct {
	PeerID      string          `json:"peerId"`
	DisplayName string          `json:"displayName"`
	Role        Role            `json:"role"`
	State       ConnectionState `json:"state"`
}

// SnapSide selects which snap-count column ranks a player for a position.
type SnapSide string

const (
	SnapOffense SnapSide = "offense"
	SnapDefense SnapSide = "defense"
	SnapSpecial SnapSide = "st"
)

// GameSettings is fixed for a session's lifetime once the host starts a game.
type GameSettings struct {
	Positions     []string `json:"positions" yaml:"positions"`
	Teams         []string `json:"teams" yaml:"teams"`
	YearStart     int      `json:"yearStart" yaml:"yearStart"`
	YearEnd       int      `json:"yearEnd" yaml:"yearEnd"`
	QuestionCount int      `json:"questionCount" yaml:"questionCount"`
	TimeLimitSec  int      `json:"timeLimitSec" yaml:"timeLimitSec"`
	HintsEnabled  bool     `json:"hintsEnabled" yaml:"hintsEnabled"`
	RankLimit     int      `json:"rankLimit" yaml:"rankLimit"`
}

// TimeLimit returns the per-question limit as a duration.
func (s GameSettings) TimeLimit() time.Duration {
	return time.Duration(s.TimeLimitSec) * time.Second
}

// Years expands the configured inclusive season range.
func (s GameSettings) Years() []int {
	if s.YearEnd < s.YearStart {
		return []int{s.YearStart}
	}
	years := make([]int, 0, s.YearEnd-s.YearStart+1)
	for y := s.YearStart; y <= s.YearEnd; y++ {
		years = append(years, y)
	}
	return years
}

// Question is host-generated and broadcast verbatim; clients never build their own.
type Question struct {
	ID       string `json:"id"`
	Position string `json:"position"`
	Team     string `json:"team"`
	Year     int    `json:"year"`
	Prompt   string `json:"prompt"`
}

// PlayerRecord is one candidate correct answer from the player-data lookup.
type PlayerRecord struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// FullName joins first and last name with a single space.
func (p PlayerRecord) FullName() string {
	if p.FirstName == "" {
		return p.LastName
	}
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// PlayerFilter narrows the lookup to one (position, team, season) cell.
type PlayerFilter struct {
	Position string
	Team     string
	Season   int
	Side     SnapSide
	Limit    int
}

// AnswerSubmission is one participant's answer for the current round.
type AnswerSubmission struct {
	PeerID       string
	Text         string
	ResponseTime time.Duration
}

// Verdict is the host-authoritative outcome of validating one submission.
type Verdict struct {
	Correct bool   `json:"correct"`
	Message string `json:"message"`
	Points  int    `json:"points"`
}

// HintTier orders hints from vague to near-giveaway.
type HintTier string

const (
	HintGeneral HintTier = "general"
	HintObvious HintTier = "obvious"
)

// LeaderboardEntry is a snapshot-friendly view of one participant's standing.
type LeaderboardEntry struct {
	PeerID       string        `json:"peerId"`
	DisplayName  string        `json:"displayName"`
	Score        int           `json:"score"`
	ResponseTime time.Duration `json:"responseTime"`
}

// Leaderboard is the host's full-replacement scoreboard broadcast after each round.
type Leaderboard struct {
	Round   int                `json:"round"`
	Entries []LeaderboardEntry `json:"entries"`
	Final   bool               `json:"final"`
}

// SelfScore returns the host-declared score for the given peer, if present.
func (l Leaderboard) SelfScore(peerID string) (int, bool) {
	for _, e := range l.Entries {
		if e.PeerID == peerID {
			return e.Score, true
		}
	}
	return 0, false
}
