package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seanwh01/football-player-trivia-sub000/internal/domain"
)

func TestRoundTrip(t *testing.T) {
	msgs := []Message{
		GameStart{Settings: domain.GameSettings{
			Positions:     []string{"QB", "WR"},
			Teams:         []string{"KC"},
			YearStart:     2022,
			YearEnd:       2024,
			QuestionCount: 5,
			TimeLimitSec:  30,
			HintsEnabled:  true,
			RankLimit:     3,
		}},
		Question{Round: 2, Question: domain.Question{
			ID:       "q-1",
			Position: "QB",
			Team:     "KC",
			Year:     2023,
			Prompt:   "Who led the KC in offensive snaps at QB in 2023?",
		}},
		RawAnswer{Text: "Patrick Mahomes", ResponseMillis: 4200},
		ValidationResult{Correct: true, Message: "Correct: Patrick Mahomes", Points: 9},
		HintRequest{Tier: domain.HintObvious},
		HintResponse{Text: "Initials P.M.", Tier: domain.HintObvious},
		NextQuestion{},
		Leaderboard{Board: domain.Leaderboard{
			Round: 2,
			Entries: []domain.LeaderboardEntry{
				{PeerID: "a", DisplayName: "Ann", Score: 17, ResponseTime: 3 * time.Second},
				{PeerID: "b", DisplayName: "Bob", Score: 12, ResponseTime: 9 * time.Second},
			},
		}},
		GameEnd{},
	}

	for _, msg := range msgs {
		t.Run(string(msg.Kind()), func(t *testing.T) {
			data, err := Encode(msg)
			require.NoError(t, err)

			decoded, err := Decode(data)
			require.NoError(t, err)
			require.Equal(t, msg, decoded)
		})
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	data, err := json.Marshal(map[string]any{"v": Version, "kind": "selfDestruct"})
	require.NoError(t, err)

	_, err = Decode(data)
	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	require.Equal(t, Kind("selfDestruct"), decodeErr.Kind)
}

func TestDecodeVersionMismatch(t *testing.T) {
	data, err := json.Marshal(map[string]any{"v": Version + 1, "kind": "gameEnd"})
	require.NoError(t, err)

	_, err = Decode(data)
	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	require.Contains(t, decodeErr.Reason, "unsupported version")
}

func TestDecodeMalformed(t *testing.T) {
	for _, data := range [][]byte{
		[]byte("not json at all"),
		[]byte(`{"v":1,"kind":"rawAnswer","payload":{"responseMillis":"nope"}}`),
	} {
		_, err := Decode(data)
		var decodeErr *DecodeError
		require.True(t, errors.As(err, &decodeErr), "input %q", data)
	}
}
