// Package protocol defines the wire message set exchanged between session
// peers. Every message is an envelope carrying a version, a kind tag and a
// kind-specific payload; decoding an unknown kind fails with a DecodeError
// instead of producing a partial message.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/seanwh01/football-player-trivia-sub000/internal/domain"
)

// Version is bumped on any incompatible change to the message set.
const Version = 1

// Kind tags each wire message.
type Kind string

const (
	KindGameStart        Kind = "gameStart"
	KindQuestion         Kind = "question"
	KindRawAnswer        Kind = "rawAnswer"
	KindValidationResult Kind = "validationResult"
	KindHintRequest      Kind = "hintRequest"
	KindHintResponse     Kind = "hintResponse"
	KindNextQuestion     Kind = "nextQuestion"
	KindLeaderboard      Kind = "leaderboard"
	KindGameEnd          Kind = "gameEnd"
)

// Message is the closed union of everything that may cross the wire.
type Message interface{ Kind() Kind }

// GameStart announces the session settings to every client. Host to clients.
type GameStart struct {
	Settings domain.GameSettings `json:"settings"`
}

// Question carries the host-generated prompt for a round. Host to clients.
type Question struct {
	Round    int             `json:"round"`
	Question domain.Question `json:"question"`
}

// RawAnswer is an unvalidated submission. Client to host only.
type RawAnswer struct {
	Text           string `json:"text"`
	ResponseMillis int64  `json:"responseMillis"`
}

// ValidationResult is the host's verdict on one submission. Host to client only.
type ValidationResult struct {
	Correct bool   `json:"correct"`
	Message string `json:"message"`
	Points  int    `json:"points"`
}

// HintRequest asks the host for a hint of the given tier. Client to host.
type HintRequest struct {
	Tier domain.HintTier `json:"tier"`
}

// HintResponse returns hint text for the active question. Host to client.
type HintResponse struct {
	Text string          `json:"text"`
	Tier domain.HintTier `json:"tier"`
}

// NextQuestion signals clients to leave the leaderboard view. Host to clients.
type NextQuestion struct{}

// Leaderboard is the authoritative scoreboard snapshot. Host to clients.
type Leaderboard struct {
	Board domain.Leaderboard `json:"board"`
}

// GameEnd marks the session terminal. Host to clients.
type GameEnd struct{}

func (GameStart) Kind() Kind        { return KindGameStart }
func (Question) Kind() Kind         { return KindQuestion }
func (RawAnswer) Kind() Kind        { return KindRawAnswer }
func (ValidationResult) Kind() Kind { return KindValidationResult }
func (HintRequest) Kind() Kind      { return KindHintRequest }
func (HintResponse) Kind() Kind     { return KindHintResponse }
func (NextQuestion) Kind() Kind     { return KindNextQuestion }
func (Leaderboard) Kind() Kind      { return KindLeaderboard }
func (GameEnd) Kind() Kind          { return KindGameEnd }

// DecodeError reports an undecodable or unknown wire message.
type DecodeError struct {
	Kind   Kind
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Kind == "" {
		return "protocol: decode failed: " + e.Reason
	}
	return fmt.Sprintf("protocol: decode %q failed: %s", e.Kind, e.Reason)
}

type envelope struct {
	Version int             `json:"v"`
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode serializes a message into its versioned envelope.
func Encode(msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %q: %w", msg.Kind(), err)
	}
	return json.Marshal(envelope{Version: Version, Kind: msg.Kind(), Payload: payload})
}

// Decode parses an envelope back into its typed message. Unknown kinds and
// malformed payloads fail with a *DecodeError; no partial message is returned.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &DecodeError{Reason: err.Error()}
	}
	if env.Version != Version {
		return nil, &DecodeError{Kind: env.Kind, Reason: fmt.Sprintf("unsupported version %d", env.Version)}
	}

	var msg Message
	switch env.Kind {
	case KindGameStart:
		msg = &GameStart{}
	case KindQuestion:
		msg = &Question{}
	case KindRawAnswer:
		msg = &RawAnswer{}
	case KindValidationResult:
		msg = &ValidationResult{}
	case KindHintRequest:
		msg = &HintRequest{}
	case KindHintResponse:
		msg = &HintResponse{}
	case KindNextQuestion:
		msg = &NextQuestion{}
	case KindLeaderboard:
		msg = &Leaderboard{}
	case KindGameEnd:
		msg = &GameEnd{}
	default:
		return nil, &DecodeError{Kind: env.Kind, Reason: "unknown kind"}
	}

	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, msg); err != nil {
			return nil, &DecodeError{Kind: env.Kind, Reason: err.Error()}
		}
	}
	return deref(msg), nil
}

// deref returns messages by value so callers can type-switch without pointers.
func deref(msg Message) Message {
	switch m := msg.(type) {
	case *GameStart:
		return *m
	case *Question:
		return *m
	case *RawAnswer:
		return *m
	case *ValidationResult:
		return *m
	case *HintRequest:
		return *m
	case *HintResponse:
		return *m
	case *NextQuestion:
		return *m
	case *Leaderboard:
		return *m
	case *GameEnd:
		return *m
	default:
		return msg
	}
}
