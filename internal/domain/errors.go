package domain

import "errors"

var (
	// ErrSessionFull is returned when an invitation would exceed the 8-device cap.
	ErrSessionFull = errors.New("session is full")
	// ErrNotHost is returned when a host-only operation is attempted by a client.
	ErrNotHost = errors.New("operation requires host role")
	// ErrNotConnected is returned when a send is attempted with no connected peers.
	ErrNotConnected = errors.New("no connected peers")
	// ErrHostDisconnected signals the session authority left before the game ended.
	ErrHostDisconnected = errors.New("host disconnected")
	// ErrDuplicateSubmission is returned on a second answer in the same round.
	ErrDuplicateSubmission = errors.New("answer already submitted this round")
	// ErrNoEligiblePlayers means the configured filters admit no valid question.
	ErrNoEligiblePlayers = errors.New("no eligible players for configured filters")
	// ErrGameOver is returned for round actions after the terminal state.
	ErrGameOver = errors.New("game already over")
	// ErrHintExhausted is returned when the obvious hint was already served.
	ErrHintExhausted = errors.New("obvious hint already used for this question")
	// ErrHintsDisabled is returned when the session was configured without hints.
	ErrHintsDisabled = errors.New("hints are disabled for this game")
)
