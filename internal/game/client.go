package game

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/seanwh01/football-player-trivia-sub000/internal/domain"
	"github.com/seanwh01/football-player-trivia-sub000/internal/protocol"
	"github.com/seanwh01/football-player-trivia-sub000/internal/session"
)

// ClientSender is the slice of the session manager the client machine needs.
type ClientSender interface {
	SelfID() string
	SendToHost(msg protocol.Message) error
	MarkGameOver()
}

// ClientEvent is the closed set of client-side notifications for the UI.
type ClientEvent interface{ isClientEvent() }

// HostDiscovered surfaces an advertising host while browsing.
type HostDiscovered struct{ Host domain.Participant }

// HostGone surfaces a discovered host that disappeared before joining.
type HostGone struct{ PeerID string }

// JoinedSession reports a successful connection to the host.
type JoinedSession struct{ Host domain.Participant }

// JoinRejected reports a rejected or timed-out join (e.g. session full).
type JoinRejected struct{ PeerID string }

// SettingsReceived carries the host's game settings.
type SettingsReceived struct{ Settings domain.GameSettings }

// QuestionReceived starts a local round with its countdown origin.
type QuestionReceived struct {
	Round    int
	Question domain.Question
	Deadline time.Time
}

// AnswerSent confirms the local submission is awaiting host validation.
type AnswerSent struct{ Elapsed time.Duration }

// VerdictReceived is the host-declared outcome; the only source of truth.
type VerdictReceived struct{ Verdict domain.Verdict }

// HintReceived carries hint text from the host.
type HintReceived struct {
	Text string
	Tier domain.HintTier
}

// TimedOut reports the local countdown expired before a submission.
type TimedOut struct{ Round int }

// BoardReceived carries the authoritative leaderboard; Score is the
// host-declared value for the local participant.
type BoardReceived struct {
	Board domain.Leaderboard
	Score int
}

// RoundAdvanced signals the host moved past the leaderboard view.
type RoundAdvanced struct{}

// GameOver is the legitimate terminal state with final standings.
type GameOver struct{ Board domain.Leaderboard }

// HostLeft is the terminal "host left" condition, distinct from GameOver.
type HostLeft struct{}

func (HostDiscovered) isClientEvent()   {}
func (HostGone) isClientEvent()         {}
func (JoinedSession) isClientEvent()    {}
func (JoinRejected) isClientEvent()     {}
func (SettingsReceived) isClientEvent() {}
func (QuestionReceived) isClientEvent() {}
func (AnswerSent) isClientEvent()       {}
func (VerdictReceived) isClientEvent()  {}
func (HintReceived) isClientEvent()     {}
func (TimedOut) isClientEvent()         {}
func (BoardReceived) isClientEvent()    {}
func (RoundAdvanced) isClientEvent()    {}
func (GameOver) isClientEvent()         {}
func (HostLeft) isClientEvent()         {}

type cCmd interface{ isCCmd() }

type cSubmit struct {
	text  string
	reply chan error
}

type cHint struct {
	tier  domain.HintTier
	reply chan error
}

type cTimeout struct{ round int }

func (cSubmit) isCCmd()  {}
func (cHint) isCCmd()    {}
func (cTimeout) isCCmd() {}

// Client mirrors round progression without any authority of its own: it
// submits raw answers, adopts host verdicts verbatim and replaces its local
// scoreboard wholesale from leaderboard broadcasts.
type Client struct {
	sender ClientSender
	log    *zap.Logger
	clock  func() time.Time

	inbox  chan cCmd
	events chan ClientEvent
	ctx    context.Context
	cancel context.CancelFunc

	// Loop-owned state.
	settings      domain.GameSettings
	round         int
	question      domain.Question
	receivedAt    time.Time
	inRound       bool
	submitted     bool
	obviousAsked  bool
	score         int
	terminal      bool
	lastBoard     domain.Leaderboard
	countdown     *time.Timer
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientClock injects a deterministic clock (tests).
func WithClientClock(now func() time.Time) ClientOption {
	return func(c *Client) { c.clock = now }
}

func NewClient(parent context.Context, sender ClientSender, log *zap.Logger, opts ...ClientOption) *Client {
	ctx, cancel := context.WithCancel(parent)
	c := &Client{
		sender: sender,
		log:    log,
		clock:  time.Now,
		inbox:  make(chan cCmd, 64),
		events: make(chan ClientEvent, 64),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Events returns UI-facing notifications.
func (c *Client) Events() <-chan ClientEvent { return c.events }

// Run drives the client machine until ctx is canceled.
func (c *Client) Run(sessionEvents <-chan session.Event) {
	defer close(c.events)
	for {
		select {
		case <-c.ctx.Done():
			c.stopCountdown()
			return
		case cmd := <-c.inbox:
			c.handleCmd(cmd)
		case ev, ok := <-sessionEvents:
			if !ok {
				c.stopCountdown()
				return
			}
			c.handleSession(ev)
		}
	}
}

// Stop cancels the client machine.
func (c *Client) Stop() { c.cancel() }

// SubmitAnswer sends the local answer to the host and enters the awaiting
// validation state. Correctness is never assumed locally.
func (c *Client) SubmitAnswer(text string) error {
	reply := make(chan error, 1)
	select {
	case c.inbox <- cSubmit{text: text, reply: reply}:
		return <-reply
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

// RequestHint asks the host for a hint; the obvious tier is requested at
// most once per question.
func (c *Client) RequestHint(tier domain.HintTier) error {
	reply := make(chan error, 1)
	select {
	case c.inbox <- cHint{tier: tier, reply: reply}:
		return <-reply
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

func (c *Client) handleCmd(cmd cCmd) {
	switch m := cmd.(type) {
	case cSubmit:
		m.reply <- c.submit(m.text)
	case cHint:
		m.reply <- c.hint(m.tier)
	case cTimeout:
		c.timeout(m.round)
	}
}

func (c *Client) submit(text string) error {
	if c.terminal {
		return domain.ErrGameOver
	}
	if !c.inRound {
		return domain.ErrGameOver
	}
	if c.submitted {
		return domain.ErrDuplicateSubmission
	}
	elapsed := c.clock().Sub(c.receivedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	if limit := c.settings.TimeLimit(); limit > 0 && elapsed > limit {
		elapsed = limit
	}
	if err := c.sender.SendToHost(protocol.RawAnswer{Text: text, ResponseMillis: elapsed.Milliseconds()}); err != nil {
		return err
	}
	c.submitted = true
	c.emit(AnswerSent{Elapsed: elapsed})
	return nil
}

func (c *Client) hint(tier domain.HintTier) error {
	if !c.inRound || c.terminal {
		return domain.ErrGameOver
	}
	if tier == domain.HintObvious {
		if c.obviousAsked {
			return domain.ErrHintExhausted
		}
		c.obviousAsked = true
	}
	return c.sender.SendToHost(protocol.HintRequest{Tier: tier})
}

// timeout auto-submits an empty answer at the maximum time value so the
// host's completion counting is satisfied even when the player never typed.
func (c *Client) timeout(round int) {
	if round != c.round || !c.inRound || c.submitted || c.terminal {
		return
	}
	limit := c.settings.TimeLimit()
	if err := c.sender.SendToHost(protocol.RawAnswer{Text: "", ResponseMillis: limit.Milliseconds()}); err != nil {
		c.log.Warn("timeout submission failed", zap.Error(err))
	}
	c.submitted = true
	c.emit(TimedOut{Round: round})
}

func (c *Client) handleSession(ev session.Event) {
	switch e := ev.(type) {
	case session.HostFound:
		c.emit(HostDiscovered{Host: e.Host})
	case session.HostLost:
		c.emit(HostGone{PeerID: e.PeerID})
	case session.ParticipantJoined:
		if e.Participant.Role == domain.RoleHost {
			c.emit(JoinedSession{Host: e.Participant})
		}
	case session.JoinFailed:
		c.emit(JoinRejected{PeerID: e.PeerID})
	case session.HostDisconnected:
		c.stopCountdown()
		c.terminal = true
		c.inRound = false
		c.emit(HostLeft{})
	case session.MessageReceived:
		c.handleMessage(e.Msg)
	}
}

func (c *Client) handleMessage(msg protocol.Message) {
	if c.terminal {
		return
	}
	switch m := msg.(type) {
	case protocol.GameStart:
		c.settings = m.Settings
		c.score = 0
		c.emit(SettingsReceived{Settings: m.Settings})

	case protocol.Question:
		c.stopCountdown()
		c.round = m.Round
		c.question = m.Question
		c.receivedAt = c.clock()
		c.inRound = true
		c.submitted = false
		c.obviousAsked = false

		limit := c.settings.TimeLimit()
		round := m.Round
		if limit > 0 {
			c.countdown = time.AfterFunc(limit, func() {
				select {
				case c.inbox <- cTimeout{round: round}:
				case <-c.ctx.Done():
				}
			})
		}
		c.emit(QuestionReceived{Round: m.Round, Question: m.Question, Deadline: c.receivedAt.Add(limit)})

	case protocol.ValidationResult:
		verdict := domain.Verdict{Correct: m.Correct, Message: m.Message, Points: m.Points}
		// Optimistic local tally; the next leaderboard overwrites it.
		c.score += m.Points
		c.emit(VerdictReceived{Verdict: verdict})

	case protocol.HintResponse:
		c.emit(HintReceived{Text: m.Text, Tier: m.Tier})

	case protocol.Leaderboard:
		c.stopCountdown()
		c.inRound = false
		c.lastBoard = m.Board
		if score, ok := m.Board.SelfScore(c.sender.SelfID()); ok {
			// Host-declared value wins over any local optimistic tally.
			c.score = score
		}
		c.emit(BoardReceived{Board: m.Board, Score: c.score})

	case protocol.NextQuestion:
		c.emit(RoundAdvanced{})

	case protocol.GameEnd:
		c.stopCountdown()
		c.terminal = true
		c.inRound = false
		c.sender.MarkGameOver()
		c.emit(GameOver{Board: c.lastBoard})
	}
}

func (c *Client) stopCountdown() {
	if c.countdown != nil {
		c.countdown.Stop()
	}
}

func (c *Client) emit(ev ClientEvent) {
	select {
	case c.events <- ev:
	default:
		select {
		case <-c.events:
		default:
		}
		select {
		case c.events <- ev:
		default:
		}
	}
}
