// Package game holds the host-side round authority (Orchestrator) and the
// non-authoritative client view (Client). Both are actors: state is owned by
// a single loop goroutine and every external input arrives as a message.
package game

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seanwh01/football-player-trivia-sub000/internal/domain"
	"github.com/seanwh01/football-player-trivia-sub000/internal/protocol"
	"github.com/seanwh01/football-player-trivia-sub000/internal/session"
)

// Sender is the slice of the session manager the game layer needs.
type Sender interface {
	SelfID() string
	Broadcast(msg protocol.Message) error
	SendTo(peer string, msg protocol.Message) error
	MarkGameOver()
}

const (
	defaultValidationTimeout = 10 * time.Second
	defaultRevealDelay       = 8 * time.Second
	defaultBoardDelay        = 5 * time.Second
	maxSampleAttempts        = 25
	maxAvailabilityProbes    = 64
)

// HostEvent is the closed set of orchestrator notifications for the local UI.
type HostEvent interface{ isHostEvent() }

// GameStarted reports a successfully started session.
type GameStarted struct{ Settings domain.GameSettings }

// QuestionStarted reports the question broadcast for a round.
type QuestionStarted struct {
	Round    int
	Question domain.Question
}

// SelfVerdict reports the host's own validated answer.
type SelfVerdict struct{ Verdict domain.Verdict }

// HintReady reports a hint resolved for the host's own request.
type HintReady struct {
	Text string
	Tier domain.HintTier
}

// RoundResolved reports a completed round with the revealed answer and the
// updated scoreboard.
type RoundResolved struct {
	Round  int
	Answer string
	Board  domain.Leaderboard
}

// GameFinished reports the terminal state with final standings.
type GameFinished struct{ Board domain.Leaderboard }

func (GameStarted) isHostEvent()     {}
func (QuestionStarted) isHostEvent() {}
func (SelfVerdict) isHostEvent()     {}
func (HintReady) isHostEvent()       {}
func (RoundResolved) isHostEvent()   {}
func (GameFinished) isHostEvent()    {}

type phase string

const (
	phaseAwaitingStart phase = "awaitingStart"
	phaseCollecting    phase = "collectingAnswers"
	phaseReveal        phase = "reveal"
	phaseDone          phase = "done"
)

type oCmd interface{ isOCmd() }

type oStart struct{ reply chan error }

type oSelfAnswer struct {
	text  string
	reply chan error
}

type oSelfHint struct {
	tier  domain.HintTier
	reply chan error
}

type oVerdict struct {
	round   int
	peer    string
	verdict domain.Verdict
	latency time.Duration
}

type oHintResolved struct {
	round int
	peer  string
	tier  domain.HintTier
	text  string
}

type oRoundTimeout struct{ round int }

type oAdvance struct{ round int }

func (oStart) isOCmd()        {}
func (oSelfAnswer) isOCmd()   {}
func (oSelfHint) isOCmd()     {}
func (oVerdict) isOCmd()      {}
func (oHintResolved) isOCmd() {}
func (oRoundTimeout) isOCmd() {}
func (oAdvance) isOCmd()      {}

// ledgerEntry is the host-owned cumulative record for one participant.
// Scores only ever increase; departed peers keep their frozen entry.
type ledgerEntry struct {
	name         string
	score        int
	lastResponse time.Duration
	connected    bool
}

type roundAnswer struct {
	pending bool
	text    string
	verdict domain.Verdict
	latency time.Duration
}

// Orchestrator sequences rounds on the host: question generation, answer
// collection, validation, scoring and leaderboard broadcast.
type Orchestrator struct {
	sender    Sender
	lookup    PlayerLookup
	validator AnswerValidator
	hints     HintService
	log       *zap.Logger

	settings          domain.GameSettings
	validationTimeout time.Duration
	revealDelay       time.Duration
	boardDelay        time.Duration
	clock             func() time.Time
	rng               *rand.Rand

	inbox  chan oCmd
	events chan HostEvent
	ctx    context.Context
	cancel context.CancelFunc

	// Loop-owned round state.
	phase         phase
	round         int
	question      domain.Question
	candidates    []domain.PlayerRecord
	shownAt       time.Time
	answers       map[string]*roundAnswer
	obviousServed map[string]bool
	ledger        map[string]*ledgerEntry
	ledgerOrder   []string
	roundTimer    *time.Timer
	advanceTimer  *time.Timer
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithClock injects a deterministic clock (tests).
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.clock = now }
}

// WithSeed makes question sampling reproducible.
func WithSeed(seed int64) OrchestratorOption {
	return func(o *Orchestrator) { o.rng = rand.New(rand.NewSource(seed)) }
}

// WithValidationTimeout bounds the external validator call.
func WithValidationTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.validationTimeout = d }
}

// WithRevealDelays overrides the inter-round answer/leaderboard pauses.
func WithRevealDelays(reveal, board time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.revealDelay = reveal
		o.boardDelay = board
	}
}

func NewOrchestrator(parent context.Context, sender Sender, lookup PlayerLookup, validator AnswerValidator, hints HintService, settings domain.GameSettings, hostName string, log *zap.Logger, opts ...OrchestratorOption) *Orchestrator {
	ctx, cancel := context.WithCancel(parent)
	o := &Orchestrator{
		sender:            sender,
		lookup:            lookup,
		validator:         validator,
		hints:             hints,
		log:               log,
		settings:          settings,
		validationTimeout: defaultValidationTimeout,
		revealDelay:       defaultRevealDelay,
		boardDelay:        defaultBoardDelay,
		clock:             time.Now,
		rng:               rand.New(rand.NewSource(time.Now().UnixNano())),
		inbox:             make(chan oCmd, 64),
		events:            make(chan HostEvent, 64),
		ctx:               ctx,
		cancel:            cancel,
		phase:             phaseAwaitingStart,
		answers:           make(map[string]*roundAnswer),
		obviousServed:     make(map[string]bool),
		ledger:            make(map[string]*ledgerEntry),
	}
	for _, opt := range opts {
		opt(o)
	}
	// The host is a participant in its own session.
	o.ledger[sender.SelfID()] = &ledgerEntry{name: hostName, connected: true}
	o.ledgerOrder = []string{sender.SelfID()}
	return o
}

// Events returns host-side notifications for the presentation layer.
func (o *Orchestrator) Events() <-chan HostEvent { return o.events }

// Run drives the orchestrator until ctx is canceled. Session events arrive on
// sessionEvents; everything else is posted to the inbox.
func (o *Orchestrator) Run(sessionEvents <-chan session.Event) {
	defer close(o.events)
	for {
		select {
		case <-o.ctx.Done():
			o.stopTimers()
			return
		case c := <-o.inbox:
			o.handleCmd(c)
		case ev, ok := <-sessionEvents:
			if !ok {
				o.stopTimers()
				return
			}
			o.handleSession(ev)
		}
	}
}

// Stop cancels the orchestrator; in-flight validation results are discarded.
func (o *Orchestrator) Stop() { o.cancel() }

// Start checks answer availability for the configured filters, announces the
// game and broadcasts the first question.
func (o *Orchestrator) Start() error {
	reply := make(chan error, 1)
	select {
	case o.inbox <- oStart{reply: reply}:
		return <-reply
	case <-o.ctx.Done():
		return o.ctx.Err()
	}
}

// SubmitAnswer records the host's own answer through the same validation path
// as every client submission.
func (o *Orchestrator) SubmitAnswer(text string) error {
	reply := make(chan error, 1)
	select {
	case o.inbox <- oSelfAnswer{text: text, reply: reply}:
		return <-reply
	case <-o.ctx.Done():
		return o.ctx.Err()
	}
}

// RequestHint resolves a hint for the host's own use.
func (o *Orchestrator) RequestHint(tier domain.HintTier) error {
	reply := make(chan error, 1)
	select {
	case o.inbox <- oSelfHint{tier: tier, reply: reply}:
		return <-reply
	case <-o.ctx.Done():
		return o.ctx.Err()
	}
}

func (o *Orchestrator) handleCmd(c oCmd) {
	switch cmd := c.(type) {
	case oStart:
		cmd.reply <- o.start()
	case oSelfAnswer:
		cmd.reply <- o.selfAnswer(cmd.text)
	case oSelfHint:
		cmd.reply <- o.selfHint(cmd.tier)
	case oVerdict:
		o.applyVerdict(cmd)
	case oHintResolved:
		o.deliverHint(cmd)
	case oRoundTimeout:
		o.roundTimedOut(cmd.round)
	case oAdvance:
		o.advance(cmd.round)
	}
}

func (o *Orchestrator) handleSession(ev session.Event) {
	switch e := ev.(type) {
	case session.ParticipantJoined:
		if e.Participant.PeerID == o.sender.SelfID() {
			return
		}
		if entry, ok := o.ledger[e.Participant.PeerID]; ok {
			entry.connected = true
			return
		}
		o.ledger[e.Participant.PeerID] = &ledgerEntry{name: e.Participant.DisplayName, connected: true}
		o.ledgerOrder = append(o.ledgerOrder, e.Participant.PeerID)

	case session.ParticipantLeft:
		entry, ok := o.ledger[e.PeerID]
		if !ok {
			return
		}
		// Frozen, not forgotten: the score stays on the board.
		entry.connected = false
		if o.phase == phaseCollecting {
			o.maybeResolveRound()
		}

	case session.MessageReceived:
		switch msg := e.Msg.(type) {
		case protocol.RawAnswer:
			o.peerAnswer(e.From, msg)
		case protocol.HintRequest:
			o.peerHint(e.From, msg.Tier)
		}
	}
}

func (o *Orchestrator) start() error {
	if o.phase != phaseAwaitingStart {
		return domain.ErrGameOver
	}
	if err := o.checkAvailability(); err != nil {
		return err
	}
	if err := o.sender.Broadcast(protocol.GameStart{Settings: o.settings}); err != nil {
		o.log.Warn("game start broadcast failed", zap.Error(err))
	}
	o.emit(GameStarted{Settings: o.settings})
	o.round = 0
	return o.nextRound()
}

// checkAvailability fails fast when the configured filters provably admit no
// valid question, instead of resampling forever mid-game.
func (o *Orchestrator) checkAvailability() error {
	probes := 0
	for _, pos := range o.settings.Positions {
		for _, team := range o.settings.Teams {
			for _, year := range o.settings.Years() {
				if probes >= maxAvailabilityProbes {
					return nil
				}
				probes++
				players, err := o.lookup.TopPlayers(o.ctx, o.filter(pos, team, year))
				if err == nil && len(players) > 0 {
					return nil
				}
			}
		}
	}
	return domain.ErrNoEligiblePlayers
}

func (o *Orchestrator) filter(pos, team string, year int) domain.PlayerFilter {
	limit := o.settings.RankLimit
	if limit <= 0 {
		limit = 3
	}
	return domain.PlayerFilter{
		Position: pos,
		Team:     team,
		Season:   year,
		Side:     SideForPosition(pos),
		Limit:    limit,
	}
}

func (o *Orchestrator) nextRound() error {
	o.round++
	if o.round > o.settings.QuestionCount {
		return o.finish()
	}

	q, candidates, err := o.generateQuestion()
	if err != nil {
		return err
	}
	o.question = q
	o.candidates = candidates
	o.answers = make(map[string]*roundAnswer)
	o.obviousServed = make(map[string]bool)
	o.shownAt = o.clock()
	o.phase = phaseCollecting

	if err := o.sender.Broadcast(protocol.Question{Round: o.round, Question: q}); err != nil {
		o.log.Warn("question broadcast failed", zap.Error(err), zap.Int("round", o.round))
	}
	o.emit(QuestionStarted{Round: o.round, Question: q})

	round := o.round
	o.roundTimer = time.AfterFunc(o.settings.TimeLimit(), func() {
		o.post(oRoundTimeout{round: round})
	})
	return nil
}

// generateQuestion uniformly samples the filter sets and resamples on an
// empty answer set, up to a bound.
func (o *Orchestrator) generateQuestion() (domain.Question, []domain.PlayerRecord, error) {
	years := o.settings.Years()
	for attempt := 0; attempt < maxSampleAttempts; attempt++ {
		pos := o.settings.Positions[o.rng.Intn(len(o.settings.Positions))]
		team := o.settings.Teams[o.rng.Intn(len(o.settings.Teams))]
		year := years[o.rng.Intn(len(years))]

		players, err := o.lookup.TopPlayers(o.ctx, o.filter(pos, team, year))
		if err != nil {
			o.log.Warn("player lookup failed, resampling", zap.Error(err))
			continue
		}
		if len(players) == 0 {
			continue
		}
		q := domain.Question{
			ID:       uuid.NewString(),
			Position: pos,
			Team:     team,
			Year:     year,
			Prompt:   Prompt(pos, team, year),
		}
		return q, players, nil
	}
	return domain.Question{}, nil, domain.ErrNoEligiblePlayers
}

func (o *Orchestrator) selfAnswer(text string) error {
	return o.acceptAnswer(o.sender.SelfID(), text, o.clock().Sub(o.shownAt))
}

func (o *Orchestrator) peerAnswer(peer string, msg protocol.RawAnswer) {
	latency := time.Duration(msg.ResponseMillis) * time.Millisecond
	if err := o.acceptAnswer(peer, msg.Text, latency); err != nil {
		o.log.Debug("submission rejected", zap.String("peer", peer), zap.Error(err))
	}
}

// acceptAnswer reserves the participant's single slot for the round and kicks
// off asynchronous validation. Both the host's own answer and client answers
// flow through here, so the rules are identical for everyone.
func (o *Orchestrator) acceptAnswer(peer, text string, latency time.Duration) error {
	if o.phase != phaseCollecting {
		return domain.ErrGameOver
	}
	if _, ok := o.ledger[peer]; !ok {
		return domain.ErrNotConnected
	}
	if _, dup := o.answers[peer]; dup {
		return domain.ErrDuplicateSubmission
	}
	if latency < 0 {
		latency = 0
	}
	if limit := o.settings.TimeLimit(); latency > limit {
		latency = limit
	}
	o.answers[peer] = &roundAnswer{pending: true, text: text, latency: latency}

	round := o.round
	candidates := o.candidates
	question := o.question
	go func() {
		verdict := resolveVerdict(o.ctx, o.validator, o.validationTimeout, text, candidates, question)
		o.post(oVerdict{round: round, peer: peer, verdict: verdict, latency: latency})
	}()
	return nil
}

func (o *Orchestrator) applyVerdict(cmd oVerdict) {
	// Discard results that raced a round transition or teardown.
	if cmd.round != o.round || o.phase != phaseCollecting {
		return
	}
	ans, ok := o.answers[cmd.peer]
	if !ok || !ans.pending {
		return
	}
	verdict := cmd.verdict
	if verdict.Correct {
		verdict.Points = Points(cmd.latency, o.settings.TimeLimit())
	}
	ans.pending = false
	ans.verdict = verdict

	o.deliverVerdict(cmd.peer, verdict)
	o.maybeResolveRound()
}

func (o *Orchestrator) deliverVerdict(peer string, verdict domain.Verdict) {
	if peer == o.sender.SelfID() {
		o.emit(SelfVerdict{Verdict: verdict})
		return
	}
	result := protocol.ValidationResult{Correct: verdict.Correct, Message: verdict.Message, Points: verdict.Points}
	if err := o.sender.SendTo(peer, result); err != nil {
		o.log.Warn("validation result send failed", zap.String("peer", peer), zap.Error(err))
	}
}

func (o *Orchestrator) selfHint(tier domain.HintTier) error {
	if o.phase != phaseCollecting {
		return domain.ErrGameOver
	}
	// The host plays by the same rules it enforces on clients.
	if !o.settings.HintsEnabled {
		return domain.ErrHintsDisabled
	}
	o.resolveHint(o.sender.SelfID(), tier)
	return nil
}

func (o *Orchestrator) peerHint(peer string, tier domain.HintTier) {
	if o.phase != phaseCollecting || !o.settings.HintsEnabled {
		return
	}
	o.resolveHint(peer, tier)
}

// resolveHint serves the obvious tier at most once per question per
// participant; repeats fall back to the general tier so the host never
// fabricates facts beyond the hint already given.
func (o *Orchestrator) resolveHint(peer string, tier domain.HintTier) {
	if tier == domain.HintObvious {
		if o.obviousServed[peer] {
			tier = domain.HintGeneral
		} else {
			o.obviousServed[peer] = true
		}
	}

	round := o.round
	question := o.question
	candidates := o.candidates
	go func() {
		text := ""
		if o.hints != nil {
			ctx, cancel := context.WithTimeout(o.ctx, o.validationTimeout)
			if hint, err := o.hints.Hint(ctx, candidates, question, tier); err == nil {
				text = hint
			}
			cancel()
		}
		if text == "" {
			text = templatedHint(question, tier, candidates)
		}
		o.post(oHintResolved{round: round, peer: peer, tier: tier, text: text})
	}()
}

func (o *Orchestrator) deliverHint(cmd oHintResolved) {
	if cmd.round != o.round || o.phase != phaseCollecting {
		return
	}
	if cmd.peer == o.sender.SelfID() {
		o.emit(HintReady{Text: cmd.text, Tier: cmd.tier})
		return
	}
	if err := o.sender.SendTo(cmd.peer, protocol.HintResponse{Text: cmd.text, Tier: cmd.tier}); err != nil {
		o.log.Warn("hint send failed", zap.String("peer", cmd.peer), zap.Error(err))
	}
}

func (o *Orchestrator) roundTimedOut(round int) {
	if round != o.round || o.phase != phaseCollecting {
		return
	}
	limit := o.settings.TimeLimit()
	for peer, entry := range o.ledger {
		if !entry.connected {
			continue
		}
		ans, ok := o.answers[peer]
		if ok && !ans.pending {
			continue
		}
		if ok {
			// Submitted in time, validation still in flight. Settle it now
			// with the deterministic local matcher at its recorded latency;
			// the straggling service result is discarded on arrival.
			verdict := localVerdict(ans.text, o.candidates)
			if verdict.Correct {
				verdict.Points = Points(ans.latency, limit)
			}
			ans.pending = false
			ans.verdict = verdict
			o.deliverVerdict(peer, verdict)
			continue
		}
		// No submission at all is an automatic miss at the maximum time value.
		o.answers[peer] = &roundAnswer{
			verdict: domain.Verdict{Correct: false, Message: "Time expired"},
			latency: limit,
		}
	}
	o.resolveRound()
}

func (o *Orchestrator) maybeResolveRound() {
	for peer, entry := range o.ledger {
		if !entry.connected {
			continue
		}
		ans, ok := o.answers[peer]
		if !ok || ans.pending {
			return
		}
	}
	o.resolveRound()
}

// resolveRound applies this round's points to the ledger, broadcasts the
// authoritative leaderboard and schedules the advance to the next round.
func (o *Orchestrator) resolveRound() {
	if o.roundTimer != nil {
		o.roundTimer.Stop()
	}
	o.phase = phaseReveal

	for peer, ans := range o.answers {
		entry, ok := o.ledger[peer]
		if !ok {
			continue
		}
		entry.score += ans.verdict.Points
		entry.lastResponse = ans.latency
	}

	board := o.board(false)
	if err := o.sender.Broadcast(protocol.Leaderboard{Board: board}); err != nil {
		o.log.Warn("leaderboard broadcast failed", zap.Error(err))
	}
	answer := ""
	if len(o.candidates) > 0 {
		answer = o.candidates[0].FullName()
	}
	o.emit(RoundResolved{Round: o.round, Answer: answer, Board: board})

	round := o.round
	o.advanceTimer = time.AfterFunc(o.revealDelay+o.boardDelay, func() {
		o.post(oAdvance{round: round})
	})
}

func (o *Orchestrator) advance(round int) {
	if round != o.round || o.phase != phaseReveal {
		return
	}
	if o.round >= o.settings.QuestionCount {
		if err := o.finish(); err != nil {
			o.log.Warn("finish failed", zap.Error(err))
		}
		return
	}
	if err := o.sender.Broadcast(protocol.NextQuestion{}); err != nil {
		o.log.Warn("next question signal failed", zap.Error(err))
	}
	if err := o.nextRound(); err != nil {
		o.log.Error("round advance failed", zap.Error(err))
	}
}

func (o *Orchestrator) finish() error {
	o.phase = phaseDone
	o.sender.MarkGameOver()
	if err := o.sender.Broadcast(protocol.GameEnd{}); err != nil {
		o.log.Warn("game end broadcast failed", zap.Error(err))
	}
	o.emit(GameFinished{Board: o.board(true)})
	return nil
}

// board builds the ranked snapshot: score descending, then response time
// ascending, then name for stability.
func (o *Orchestrator) board(final bool) domain.Leaderboard {
	entries := make([]domain.LeaderboardEntry, 0, len(o.ledgerOrder))
	for _, peer := range o.ledgerOrder {
		entry := o.ledger[peer]
		entries = append(entries, domain.LeaderboardEntry{
			PeerID:       peer,
			DisplayName:  entry.name,
			Score:        entry.score,
			ResponseTime: entry.lastResponse,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if entries[i].ResponseTime != entries[j].ResponseTime {
			return entries[i].ResponseTime < entries[j].ResponseTime
		}
		return entries[i].DisplayName < entries[j].DisplayName
	})
	return domain.Leaderboard{Round: o.round, Entries: entries, Final: final}
}

func (o *Orchestrator) stopTimers() {
	if o.roundTimer != nil {
		o.roundTimer.Stop()
	}
	if o.advanceTimer != nil {
		o.advanceTimer.Stop()
	}
}

func (o *Orchestrator) post(c oCmd) {
	select {
	case o.inbox <- c:
	case <-o.ctx.Done():
	}
}

func (o *Orchestrator) emit(ev HostEvent) {
	select {
	case o.events <- ev:
	default:
		select {
		case <-o.events:
		default:
		}
		select {
		case o.events <- ev:
		default:
		}
	}
}

// SideForPosition maps a position group to the snap-count column that ranks
// it.
func SideForPosition(pos string) domain.SnapSide {
	switch pos {
	case "QB", "RB", "FB", "WR", "TE", "T", "G", "C", "OL":
		return domain.SnapOffense
	case "K", "P", "LS":
		return domain.SnapSpecial
	default:
		return domain.SnapDefense
	}
}

// Prompt renders the trivia prompt text for a question cell.
func Prompt(pos, team string, year int) string {
	side := "offensive"
	switch SideForPosition(pos) {
	case domain.SnapDefense:
		side = "defensive"
	case domain.SnapSpecial:
		side = "special teams"
	}
	return fmt.Sprintf("Who led the %s in %s snaps at %s in %d?", team, side, pos, year)
}
