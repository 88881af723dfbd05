// Package session owns the participant roster, the local role and the
// connection-state machine. A Manager is an actor: every mutation runs on its
// single loop goroutine, fed by an inbox channel and the transport event
// stream, so transport callbacks never touch session state directly.
package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/seanwh01/football-player-trivia-sub000/internal/domain"
	"github.com/seanwh01/football-player-trivia-sub000/internal/protocol"
	"github.com/seanwh01/football-player-trivia-sub000/internal/transport"
)

// State is the session-level connection state machine.
type State string

const (
	StateDisconnected State = "disconnected"
	StateBrowsing     State = "browsing"
	StateHosting      State = "hosting"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// MaxClients is the number of non-host participants a host will accept.
const MaxClients = transport.MaxPeers - 1

const defaultInviteTimeout = 30 * time.Second

// Event is the closed set of session notifications delivered to the game
// layer (orchestrator on the host, client state machine elsewhere).
type Event interface{ isSessionEvent() }

// HostFound reports an advertising host discovered while browsing.
type HostFound struct{ Host domain.Participant }

// HostLost reports a discovered host that stopped advertising.
type HostLost struct{ PeerID string }

// ParticipantJoined reports a new roster member.
type ParticipantJoined struct{ Participant domain.Participant }

// ParticipantLeft reports a roster member that disconnected.
type ParticipantLeft struct{ PeerID string }

// JoinFailed reports a rejected or timed-out join attempt.
type JoinFailed struct{ PeerID string }

// HostDisconnected is the terminal "host left" condition for clients. It is
// never raised after the game legitimately ended.
type HostDisconnected struct{}

// MessageReceived carries a decoded, role-checked protocol message.
type MessageReceived struct {
	From string
	Msg  protocol.Message
}

func (HostFound) isSessionEvent()         {}
func (HostLost) isSessionEvent()          {}
func (ParticipantJoined) isSessionEvent() {}
func (ParticipantLeft) isSessionEvent()   {}
func (JoinFailed) isSessionEvent()        {}
func (HostDisconnected) isSessionEvent()  {}
func (MessageReceived) isSessionEvent()   {}

type command interface{ isCommand() }

type cmdStartHosting struct {
	name     string
	settings domain.GameSettings
	reply    chan error
}

type cmdStartBrowsing struct {
	name  string
	reply chan error
}

type cmdJoinHost struct {
	peer  transport.PeerID
	reply chan error
}

type cmdSend struct {
	to    []transport.PeerID // nil means every connected peer
	msg   protocol.Message
	reply chan error
}

type cmdMarkGameOver struct{}

type cmdLeave struct{ reply chan struct{} }

type cmdSnapshot struct{ reply chan Snapshot }

func (cmdStartHosting) isCommand()  {}
func (cmdStartBrowsing) isCommand() {}
func (cmdJoinHost) isCommand()      {}
func (cmdSend) isCommand()          {}
func (cmdMarkGameOver) isCommand()  {}
func (cmdLeave) isCommand()         {}
func (cmdSnapshot) isCommand()      {}

// Snapshot reflects manager state for callers and tests without data races.
type Snapshot struct {
	State        State
	Role         domain.Role
	Participants []domain.Participant
	Discovered   []domain.Participant
}

// Manager bridges the transport to typed protocol events.
type Manager struct {
	tr            transport.Transport
	log           *zap.Logger
	inviteTimeout time.Duration

	inbox  chan command
	events chan Event
	ctx    context.Context
	cancel context.CancelFunc

	// Loop-owned state. Never touched outside run.
	state        State
	role         domain.Role
	selfName     string
	gameOver     bool
	hostPeer     transport.PeerID
	pendingHost  transport.PeerID
	order        []transport.PeerID
	roster       map[transport.PeerID]*domain.Participant
	discovered   map[transport.PeerID]domain.Participant
	pendingNames map[transport.PeerID]string
}

// Option configures a Manager.
type Option func(*Manager)

// WithInviteTimeout overrides the 30s invitation timeout (tests).
func WithInviteTimeout(d time.Duration) Option {
	return func(m *Manager) { m.inviteTimeout = d }
}

func NewManager(parent context.Context, tr transport.Transport, log *zap.Logger, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(parent)
	m := &Manager{
		tr:            tr,
		log:           log,
		inviteTimeout: defaultInviteTimeout,
		inbox:         make(chan command, 64),
		events:        make(chan Event, 64),
		ctx:           ctx,
		cancel:        cancel,
		state:         StateDisconnected,
		roster:        make(map[transport.PeerID]*domain.Participant),
		discovered:    make(map[transport.PeerID]domain.Participant),
		pendingNames:  make(map[transport.PeerID]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.run()
	return m
}

// Events returns the session event stream consumed by the game layer.
func (m *Manager) Events() <-chan Event { return m.events }

// SelfID returns the local peer identifier.
func (m *Manager) SelfID() string { return string(m.tr.SelfID()) }

// StartHosting assumes the host role, registers self as participant zero and
// begins advertising.
func (m *Manager) StartHosting(name string, settings domain.GameSettings) error {
	reply := make(chan error, 1)
	m.inbox <- cmdStartHosting{name: name, settings: settings, reply: reply}
	return <-reply
}

// StartBrowsing assumes the client role and begins discovering hosts.
func (m *Manager) StartBrowsing(name string) error {
	reply := make(chan error, 1)
	m.inbox <- cmdStartBrowsing{name: name, reply: reply}
	return <-reply
}

// JoinHost invites itself to a discovered host. The outcome arrives as a
// ParticipantJoined or JoinFailed event.
func (m *Manager) JoinHost(peer string) error {
	reply := make(chan error, 1)
	m.inbox <- cmdJoinHost{peer: transport.PeerID(peer), reply: reply}
	return <-reply
}

// Broadcast sends a message to every connected peer.
func (m *Manager) Broadcast(msg protocol.Message) error {
	reply := make(chan error, 1)
	m.inbox <- cmdSend{msg: msg, reply: reply}
	return <-reply
}

// SendTo sends a message to a single connected peer.
func (m *Manager) SendTo(peer string, msg protocol.Message) error {
	reply := make(chan error, 1)
	m.inbox <- cmdSend{to: []transport.PeerID{transport.PeerID(peer)}, msg: msg, reply: reply}
	return <-reply
}

// SendToHost sends a message to the session host (client role only).
func (m *Manager) SendToHost(msg protocol.Message) error {
	reply := make(chan error, 1)
	m.inbox <- cmdSend{to: nil, msg: msg, reply: reply}
	return <-reply
}

// MarkGameOver records that the game reached a legitimate terminal state, so
// a later host disconnect is not surfaced as an error.
func (m *Manager) MarkGameOver() {
	select {
	case m.inbox <- cmdMarkGameOver{}:
	case <-m.ctx.Done():
	}
}

// Snapshot returns a copy of the current session state.
func (m *Manager) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	select {
	case m.inbox <- cmdSnapshot{reply: reply}:
		return <-reply
	case <-m.ctx.Done():
		return Snapshot{State: StateDisconnected}
	}
}

// Leave tears down advertising, browsing and every peer link synchronously.
func (m *Manager) Leave() {
	reply := make(chan struct{}, 1)
	select {
	case m.inbox <- cmdLeave{reply: reply}:
		<-reply
	case <-m.ctx.Done():
	}
}

// Close shuts the manager down and closes the event stream.
func (m *Manager) Close() {
	m.cancel()
}

func (m *Manager) run() {
	defer func() {
		m.teardown()
		close(m.events)
	}()
	for {
		select {
		case <-m.ctx.Done():
			return
		case c := <-m.inbox:
			m.handleCommand(c)
		case ev, ok := <-m.tr.Events():
			if !ok {
				return
			}
			m.handleTransport(ev)
		}
	}
}

func (m *Manager) handleCommand(c command) {
	switch cmd := c.(type) {
	case cmdStartHosting:
		m.role = domain.RoleHost
		m.state = StateHosting
		m.selfName = cmd.name
		m.gameOver = false
		self := transport.PeerID(m.SelfID())
		m.roster[self] = &domain.Participant{
			PeerID:      string(self),
			DisplayName: cmd.name,
			Role:        domain.RoleHost,
			State:       domain.StateConnected,
		}
		m.order = []transport.PeerID{self}
		err := m.tr.StartAdvertising(m.ctx, transport.AdvertiseInfo{DisplayName: cmd.name})
		if err != nil {
			m.state = StateDisconnected
		}
		cmd.reply <- err

	case cmdStartBrowsing:
		m.role = domain.RoleClient
		m.state = StateBrowsing
		m.selfName = cmd.name
		m.gameOver = false
		err := m.tr.StartBrowsing(m.ctx, "")
		if err != nil {
			m.state = StateDisconnected
		}
		cmd.reply <- err

	case cmdJoinHost:
		if m.role != domain.RoleClient || m.state != StateBrowsing {
			cmd.reply <- domain.ErrNotConnected
			return
		}
		m.state = StateConnecting
		m.pendingHost = cmd.peer
		// The invitation carries the local display name as context so the
		// host can show who is asking in.
		err := m.tr.Invite(m.ctx, cmd.peer, []byte(m.selfName), m.inviteTimeout)
		if err != nil {
			m.state = StateBrowsing
			m.pendingHost = ""
		}
		cmd.reply <- err

	case cmdSend:
		cmd.reply <- m.send(cmd.to, cmd.msg)

	case cmdMarkGameOver:
		m.gameOver = true

	case cmdSnapshot:
		cmd.reply <- m.snapshot()

	case cmdLeave:
		m.teardown()
		cmd.reply <- struct{}{}
	}
}

func (m *Manager) send(to []transport.PeerID, msg protocol.Message) error {
	if !outboundAllowed(msg.Kind(), m.role) {
		m.log.Warn("dropping outbound message not valid for role",
			zap.String("kind", string(msg.Kind())), zap.String("role", string(m.role)))
		return domain.ErrNotHost
	}
	if to == nil {
		if m.role == domain.RoleClient {
			if m.hostPeer == "" {
				return domain.ErrNotConnected
			}
			to = []transport.PeerID{m.hostPeer}
		} else {
			for _, id := range m.order {
				if id != transport.PeerID(m.SelfID()) {
					to = append(to, id)
				}
			}
		}
	}
	if len(to) == 0 {
		return domain.ErrNotConnected
	}
	payload, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return m.tr.Send(to, payload)
}

func (m *Manager) handleTransport(ev transport.Event) {
	switch e := ev.(type) {
	case transport.PeerFound:
		if m.state != StateBrowsing && m.state != StateConnecting {
			return
		}
		p := domain.Participant{
			PeerID:      string(e.Peer.ID),
			DisplayName: e.Peer.DisplayName,
			Role:        domain.RoleHost,
			State:       domain.StateDiscovering,
		}
		m.discovered[e.Peer.ID] = p
		m.emit(HostFound{Host: p})

	case transport.PeerLost:
		if _, ok := m.discovered[e.Peer.ID]; !ok {
			return
		}
		delete(m.discovered, e.Peer.ID)
		m.emit(HostLost{PeerID: string(e.Peer.ID)})

	case transport.Invitation:
		m.handleInvitation(e)

	case transport.ConnectionChanged:
		m.handleConnectionChange(e)

	case transport.Data:
		m.handleData(e)
	}
}

// handleInvitation applies the deterministic auto-accept policy: accept while
// the roster holds fewer than MaxClients non-host participants, reject
// otherwise. Rejected peers learn immediately that the game is full.
func (m *Manager) handleInvitation(inv transport.Invitation) {
	if m.role != domain.RoleHost || m.state != StateHosting {
		inv.Respond(false)
		return
	}
	clients := len(m.order) - 1
	if clients >= MaxClients {
		m.log.Info("rejecting invitation, session full",
			zap.String("peer", string(inv.Peer.ID)))
		inv.Respond(false)
		return
	}
	name := string(inv.Context)
	if name == "" {
		name = inv.Peer.DisplayName
	}
	m.pendingNames[inv.Peer.ID] = name
	inv.Respond(true)
}

func (m *Manager) handleConnectionChange(e transport.ConnectionChanged) {
	switch e.State {
	case transport.ConnConnected:
		name := m.pendingNames[e.Peer.ID]
		delete(m.pendingNames, e.Peer.ID)
		if name == "" {
			name = e.Peer.DisplayName
		}
		p := &domain.Participant{
			PeerID:      string(e.Peer.ID),
			DisplayName: name,
			Role:        domain.RoleClient,
			State:       domain.StateConnected,
		}
		if m.role == domain.RoleClient {
			// The peer we connected to is the session host.
			p.Role = domain.RoleHost
			m.hostPeer = e.Peer.ID
			m.pendingHost = ""
			m.state = StateConnected
			m.tr.StopBrowsing()
		}
		if _, known := m.roster[e.Peer.ID]; !known {
			m.order = append(m.order, e.Peer.ID)
		}
		m.roster[e.Peer.ID] = p
		m.emit(ParticipantJoined{Participant: *p})

	case transport.ConnNotConnected:
		if m.state == StateConnecting && e.Peer.ID == m.pendingHost {
			// Invite rejected or timed out; resume browsing.
			m.pendingHost = ""
			m.state = StateBrowsing
			m.emit(JoinFailed{PeerID: string(e.Peer.ID)})
			return
		}
		if _, known := m.roster[e.Peer.ID]; !known {
			return
		}
		delete(m.roster, e.Peer.ID)
		for i, id := range m.order {
			if id == e.Peer.ID {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
		m.emit(ParticipantLeft{PeerID: string(e.Peer.ID)})
		if m.role == domain.RoleClient && e.Peer.ID == m.hostPeer {
			m.hostPeer = ""
			m.state = StateDisconnected
			if !m.gameOver {
				m.emit(HostDisconnected{})
			}
		}
	}
}

func (m *Manager) handleData(e transport.Data) {
	msg, err := protocol.Decode(e.Payload)
	if err != nil {
		// Malformed messages are dropped with a log, never fatal.
		m.log.Warn("dropping undecodable message",
			zap.String("from", string(e.From)), zap.Error(err))
		return
	}
	if !inboundAllowed(msg.Kind(), m.role) {
		m.log.Warn("dropping message not meant for local role",
			zap.String("kind", string(msg.Kind())), zap.String("role", string(m.role)))
		return
	}
	if m.role == domain.RoleClient && e.From != m.hostPeer {
		m.log.Warn("dropping message from non-host peer",
			zap.String("from", string(e.From)))
		return
	}
	m.emit(MessageReceived{From: string(e.From), Msg: msg})
}

// inboundAllowed enforces who may legitimately receive each message kind.
func inboundAllowed(k protocol.Kind, role domain.Role) bool {
	switch k {
	case protocol.KindRawAnswer, protocol.KindHintRequest:
		return role == domain.RoleHost
	case protocol.KindGameStart, protocol.KindQuestion, protocol.KindValidationResult,
		protocol.KindHintResponse, protocol.KindNextQuestion, protocol.KindLeaderboard,
		protocol.KindGameEnd:
		return role == domain.RoleClient
	default:
		return false
	}
}

func outboundAllowed(k protocol.Kind, role domain.Role) bool {
	switch k {
	case protocol.KindRawAnswer, protocol.KindHintRequest:
		return role == domain.RoleClient
	default:
		return role == domain.RoleHost
	}
}

func (m *Manager) snapshot() Snapshot {
	snap := Snapshot{State: m.state, Role: m.role}
	for _, id := range m.order {
		if p, ok := m.roster[id]; ok {
			snap.Participants = append(snap.Participants, *p)
		}
	}
	for _, p := range m.discovered {
		snap.Discovered = append(snap.Discovered, p)
	}
	return snap
}

func (m *Manager) teardown() {
	m.tr.StopAdvertising()
	m.tr.StopBrowsing()
	m.tr.DisconnectAll()
	m.state = StateDisconnected
	m.roster = make(map[transport.PeerID]*domain.Participant)
	m.order = nil
	m.hostPeer = ""
	m.pendingHost = ""
}

// emit delivers an event without wedging the loop: if the consumer is behind,
// the oldest buffered event is dropped to make room.
func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		select {
		case <-m.events:
		default:
		}
		select {
		case m.events <- ev:
		default:
		}
	}
}
