// Package ws implements the peer mesh over a local network: hosts advertise
// with UDP beacons and accept reliable ordered links over WebSocket; clients
// browse for beacons and invite themselves in by dialing the host.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/seanwh01/football-player-trivia-sub000/internal/transport"
)

const (
	defaultBeaconInterval = 2 * time.Second
	// A host is reported lost after this many missed beacons.
	beaconMissLimit = 3

	writeTimeout = 3 * time.Second
	sendBuffer   = 16
)

// Config wires the LAN transport.
type Config struct {
	// ListenAddr is the host's WebSocket listen address, e.g. ":0" or
	// ":43210".
	ListenAddr string `yaml:"listenAddr"`
	// DiscoveryPort carries UDP beacons.
	DiscoveryPort int `yaml:"discoveryPort"`
	// BeaconInterval defaults to 2s.
	BeaconInterval time.Duration `yaml:"beaconInterval"`
	// TLSCert/TLSKey enable encrypted links when both are set.
	TLSCert string `yaml:"tlsCert"`
	TLSKey  string `yaml:"tlsKey"`
}

type beacon struct {
	ServiceID string `json:"serviceId"`
	PeerID    string `json:"peerId"`
	Name      string `json:"name"`
	Addr      string `json:"addr"`
	Scheme    string `json:"scheme"`
}

type handshake struct {
	PeerID  string `json:"peerId"`
	Name    string `json:"name"`
	Context []byte `json:"context"`
}

type handshakeReply struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

type hostRecord struct {
	peer     transport.Peer
	scheme   string
	lastSeen time.Time
}

type link struct {
	peer transport.Peer
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// Transport implements transport.Transport over the LAN.
type Transport struct {
	cfg    Config
	selfID transport.PeerID
	log    *zap.Logger
	events chan transport.Event

	upgrader websocket.Upgrader

	mu           sync.Mutex
	closed       bool
	serviceID    string
	displayName  string
	server       *http.Server
	serverAddr   string
	advCancel    context.CancelFunc
	browseCancel context.CancelFunc
	conns        map[transport.PeerID]*link
	hosts        map[transport.PeerID]hostRecord
}

var _ transport.Transport = (*Transport)(nil)

func New(cfg Config, selfID string, log *zap.Logger) *Transport {
	if cfg.BeaconInterval <= 0 {
		cfg.BeaconInterval = defaultBeaconInterval
	}
	return &Transport{
		cfg:    cfg,
		selfID: transport.PeerID(selfID),
		log:    log,
		events: make(chan transport.Event, 128),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[transport.PeerID]*link),
		hosts: make(map[transport.PeerID]hostRecord),
	}
}

func (t *Transport) SelfID() transport.PeerID       { return t.selfID }
func (t *Transport) Events() <-chan transport.Event { return t.events }

// Addr returns the bound WebSocket listen address while advertising.
func (t *Transport) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.serverAddr
}

// StartAdvertising starts the WebSocket listener and the beacon broadcaster.
func (t *Transport) StartAdvertising(ctx context.Context, info transport.AdvertiseInfo) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return &transport.Error{Op: "advertise", Err: transport.ErrClosed}
	}
	if t.advCancel != nil {
		t.mu.Unlock()
		return nil
	}
	t.serviceID = info.ServiceID
	t.displayName = info.DisplayName
	t.mu.Unlock()

	listener, err := net.Listen("tcp", t.cfg.ListenAddr)
	if err != nil {
		return &transport.Error{Op: "advertise", Err: err}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", t.serveWS)
	server := &http.Server{
		Handler:      mux,
		ReadTimeout:  0, // long-lived websockets
		WriteTimeout: 0,
	}

	advCtx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.server = server
	t.serverAddr = listener.Addr().String()
	t.advCancel = cancel
	t.mu.Unlock()

	go func() {
		var err error
		if t.cfg.TLSCert != "" && t.cfg.TLSKey != "" {
			err = server.ServeTLS(listener, t.cfg.TLSCert, t.cfg.TLSKey)
		} else {
			err = server.Serve(listener)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.log.Warn("peer listener stopped", zap.Error(err))
		}
	}()
	go t.broadcastBeacons(advCtx)
	return nil
}

func (t *Transport) StopAdvertising() {
	t.mu.Lock()
	cancel := t.advCancel
	server := t.server
	t.advCancel = nil
	t.server = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if server != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		_ = server.Shutdown(shutdownCtx)
		done()
	}
}

func (t *Transport) broadcastBeacons(ctx context.Context) {
	conn, err := net.Dial("udp4", fmt.Sprintf("255.255.255.255:%d", t.cfg.DiscoveryPort))
	if err != nil {
		t.log.Warn("beacon broadcaster unavailable", zap.Error(err))
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(t.cfg.BeaconInterval)
	defer ticker.Stop()

	scheme := "ws"
	if t.cfg.TLSCert != "" && t.cfg.TLSKey != "" {
		scheme = "wss"
	}
	for {
		t.mu.Lock()
		payload, _ := json.Marshal(beacon{
			ServiceID: t.serviceID,
			PeerID:    string(t.selfID),
			Name:      t.displayName,
			Addr:      t.serverAddr,
			Scheme:    scheme,
		})
		t.mu.Unlock()
		if _, err := conn.Write(payload); err != nil {
			t.log.Debug("beacon write failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// StartBrowsing listens for beacons and reports hosts found and lost.
func (t *Transport) StartBrowsing(ctx context.Context, serviceID string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return &transport.Error{Op: "browse", Err: transport.ErrClosed}
	}
	if t.browseCancel != nil {
		t.mu.Unlock()
		return nil
	}
	browseCtx, cancel := context.WithCancel(ctx)
	t.browseCancel = cancel
	t.mu.Unlock()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: t.cfg.DiscoveryPort})
	if err != nil {
		cancel()
		t.mu.Lock()
		t.browseCancel = nil
		t.mu.Unlock()
		return &transport.Error{Op: "browse", Err: err}
	}

	go func() {
		<-browseCtx.Done()
		conn.Close()
	}()
	go t.readBeacons(browseCtx, conn, serviceID)
	go t.pruneHosts(browseCtx)
	return nil
}

func (t *Transport) StopBrowsing() {
	t.mu.Lock()
	cancel := t.browseCancel
	t.browseCancel = nil
	t.hosts = make(map[transport.PeerID]hostRecord)
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (t *Transport) readBeacons(ctx context.Context, conn *net.UDPConn, serviceID string) {
	buf := make([]byte, 1024)
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		var b beacon
		if err := json.Unmarshal(buf[:n], &b); err != nil {
			continue
		}
		if b.PeerID == string(t.selfID) || (serviceID != "" && b.ServiceID != serviceID) {
			continue
		}
		addr := b.Addr
		if host, port, err := net.SplitHostPort(b.Addr); err == nil && (host == "" || host == "::" || host == "0.0.0.0") {
			addr = net.JoinHostPort(src.IP.String(), port)
		}
		peer := transport.Peer{ID: transport.PeerID(b.PeerID), DisplayName: b.Name, Addr: addr}

		t.mu.Lock()
		_, known := t.hosts[peer.ID]
		t.hosts[peer.ID] = hostRecord{peer: peer, scheme: b.Scheme, lastSeen: time.Now()}
		t.mu.Unlock()
		if !known {
			t.emit(transport.PeerFound{Peer: peer})
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (t *Transport) pruneHosts(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.BeaconInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-time.Duration(beaconMissLimit) * t.cfg.BeaconInterval)
			var lost []transport.Peer
			t.mu.Lock()
			for id, rec := range t.hosts {
				if rec.lastSeen.Before(cutoff) {
					lost = append(lost, rec.peer)
					delete(t.hosts, id)
				}
			}
			t.mu.Unlock()
			for _, peer := range lost {
				t.emit(transport.PeerLost{Peer: peer})
			}
		}
	}
}

// serveWS handles an inbound peer link on the host side.
func (t *Transport) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var hs handshake
	if err := conn.ReadJSON(&hs); err != nil {
		conn.Close()
		return
	}
	conn.SetReadDeadline(time.Time{})
	peer := transport.Peer{ID: transport.PeerID(hs.PeerID), DisplayName: hs.Name, Addr: r.RemoteAddr}

	// Hard capacity check before the invitation reaches the session layer:
	// a full mesh rejects deterministically, it never queues.
	t.mu.Lock()
	full := len(t.conns) >= transport.MaxPeers-1
	t.mu.Unlock()
	if full {
		_ = conn.WriteJSON(handshakeReply{Accepted: false, Reason: "game is full"})
		conn.Close()
		return
	}

	decided := make(chan bool, 1)
	var once sync.Once
	t.emit(transport.Invitation{
		Peer:    peer,
		Context: hs.Context,
		Respond: func(accept bool) {
			once.Do(func() { decided <- accept })
		},
	})

	accept := false
	select {
	case accept = <-decided:
	case <-time.After(30 * time.Second):
	}
	if !accept {
		_ = conn.WriteJSON(handshakeReply{Accepted: false, Reason: "declined"})
		conn.Close()
		return
	}
	if err := conn.WriteJSON(handshakeReply{Accepted: true}); err != nil {
		conn.Close()
		return
	}
	t.register(peer, conn)
}

// Invite dials a discovered host. The outcome is reported asynchronously as
// a ConnectionChanged event within the timeout.
func (t *Transport) Invite(_ context.Context, peerID transport.PeerID, inviteCtx []byte, timeout time.Duration) error {
	t.mu.Lock()
	rec, ok := t.hosts[peerID]
	t.mu.Unlock()
	if !ok {
		return &transport.Error{Op: "invite", Peer: peerID, Err: transport.ErrPeerUnknown}
	}

	t.emit(transport.ConnectionChanged{Peer: rec.peer, State: transport.ConnConnecting})

	go func() {
		scheme := rec.scheme
		if scheme == "" {
			scheme = "ws"
		}
		url := fmt.Sprintf("%s://%s/ws", scheme, rec.peer.Addr)
		dialer := websocket.Dialer{HandshakeTimeout: timeout}
		conn, _, err := dialer.Dial(url, nil)
		if err != nil {
			t.emit(transport.ConnectionChanged{Peer: rec.peer, State: transport.ConnNotConnected})
			return
		}

		deadline := time.Now().Add(timeout)
		conn.SetWriteDeadline(deadline)
		if err := conn.WriteJSON(handshake{PeerID: string(t.selfID), Name: t.displayName, Context: inviteCtx}); err != nil {
			conn.Close()
			t.emit(transport.ConnectionChanged{Peer: rec.peer, State: transport.ConnNotConnected})
			return
		}
		conn.SetReadDeadline(deadline)
		var reply handshakeReply
		if err := conn.ReadJSON(&reply); err != nil || !reply.Accepted {
			conn.Close()
			t.emit(transport.ConnectionChanged{Peer: rec.peer, State: transport.ConnNotConnected})
			return
		}
		conn.SetWriteDeadline(time.Time{})
		conn.SetReadDeadline(time.Time{})
		t.register(rec.peer, conn)
	}()
	return nil
}

// register wires the read/write pumps for an established link and reports it
// connected.
func (t *Transport) register(peer transport.Peer, conn *websocket.Conn) {
	l := &link{
		peer: peer,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return
	}
	t.conns[peer.ID] = l
	t.mu.Unlock()

	go t.writePump(l)
	go t.readPump(l)
	t.emit(transport.ConnectionChanged{Peer: peer, State: transport.ConnConnected})
}

func (t *Transport) writePump(l *link) {
	for {
		select {
		case payload, ok := <-l.send:
			if !ok {
				return
			}
			l.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := l.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
				t.log.Debug("peer write failed", zap.String("peer", string(l.peer.ID)), zap.Error(err))
				l.conn.Close()
				return
			}
		case <-l.done:
			return
		}
	}
}

func (t *Transport) readPump(l *link) {
	for {
		_, payload, err := l.conn.ReadMessage()
		if err != nil {
			t.drop(l.peer.ID)
			return
		}
		t.emit(transport.Data{From: l.peer.ID, Payload: payload})
	}
}

// drop removes a link and reports the peer disconnected, once.
func (t *Transport) drop(peerID transport.PeerID) {
	t.mu.Lock()
	l, ok := t.conns[peerID]
	if ok {
		delete(t.conns, peerID)
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	close(l.done)
	l.conn.Close()
	t.emit(transport.ConnectionChanged{Peer: l.peer, State: transport.ConnNotConnected})
}

func (t *Transport) Send(peers []transport.PeerID, payload []byte) error {
	t.mu.Lock()
	links := make([]*link, 0, len(peers))
	for _, p := range peers {
		l, ok := t.conns[p]
		if !ok {
			t.mu.Unlock()
			return &transport.Error{Op: "send", Peer: p, Err: transport.ErrPeerNotConnected}
		}
		links = append(links, l)
	}
	t.mu.Unlock()

	for _, l := range links {
		select {
		case l.send <- payload:
		case <-l.done:
			return &transport.Error{Op: "send", Peer: l.peer.ID, Err: transport.ErrPeerNotConnected}
		}
	}
	return nil
}

func (t *Transport) DisconnectAll() {
	t.mu.Lock()
	links := make([]*link, 0, len(t.conns))
	for _, l := range t.conns {
		links = append(links, l)
	}
	t.mu.Unlock()
	for _, l := range links {
		t.drop(l.peer.ID)
	}
}

func (t *Transport) Close() error {
	t.StopAdvertising()
	t.StopBrowsing()
	t.DisconnectAll()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()
	close(t.events)
	return nil
}

func (t *Transport) emit(ev transport.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	select {
	case t.events <- ev:
	default:
	}
}
