package ws

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/seanwh01/football-player-trivia-sub000/internal/transport"
)

func freeUDPPort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	port := conn.LocalAddr().(*net.UDPAddr).Port
	conn.Close()
	return port
}

// sendBeacon hand-delivers a discovery beacon over loopback, standing in for
// the broadcast the host would emit on a real LAN.
func sendBeacon(t *testing.T, port int, b beacon) {
	t.Helper()
	conn, err := net.Dial("udp4", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	payload, err := json.Marshal(b)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Write(payload); err != nil {
		t.Fatal(err)
	}
}

func recvEvent(t *testing.T, tr *Transport) transport.Event {
	t.Helper()
	select {
	case ev := <-tr.Events():
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for transport event")
		return nil
	}
}

func waitState(t *testing.T, tr *Transport, peer transport.PeerID, want transport.ConnState) {
	t.Helper()
	for {
		ev := recvEvent(t, tr)
		cc, ok := ev.(transport.ConnectionChanged)
		if !ok || cc.Peer.ID != peer {
			continue
		}
		if cc.State == want {
			return
		}
		if cc.State == transport.ConnNotConnected && want == transport.ConnConnected {
			t.Fatalf("peer %s failed to connect", peer)
		}
	}
}

func newHost(t *testing.T) *Transport {
	t.Helper()
	host := New(Config{ListenAddr: "127.0.0.1:0", DiscoveryPort: freeUDPPort(t)}, "host-id", zap.NewNop())
	t.Cleanup(func() { _ = host.Close() })
	if err := host.StartAdvertising(context.Background(), transport.AdvertiseInfo{DisplayName: "Host"}); err != nil {
		t.Fatal(err)
	}
	if host.Addr() == "" {
		t.Fatal("no listen address after StartAdvertising")
	}
	return host
}

func newBrowser(t *testing.T, id string) (*Transport, int) {
	t.Helper()
	port := freeUDPPort(t)
	tr := New(Config{DiscoveryPort: port, BeaconInterval: 200 * time.Millisecond}, id, zap.NewNop())
	t.Cleanup(func() { _ = tr.Close() })
	if err := tr.StartBrowsing(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	return tr, port
}

func discover(t *testing.T, client *Transport, port int, host *Transport) transport.Peer {
	t.Helper()
	sendBeacon(t, port, beacon{
		PeerID: string(host.SelfID()),
		Name:   "Host",
		Addr:   host.Addr(),
		Scheme: "ws",
	})
	for {
		ev := recvEvent(t, client)
		if found, ok := ev.(transport.PeerFound); ok {
			return found.Peer
		}
	}
}

func TestDiscoveryViaBeacon(t *testing.T) {
	host := newHost(t)
	client, port := newBrowser(t, "client-id")

	peer := discover(t, client, port, host)
	if peer.ID != "host-id" || peer.DisplayName != "Host" {
		t.Fatalf("unexpected peer: %+v", peer)
	}
	if peer.Addr != host.Addr() {
		t.Fatalf("peer addr = %q, want %q", peer.Addr, host.Addr())
	}
}

func TestBeaconLossPrunesHost(t *testing.T) {
	host := newHost(t)
	client, port := newBrowser(t, "client-id")

	discover(t, client, port, host)

	// No further beacons arrive, so the miss limit expires the host.
	for {
		ev := recvEvent(t, client)
		if lost, ok := ev.(transport.PeerLost); ok {
			if lost.Peer.ID != "host-id" {
				t.Fatalf("lost wrong peer: %+v", lost.Peer)
			}
			return
		}
	}
}

func TestInviteAcceptAndExchange(t *testing.T) {
	host := newHost(t)
	client, port := newBrowser(t, "client-id")

	discover(t, client, port, host)
	if err := client.Invite(context.Background(), "host-id", []byte("Ann"), 3*time.Second); err != nil {
		t.Fatal(err)
	}

	var inv transport.Invitation
	for {
		ev := recvEvent(t, host)
		if i, ok := ev.(transport.Invitation); ok {
			inv = i
			break
		}
	}
	if string(inv.Context) != "Ann" || inv.Peer.ID != "client-id" {
		t.Fatalf("unexpected invitation: peer %s context %q", inv.Peer.ID, inv.Context)
	}
	inv.Respond(true)

	waitState(t, client, "host-id", transport.ConnConnected)
	waitState(t, host, "client-id", transport.ConnConnected)

	if err := client.Send([]transport.PeerID{"host-id"}, []byte("ping")); err != nil {
		t.Fatal(err)
	}
	for {
		ev := recvEvent(t, host)
		if data, ok := ev.(transport.Data); ok {
			if data.From != "client-id" || string(data.Payload) != "ping" {
				t.Fatalf("unexpected data: %+v", data)
			}
			break
		}
	}

	if err := host.Send([]transport.PeerID{"client-id"}, []byte("pong")); err != nil {
		t.Fatal(err)
	}
	for {
		ev := recvEvent(t, client)
		if data, ok := ev.(transport.Data); ok {
			if string(data.Payload) != "pong" {
				t.Fatalf("unexpected payload: %q", data.Payload)
			}
			return
		}
	}
}

func TestInviteRejected(t *testing.T) {
	host := newHost(t)
	client, port := newBrowser(t, "client-id")

	discover(t, client, port, host)
	if err := client.Invite(context.Background(), "host-id", nil, 3*time.Second); err != nil {
		t.Fatal(err)
	}
	for {
		ev := recvEvent(t, host)
		if inv, ok := ev.(transport.Invitation); ok {
			inv.Respond(false)
			break
		}
	}
	waitState(t, client, "host-id", transport.ConnNotConnected)
}

func TestInviteUnknownHost(t *testing.T) {
	client, _ := newBrowser(t, "client-id")
	err := client.Invite(context.Background(), "ghost", nil, time.Second)
	if err == nil {
		t.Fatal("expected an error for an undiscovered peer")
	}
}

func TestDeclinedInviteReportsDeclined(t *testing.T) {
	host := newHost(t)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+host.Addr()+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if err := conn.WriteJSON(handshake{PeerID: "client-id", Name: "Ann"}); err != nil {
		t.Fatal(err)
	}

	for {
		ev := recvEvent(t, host)
		if inv, ok := ev.(transport.Invitation); ok {
			inv.Respond(false)
			break
		}
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var reply handshakeReply
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatal(err)
	}
	if reply.Accepted {
		t.Fatal("declined invitation reported as accepted")
	}
	if reply.Reason != "declined" {
		t.Fatalf("reason = %q, want %q (full-game wording is reserved for capacity)", reply.Reason, "declined")
	}
}

func TestDisconnectAllDropsLink(t *testing.T) {
	host := newHost(t)
	client, port := newBrowser(t, "client-id")

	discover(t, client, port, host)
	if err := client.Invite(context.Background(), "host-id", nil, 3*time.Second); err != nil {
		t.Fatal(err)
	}
	for {
		ev := recvEvent(t, host)
		if inv, ok := ev.(transport.Invitation); ok {
			inv.Respond(true)
			break
		}
	}
	waitState(t, client, "host-id", transport.ConnConnected)
	waitState(t, host, "client-id", transport.ConnConnected)

	client.DisconnectAll()
	waitState(t, host, "client-id", transport.ConnNotConnected)

	if err := host.Send([]transport.PeerID{"client-id"}, []byte("x")); err == nil {
		t.Fatal("send to a dropped peer must fail")
	}
}
