package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/seanwh01/football-player-trivia-sub000/internal/transport"
)

func recvEvent(t *testing.T, ch <-chan transport.Event) transport.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transport event")
		return nil
	}
}

func acceptNext(t *testing.T, n *Node) {
	t.Helper()
	for {
		ev := recvEvent(t, n.Events())
		if inv, ok := ev.(transport.Invitation); ok {
			inv.Respond(true)
			return
		}
	}
}

func waitConnected(t *testing.T, n *Node, peer transport.PeerID) {
	t.Helper()
	for {
		ev := recvEvent(t, n.Events())
		cc, ok := ev.(transport.ConnectionChanged)
		if !ok || cc.Peer.ID != peer {
			continue
		}
		switch cc.State {
		case transport.ConnConnected:
			return
		case transport.ConnNotConnected:
			t.Fatalf("peer %s ended up not connected", peer)
		}
	}
}

func TestDiscovery(t *testing.T) {
	mesh := NewMesh()
	host := mesh.Node("host", "Host")
	client := mesh.Node("client", "Client")

	if err := client.StartBrowsing(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if err := host.StartAdvertising(context.Background(), transport.AdvertiseInfo{DisplayName: "Quiz Night"}); err != nil {
		t.Fatal(err)
	}

	ev := recvEvent(t, client.Events())
	found, ok := ev.(transport.PeerFound)
	if !ok {
		t.Fatalf("expected PeerFound, got %T", ev)
	}
	if found.Peer.ID != "host" || found.Peer.DisplayName != "Quiz Night" {
		t.Fatalf("unexpected peer: %+v", found.Peer)
	}

	host.StopAdvertising()
	if _, ok := recvEvent(t, client.Events()).(transport.PeerLost); !ok {
		t.Fatal("expected PeerLost after StopAdvertising")
	}
}

func TestInviteAcceptConnectsBothSides(t *testing.T) {
	mesh := NewMesh()
	host := mesh.Node("host", "Host")
	client := mesh.Node("client", "Client")

	if err := client.Invite(context.Background(), "host", []byte("Ann"), time.Second); err != nil {
		t.Fatal(err)
	}

	ev := recvEvent(t, host.Events())
	inv, ok := ev.(transport.Invitation)
	if !ok {
		t.Fatalf("expected Invitation, got %T", ev)
	}
	if string(inv.Context) != "Ann" {
		t.Fatalf("invitation context = %q", inv.Context)
	}
	inv.Respond(true)

	waitConnected(t, client, "host")
	waitConnected(t, host, "client")

	if err := client.Send([]transport.PeerID{"host"}, []byte("hi")); err != nil {
		t.Fatalf("send after connect: %v", err)
	}
	for {
		if data, ok := recvEvent(t, host.Events()).(transport.Data); ok {
			if data.From != "client" || string(data.Payload) != "hi" {
				t.Fatalf("unexpected data event: %+v", data)
			}
			break
		}
	}
}

func TestInviteReject(t *testing.T) {
	mesh := NewMesh()
	host := mesh.Node("host", "Host")
	client := mesh.Node("client", "Client")

	if err := client.Invite(context.Background(), "host", nil, time.Second); err != nil {
		t.Fatal(err)
	}
	inv := recvEvent(t, host.Events()).(transport.Invitation)
	inv.Respond(false)

	for {
		ev := recvEvent(t, client.Events())
		if cc, ok := ev.(transport.ConnectionChanged); ok && cc.State == transport.ConnNotConnected {
			return
		}
	}
}

func TestInviteTimeout(t *testing.T) {
	mesh := NewMesh()
	mesh.Node("host", "Host")
	client := mesh.Node("client", "Client")

	// The host never drains its invitation, so the timeout resolves it.
	if err := client.Invite(context.Background(), "host", nil, 20*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	for {
		ev := recvEvent(t, client.Events())
		if cc, ok := ev.(transport.ConnectionChanged); ok && cc.State == transport.ConnNotConnected {
			return
		}
	}
}

func TestInviteUnknownPeer(t *testing.T) {
	mesh := NewMesh()
	client := mesh.Node("client", "Client")

	err := client.Invite(context.Background(), "ghost", nil, time.Second)
	if !errors.Is(err, transport.ErrPeerUnknown) {
		t.Fatalf("expected ErrPeerUnknown, got %v", err)
	}
}

func TestCapacityRejectsExtraPeer(t *testing.T) {
	mesh := NewMesh()
	host := mesh.Node("host", "Host")

	for i := 0; i < transport.MaxPeers-1; i++ {
		id := transport.PeerID(fmt.Sprintf("client-%d", i))
		n := mesh.Node(id, string(id))
		if err := n.Invite(context.Background(), "host", nil, time.Second); err != nil {
			t.Fatal(err)
		}
		acceptNext(t, host)
		waitConnected(t, n, "host")
	}

	extra := mesh.Node("client-extra", "Extra")
	if err := extra.Invite(context.Background(), "host", nil, time.Second); err != nil {
		t.Fatal(err)
	}
	for {
		ev := recvEvent(t, extra.Events())
		if cc, ok := ev.(transport.ConnectionChanged); ok && cc.State == transport.ConnNotConnected {
			return
		}
	}
}

func TestSendToUnconnectedPeerFails(t *testing.T) {
	mesh := NewMesh()
	client := mesh.Node("client", "Client")
	mesh.Node("host", "Host")

	err := client.Send([]transport.PeerID{"host"}, []byte("hi"))
	if !errors.Is(err, transport.ErrPeerNotConnected) {
		t.Fatalf("expected ErrPeerNotConnected, got %v", err)
	}
}

func TestDisconnectAllNotifiesPeers(t *testing.T) {
	mesh := NewMesh()
	host := mesh.Node("host", "Host")
	client := mesh.Node("client", "Client")

	if err := client.Invite(context.Background(), "host", nil, time.Second); err != nil {
		t.Fatal(err)
	}
	acceptNext(t, host)
	waitConnected(t, client, "host")
	waitConnected(t, host, "client")

	client.DisconnectAll()

	for {
		ev := recvEvent(t, host.Events())
		if cc, ok := ev.(transport.ConnectionChanged); ok && cc.Peer.ID == "client" && cc.State == transport.ConnNotConnected {
			break
		}
	}
	if err := host.Send([]transport.PeerID{"client"}, []byte("hi")); !errors.Is(err, transport.ErrPeerNotConnected) {
		t.Fatalf("expected ErrPeerNotConnected after disconnect, got %v", err)
	}
}
