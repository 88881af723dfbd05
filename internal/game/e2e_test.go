package game

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/seanwh01/football-player-trivia-sub000/internal/session"
	"github.com/seanwh01/football-player-trivia-sub000/internal/transport/memory"
)

// TestFullGameOverMesh runs a complete one-question game through the real
// session managers and the in-memory transport: discovery, join, question,
// both answers, leaderboard and the terminal game end.
func TestFullGameOverMesh(t *testing.T) {
	mesh := memory.NewMesh()
	logger := zap.NewNop()

	hostNode := mesh.Node("host-peer", "host-peer")
	clientNode := mesh.Node("client-peer", "client-peer")

	hostMgr := session.NewManager(context.Background(), hostNode, logger, session.WithInviteTimeout(2*time.Second))
	t.Cleanup(hostMgr.Close)
	clientMgr := session.NewManager(context.Background(), clientNode, logger, session.WithInviteTimeout(2*time.Second))
	t.Cleanup(clientMgr.Close)

	settings := soloSettings(1)
	orch := NewOrchestrator(context.Background(), hostMgr, fixtureStore(), nil, nil, settings, "Host", logger,
		WithSeed(7), WithRevealDelays(10*time.Millisecond, 10*time.Millisecond))
	go orch.Run(hostMgr.Events())
	t.Cleanup(orch.Stop)

	client := NewClient(context.Background(), clientMgr, logger)
	go client.Run(clientMgr.Events())
	t.Cleanup(client.Stop)

	if err := hostMgr.StartHosting("Host", settings); err != nil {
		t.Fatal(err)
	}
	if err := clientMgr.StartBrowsing("Ann"); err != nil {
		t.Fatal(err)
	}

	found := waitClient[HostDiscovered](t, client)
	if err := clientMgr.JoinHost(found.Host.PeerID); err != nil {
		t.Fatal(err)
	}
	waitClient[JoinedSession](t, client)
	// Give the orchestrator a beat to register the join from its event stream.
	time.Sleep(100 * time.Millisecond)

	if err := orch.Start(); err != nil {
		t.Fatal(err)
	}
	waitClient[SettingsReceived](t, client)
	question := waitClient[QuestionReceived](t, client)
	if question.Round != 1 {
		t.Fatalf("client round = %d", question.Round)
	}

	if err := client.SubmitAnswer("Mahomes"); err != nil {
		t.Fatal(err)
	}
	verdict := waitClient[VerdictReceived](t, client)
	if !verdict.Verdict.Correct || verdict.Verdict.Points < 1 {
		t.Fatalf("client verdict: %+v", verdict.Verdict)
	}

	if err := orch.SubmitAnswer("Patrick Mahomes"); err != nil {
		t.Fatal(err)
	}
	waitHost[SelfVerdict](t, orch)

	resolved := waitHost[RoundResolved](t, orch)
	if len(resolved.Board.Entries) != 2 {
		t.Fatalf("host board: %+v", resolved.Board)
	}
	board := waitClient[BoardReceived](t, client)
	if board.Score < 1 {
		t.Fatalf("client score on board = %d", board.Score)
	}

	finished := waitHost[GameFinished](t, orch)
	if !finished.Board.Final {
		t.Fatal("final board not marked final")
	}
	over := waitClient[GameOver](t, client)
	if len(over.Board.Entries) != 2 {
		t.Fatalf("client final board: %+v", over.Board)
	}

	// The client marked the session over, so the host leaving now is a clean
	// shutdown, not a mid-game loss.
	clientMgr.Snapshot()
	hostMgr.Leave()

	select {
	case ev, ok := <-client.Events():
		if !ok {
			break
		}
		if _, bad := ev.(HostLeft); bad {
			t.Fatal("HostLeft raised after a legitimate game end")
		}
	case <-time.After(300 * time.Millisecond):
	}

	if snap := clientMgr.Snapshot(); snap.State != session.StateDisconnected {
		t.Fatalf("client session state after shutdown = %q", snap.State)
	}
}
