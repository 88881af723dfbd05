package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seanwh01/football-player-trivia-sub000/internal/domain"
	"github.com/seanwh01/football-player-trivia-sub000/internal/game"
)

func newJoinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join",
		Short: "Browse for hosts and join a trivia session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJoin(cmd.Context())
		},
	}
}

func runJoin(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	env, err := buildEnv(ctx)
	if err != nil {
		return err
	}
	defer env.close()

	client := game.NewClient(ctx, env.manager, env.logger)
	go client.Run(env.manager.Events())
	defer client.Stop()

	if err := env.manager.StartBrowsing(playerName); err != nil {
		return err
	}
	fmt.Printf("Browsing as %q. Type 'join <n>' to join a host.\n", playerName)

	lines := readLines(ctx)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	var hosts []domain.Participant
	for {
		select {
		case <-stop:
			fmt.Println("Leaving...")
			env.manager.Leave()
			return nil
		case <-ctx.Done():
			return nil
		case ev, ok := <-client.Events():
			if !ok {
				return nil
			}
			hosts = printClientEvent(ev, hosts)
		case line, ok := <-lines:
			if !ok {
				env.manager.Leave()
				return nil
			}
			handleJoinLine(env, client, hosts, line)
		}
	}
}

func handleJoinLine(e *env, client *game.Client, hosts []domain.Participant, line string) {
	switch {
	case line == "":
	case strings.HasPrefix(line, "join "):
		n, err := strconv.Atoi(strings.TrimPrefix(line, "join "))
		if err != nil || n < 1 || n > len(hosts) {
			fmt.Println("No such host.")
			return
		}
		if err := e.manager.JoinHost(hosts[n-1].PeerID); err != nil {
			fmt.Println("Join failed:", err)
		}
	case line == "hint":
		if err := client.RequestHint(domain.HintGeneral); err != nil {
			fmt.Println("No hint:", err)
		}
	case line == "hint!":
		if err := client.RequestHint(domain.HintObvious); err != nil {
			fmt.Println("No hint:", err)
		}
	default:
		if err := client.SubmitAnswer(line); err != nil {
			fmt.Println("Answer rejected:", err)
		}
	}
}

func printClientEvent(ev game.ClientEvent, hosts []domain.Participant) []domain.Participant {
	switch e := ev.(type) {
	case game.HostDiscovered:
		hosts = append(hosts, e.Host)
		fmt.Printf("[%d] %s is hosting\n", len(hosts), e.Host.DisplayName)
	case game.HostGone:
		for i, h := range hosts {
			if h.PeerID == e.PeerID {
				hosts = append(hosts[:i], hosts[i+1:]...)
				break
			}
		}
		fmt.Println("A host went away.")
	case game.JoinedSession:
		fmt.Printf("Joined %s. Waiting for the game to start.\n", e.Host.DisplayName)
	case game.JoinRejected:
		fmt.Println("Could not join: the game is full or the host declined.")
	case game.SettingsReceived:
		fmt.Printf("Game on: %d questions, %ds each.\n", e.Settings.QuestionCount, e.Settings.TimeLimitSec)
	case game.QuestionReceived:
		fmt.Printf("\nQ%d: %s\n> ", e.Round, e.Question.Prompt)
	case game.AnswerSent:
		fmt.Println("Answer sent, waiting for the host...")
	case game.VerdictReceived:
		fmt.Printf("%s (+%d)\n", e.Verdict.Message, e.Verdict.Points)
	case game.HintReceived:
		fmt.Println("Hint:", e.Text)
	case game.TimedOut:
		fmt.Println("Time! No answer submitted.")
	case game.BoardReceived:
		fmt.Printf("%s\n(your score: %d)\n", formatBoard(e.Board), e.Score)
	case game.GameOver:
		fmt.Printf("\nGame over. Final standings:\n%s\n", formatBoard(e.Board))
	case game.HostLeft:
		fmt.Println("\nThe host left the game.")
	}
	return hosts
}
