package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seanwh01/football-player-trivia-sub000/internal/domain"
	"github.com/seanwh01/football-player-trivia-sub000/internal/game"
)

func newHostCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "host",
		Short: "Host a trivia session on the local network",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost(cmd.Context())
		},
	}
}

func runHost(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	env, err := buildEnv(ctx)
	if err != nil {
		return err
	}
	defer env.close()

	orch := game.NewOrchestrator(ctx, env.manager, env.lookup, env.validator, env.hints,
		env.cfg.Game, playerName, env.logger)
	go orch.Run(env.manager.Events())
	defer orch.Stop()

	if err := env.manager.StartHosting(playerName, env.cfg.Game); err != nil {
		return err
	}
	fmt.Printf("Hosting as %q. Type 'start' when everyone is in.\n", playerName)

	lines := readLines(ctx)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-stop:
			fmt.Println("Shutting down...")
			env.manager.Leave()
			return nil
		case <-ctx.Done():
			return nil
		case ev, ok := <-orch.Events():
			if !ok {
				return nil
			}
			printHostEvent(ev)
		case line, ok := <-lines:
			if !ok {
				env.manager.Leave()
				return nil
			}
			handleHostLine(orch, line)
		}
	}
}

func handleHostLine(orch *game.Orchestrator, line string) {
	switch {
	case line == "":
	case line == "start":
		if err := orch.Start(); err != nil {
			fmt.Println("Cannot start:", err)
		}
	case line == "hint":
		if err := orch.RequestHint(domain.HintGeneral); err != nil {
			fmt.Println("No hint:", err)
		}
	case line == "hint!":
		if err := orch.RequestHint(domain.HintObvious); err != nil {
			fmt.Println("No hint:", err)
		}
	default:
		if err := orch.SubmitAnswer(line); err != nil {
			fmt.Println("Answer rejected:", err)
		}
	}
}

func printHostEvent(ev game.HostEvent) {
	switch e := ev.(type) {
	case game.GameStarted:
		fmt.Printf("Game on: %d questions, %ds each.\n", e.Settings.QuestionCount, e.Settings.TimeLimitSec)
	case game.QuestionStarted:
		fmt.Printf("\nQ%d: %s\n> ", e.Round, e.Question.Prompt)
	case game.SelfVerdict:
		fmt.Printf("%s (+%d)\n", e.Verdict.Message, e.Verdict.Points)
	case game.HintReady:
		fmt.Println("Hint:", e.Text)
	case game.RoundResolved:
		fmt.Printf("Answer: %s\n%s\n", e.Answer, formatBoard(e.Board))
	case game.GameFinished:
		fmt.Printf("\nFinal standings:\n%s\n", formatBoard(e.Board))
	}
}

func formatBoard(board domain.Leaderboard) string {
	var b strings.Builder
	for i, entry := range board.Entries {
		fmt.Fprintf(&b, "%d. %s: %d pts\n", i+1, entry.DisplayName, entry.Score)
	}
	return strings.TrimRight(b.String(), "\n")
}

func readLines(ctx context.Context) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}
