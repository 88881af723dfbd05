package main

import (
	"os"

	"github.com/seanwh01/football-player-trivia-sub000/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
