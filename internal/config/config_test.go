package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
transport:
  discoveryPort: 50123
redis:
  addr: localhost:6379
  ttl: 5m
game:
  questionCount: 3
  timeLimitSec: 15
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 50123, cfg.Transport.DiscoveryPort)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, 3, cfg.Game.QuestionCount)
	require.Equal(t, 15, cfg.Game.TimeLimitSec)
	// Untouched keys keep their defaults.
	require.Equal(t, "football.db", cfg.Players.SQLitePath)
	require.Equal(t, []string{"QB", "RB", "WR"}, cfg.Game.Positions)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.True(t, os.IsNotExist(err))
	require.Equal(t, Default(), cfg)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("transport: ["), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestDurationOr(t *testing.T) {
	require.Equal(t, 5*time.Minute, DurationOr("5m", time.Second))
	require.Equal(t, time.Second, DurationOr("", time.Second))
	require.Equal(t, time.Second, DurationOr("soon", time.Second))
}
