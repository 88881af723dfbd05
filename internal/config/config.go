package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/seanwh01/football-player-trivia-sub000/internal/domain"
)

type Config struct {
	Transport struct {
		ListenAddr     string `yaml:"listenAddr"`
		DiscoveryPort  int    `yaml:"discoveryPort"`
		BeaconInterval string `yaml:"beaconInterval"`
		TLSCert        string `yaml:"tlsCert"`
		TLSKey         string `yaml:"tlsKey"`
	} `yaml:"transport"`
	Players struct {
		SQLitePath string `yaml:"sqlitePath"`
	} `yaml:"players"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	HintService struct {
		URL     string `yaml:"url"`
		APIKey  string `yaml:"apiKey"`
		Timeout string `yaml:"timeout"`
	} `yaml:"hintService"`
	Game domain.GameSettings `yaml:"game"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Default returns a playable configuration when no file is present.
func Default() Config {
	cfg := Config{}
	cfg.Transport.ListenAddr = ":0"
	cfg.Transport.DiscoveryPort = 47850
	cfg.Players.SQLitePath = "football.db"
	cfg.Game = domain.GameSettings{
		Positions:     []string{"QB", "RB", "WR"},
		Teams:         []string{"KC", "BUF", "PHI", "SF"},
		YearStart:     2022,
		YearEnd:       2025,
		QuestionCount: 5,
		TimeLimitSec:  30,
		HintsEnabled:  true,
		RankLimit:     3,
	}
	return cfg
}

// DurationOr parses a duration string or returns the fallback if empty or
// invalid.
func DurationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
