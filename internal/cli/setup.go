package cli

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/seanwh01/football-player-trivia-sub000/internal/config"
	"github.com/seanwh01/football-player-trivia-sub000/internal/game"
	"github.com/seanwh01/football-player-trivia-sub000/internal/infra/hintsvc"
	redisinfra "github.com/seanwh01/football-player-trivia-sub000/internal/infra/redis"
	"github.com/seanwh01/football-player-trivia-sub000/internal/infra/sqlite"
	"github.com/seanwh01/football-player-trivia-sub000/internal/session"
	"github.com/seanwh01/football-player-trivia-sub000/internal/transport/ws"
)

// env bundles everything both subcommands wire up from config.
type env struct {
	cfg     config.Config
	logger  *zap.Logger
	manager *session.Manager
	lookup  game.PlayerLookup
	// validator and hints are nil when no backend is configured; the game
	// layer then uses its local fallbacks directly.
	validator game.AnswerValidator
	hints     game.HintService

	store *sqlite.PlayerStore
}

func buildEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}

	tcfg := ws.Config{
		ListenAddr:     cfg.Transport.ListenAddr,
		DiscoveryPort:  cfg.Transport.DiscoveryPort,
		BeaconInterval: config.DurationOr(cfg.Transport.BeaconInterval, 2*time.Second),
		TLSCert:        cfg.Transport.TLSCert,
		TLSKey:         cfg.Transport.TLSKey,
	}
	tr := ws.New(tcfg, uuid.NewString(), logger)
	manager := session.NewManager(ctx, tr, logger)

	store, err := sqlite.Open(cfg.Players.SQLitePath)
	if err != nil {
		manager.Close()
		return nil, err
	}
	var lookup game.PlayerLookup = store
	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		lookup = redisinfra.NewAnswerCache(client, store, config.DurationOr(cfg.Redis.TTL, 10*time.Minute))
	}

	e := &env{cfg: cfg, logger: logger, manager: manager, lookup: lookup, store: store}
	if cfg.HintService.URL != "" {
		svc := hintsvc.NewClient(cfg.HintService.URL, cfg.HintService.APIKey,
			config.DurationOr(cfg.HintService.Timeout, 10*time.Second))
		e.validator = svc
		e.hints = svc
	}
	return e, nil
}

func (e *env) close() {
	e.manager.Close()
	if e.store != nil {
		_ = e.store.Close()
	}
	_ = e.logger.Sync()
}
