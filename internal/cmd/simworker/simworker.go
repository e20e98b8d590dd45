// Package simworker parses simworker command flags and launches the
// simulation worker runtime.
package simworker

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/redgulch/frontier/internal/platform/cmd"
	simworkerserver "github.com/redgulch/frontier/internal/services/simworker/app"
)

// Config holds simworker command configuration.
type Config struct {
	Port    int           `env:"FRONTIER_SIMWORKER_PORT" envDefault:"8090"`
	DBPath  string        `env:"FRONTIER_SIMWORKER_DB_PATH" envDefault:"data/frontier.db"`
	LockTTL time.Duration `env:"FRONTIER_SIMWORKER_LOCK_TTL" envDefault:"5m"`
	Seed    int64         `env:"FRONTIER_SIMWORKER_SEED" envDefault:"0"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The simworker health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The simulation SQLite database path")
	fs.DurationVar(&cfg.LockTTL, "lock-ttl", cfg.LockTTL, "Job lock lease duration")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "Fixed engine rng seed (0 = random)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the simworker runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSimWorker, func(context.Context) error {
		return simworkerserver.Run(ctx, simworkerserver.RuntimeConfig{
			Port:    cfg.Port,
			DBPath:  cfg.DBPath,
			LockTTL: cfg.LockTTL,
			Seed:    cfg.Seed,
		})
	})
}
