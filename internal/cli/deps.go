package cli

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prepscuola/simulazioni-backend/internal/config"
	"github.com/prepscuola/simulazioni-backend/internal/database"
	"github.com/prepscuola/simulazioni-backend/internal/logger"
)

// deps are the connections a command needs. Close releases them.
type deps struct {
	cfg  *config.Config
	log  zerolog.Logger
	pool *pgxpool.Pool
	rdb  *redis.Client
}

func connect(ctx context.Context, withRedis bool) (*deps, error) {
	cfg := config.Load()
	d := &deps{cfg: cfg, log: logger.Setup(cfg.LogLevel, cfg.LogFormat)}

	pool, err := database.NewPostgresPool(ctx, cfg, d.log)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	d.pool = pool

	if withRedis {
		rdb, err := database.NewRedisClient(ctx, cfg, d.log)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		d.rdb = rdb
	}
	return d, nil
}

func (d *deps) Close() {
	if d.rdb != nil {
		_ = d.rdb.Close()
	}
	d.pool.Close()
}
