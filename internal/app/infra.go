package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gotosleep/authlogic-openid/internal/account"
	"github.com/gotosleep/authlogic-openid/internal/cache"
	"github.com/gotosleep/authlogic-openid/internal/config"
	"github.com/gotosleep/authlogic-openid/internal/db"
	"github.com/gotosleep/authlogic-openid/internal/logger"
	"github.com/gotosleep/authlogic-openid/internal/redis"
)

const cachePrefix = "authlogic:"

type Infra struct {
	Accounts account.Store
	Cache    cache.Cache

	closers []func() error
}

func (i *Infra) Close() error {
	var first error
	for _, c := range i.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func setupInfra(ctx context.Context, cfg *config.Config) (*Infra, error) {
	infra := &Infra{}

	switch cfg.Database.Driver {
	case "memory":
		infra.Accounts = account.NewMemoryStore()
		logger.L().Warn("using in-memory account store", logger.Component("infra"))
	default:
		conn, err := db.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		infra.closers = append(infra.closers, conn.Close)

		if err := db.Migrate(ctx, conn.DB); err != nil {
			_ = infra.Close()
			return nil, err
		}
		infra.Accounts = account.NewPostgresStore(conn)
		logger.L().Info("database ready", logger.Component("infra"), logger.String("driver", cfg.Database.Driver))
	}

	switch cfg.Cache.Kind {
	case "memory":
		infra.Cache = cache.NewMemory(time.Hour)
	case "redis":
		client, err := redis.New(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword)
		if err != nil {
			_ = infra.Close()
			return nil, err
		}
		infra.closers = append(infra.closers, client.Close)
		infra.Cache = cache.NewRedis(client.Client, cachePrefix)
		logger.L().Info("redis ready", logger.Component("infra"))
	default:
		_ = infra.Close()
		return nil, fmt.Errorf("app: unknown cache kind %q", cfg.Cache.Kind)
	}

	return infra, nil
}
