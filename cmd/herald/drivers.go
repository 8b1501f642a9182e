package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	_ "modernc.org/sqlite"

	"github.com/petrijr/herald/internal/config"
	"github.com/petrijr/herald/internal/persistence"
	"github.com/petrijr/herald/internal/taskqueue"
)

// backends owns the connections opened for the configured store and queue.
// Connections are shared when both use the same driver and DSN.
type backends struct {
	sqlDBs  map[string]*sql.DB
	redises map[string]*redis.Client
	mongos  map[string]*mongo.Client
}

func newBackends() *backends {
	return &backends{
		sqlDBs:  map[string]*sql.DB{},
		redises: map[string]*redis.Client{},
		mongos:  map[string]*mongo.Client{},
	}
}

func (b *backends) sqlDB(driver, dsn string) (*sql.DB, error) {
	key := driver + "|" + dsn
	if db, ok := b.sqlDBs[key]; ok {
		return db, nil
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	b.sqlDBs[key] = db
	return db, nil
}

func (b *backends) redis(dsn string) (*redis.Client, error) {
	if c, ok := b.redises[dsn]; ok {
		return c, nil
	}
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opts)
	b.redises[dsn] = c
	return c, nil
}

func (b *backends) mongo(ctx context.Context, dsn string) (*mongo.Client, error) {
	if c, ok := b.mongos[dsn]; ok {
		return c, nil
	}
	c, err := mongo.Connect(ctx, options.Client().ApplyURI(dsn))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	b.mongos[dsn] = c
	return c, nil
}

// openStore builds the persistence configured in cfg.Store.
func (b *backends) openStore(ctx context.Context, cfg *config.Config) (persistence.Persistence, error) {
	s := cfg.Store
	switch s.Driver {
	case "memory":
		return persistence.NewInMemoryPersistence(), nil
	case "sqlite":
		db, err := b.sqlDB("sqlite", s.DSN)
		if err != nil {
			return persistence.Persistence{}, err
		}
		return persistence.NewSQLitePersistence(db)
	case "postgres":
		db, err := b.sqlDB("pgx", s.DSN)
		if err != nil {
			return persistence.Persistence{}, err
		}
		return persistence.NewPostgresPersistence(db)
	case "redis":
		c, err := b.redis(s.DSN)
		if err != nil {
			return persistence.Persistence{}, err
		}
		return persistence.NewRedisPersistence(c, s.Database), nil
	case "mongo":
		c, err := b.mongo(ctx, s.DSN)
		if err != nil {
			return persistence.Persistence{}, err
		}
		return persistence.NewMongoPersistence(c, s.Database), nil
	}
	return persistence.Persistence{}, fmt.Errorf("unknown store driver %q", s.Driver)
}

// openQueue builds the task queue configured in cfg.Queue.
func (b *backends) openQueue(ctx context.Context, cfg *config.Config) (taskqueue.Queue, error) {
	q := cfg.Queue
	switch q.Driver {
	case "memory":
		return taskqueue.NewInMemoryQueue(), nil
	case "sqlite":
		db, err := b.sqlDB("sqlite", q.DSN)
		if err != nil {
			return nil, err
		}
		return taskqueue.NewSQLiteQueue(db)
	case "postgres":
		db, err := b.sqlDB("pgx", q.DSN)
		if err != nil {
			return nil, err
		}
		return taskqueue.NewPostgresQueue(db)
	case "redis":
		c, err := b.redis(q.DSN)
		if err != nil {
			return nil, err
		}
		return taskqueue.NewRedisQueue(c, cfg.Store.Database), nil
	case "mongo":
		c, err := b.mongo(ctx, q.DSN)
		if err != nil {
			return nil, err
		}
		return taskqueue.NewMongoQueue(c, cfg.Store.Database, ""), nil
	}
	return nil, fmt.Errorf("unknown queue driver %q", q.Driver)
}

func (b *backends) Close(ctx context.Context) error {
	var errs []error
	for _, db := range b.sqlDBs {
		errs = append(errs, db.Close())
	}
	for _, c := range b.redises {
		errs = append(errs, c.Close())
	}
	for _, c := range b.mongos {
		errs = append(errs, c.Disconnect(ctx))
	}
	return errors.Join(errs...)
}
