package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/inkstamp/paperless-stamp/config"
)

// Stores bundles the backends selected by the store driver
type Stores struct {
	History  History
	Settings Settings
	Journal  Journal

	closers []func() error
}

// Open builds the stores for cfg.Store.Driver. The redis driver keeps
// settings and the journal in redis and history in bounded memory.
func Open(ctx context.Context, cfg *config.Config) (*Stores, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		slog.Warn("memory store selected, claims interrupted by a restart cannot be reconciled")
		return &Stores{
			History:  NewMemoryHistory(cfg.Store.MaxOutcomes),
			Settings: NewMemorySettings(),
			Journal:  NewMemoryJournal(),
		}, nil

	case config.DriverSQLite:
		db, err := OpenSQLite(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		history, err := NewSQLiteHistory(db, cfg.Store.MaxOutcomes)
		if err != nil {
			db.Close()
			return nil, err
		}
		settings, err := NewSQLiteSettings(db)
		if err != nil {
			db.Close()
			return nil, err
		}
		journal, err := NewSQLiteJournal(db)
		if err != nil {
			db.Close()
			return nil, err
		}
		slog.Info("sqlite store initialized", "path", cfg.Store.Path, "max_outcomes", cfg.Store.MaxOutcomes)
		return &Stores{History: history, Settings: settings, Journal: journal, closers: []func() error{db.Close}}, nil

	case config.DriverRedis:
		client := NewRedisClient(&cfg.Redis)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		slog.Info("redis store initialized", "addr", cfg.Redis.Addr, "key_prefix", cfg.Redis.KeyPrefix)
		return &Stores{
			History:  NewMemoryHistory(cfg.Store.MaxOutcomes),
			Settings: NewRedisSettings(client, cfg.Redis.KeyPrefix),
			Journal:  NewRedisJournal(client, cfg.Redis.KeyPrefix),
			closers:  []func() error{client.Close},
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// Close releases database connections
func (s *Stores) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
