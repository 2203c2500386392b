package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tickscope/config"
	"tickscope/internal/ibkr/expiry"
	"tickscope/internal/ibkr/memorystore"
	"tickscope/internal/ibkr/occ"
	"tickscope/internal/ibkr/resolver"
	"tickscope/internal/ibkr/snapshot"
	"tickscope/pkg/ibkr"
	"tickscope/pkg/secrets"
	"tickscope/pkg/storage/postgres"

	"go.uber.org/zap"
)

// ErrNothingToWatch is returned by Watch when neither ticker is given.
var ErrNothingToWatch = errors.New("no stock or option to watch")

// Collector ties lookups, priming and the streaming manager together.
type Collector struct {
	manager  *Manager
	resolver *resolver.Resolver
	primer   *snapshot.Primer
	db       *postgres.PostgresClient // nil when postgres is disabled
	logger   *zap.Logger
}

// StartCollector builds the gateway clients, the optional contract cache and
// the manager, starts the background jobs and, when the config names a
// ticker, starts watching it. A failing initial watch is logged, not returned:
// the gateway may come up later and callers can retry through Watch.
func StartCollector(ctx context.Context, cfg *config.Config, store secrets.Store, logger *zap.Logger) (*Collector, error) {
	rest := ibkr.NewRESTClient(cfg.Gateway.REST.BaseURL, cfg.Gateway.REST.Timeout, cfg.Gateway.InsecureSkipVerify)
	ws := ibkr.NewWSClient(cfg.Gateway.WS.URL, ibkr.WSOptions{
		HandshakeTimeout:   cfg.Gateway.WS.HandshakeTimeout,
		WriteTimeout:       cfg.Gateway.WS.WriteTimeout,
		InsecureSkipVerify: cfg.Gateway.InsecureSkipVerify,
	}, logger)

	var (
		db    *postgres.PostgresClient
		cache resolver.Cache
	)
	if cfg.Postgres.Enabled {
		var err error
		if db, err = openContractCache(ctx, cfg, store); err != nil {
			return nil, err
		}
		cache = db
	}

	c := &Collector{
		manager:  NewManager(ws, rest, memorystore.NewSeriesStore(cfg.Stream.Retention()), logger),
		resolver: resolver.New(rest, cache, logger),
		primer:   &snapshot.Primer{API: rest, Timeout: cfg.Gateway.REST.Timeout, Logger: logger},
		db:       db,
		logger:   logger,
	}

	pruner := &expiry.MidnightPruner{Prune: c.pruneExpired, Logger: logger}
	pruner.Start(ctx)

	go c.logStatus(ctx, cfg.Stream.StatusInterval)

	if cfg.Stream.Stock != "" || cfg.Stream.Option != "" {
		if _, err := c.Watch(ctx, cfg.Stream.Stock, cfg.Stream.Option); err != nil {
			logger.Warn("initial watch failed", zap.String("stock", cfg.Stream.Stock),
				zap.String("option", cfg.Stream.Option), zap.Error(err))
		}
	}

	return c, nil
}

func openContractCache(ctx context.Context, cfg *config.Config, store secrets.Store) (*postgres.PostgresClient, error) {
	env := cfg.Log.Environment
	dsn, err := cfg.Postgres.DSN(ctx, env, store, cfg.Secrets)
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	adminDSN, err := cfg.Postgres.AdminDSN(ctx, env, store, cfg.Secrets)
	if err != nil {
		return nil, fmt.Errorf("postgres admin dsn: %w", err)
	}
	db, err := postgres.InitializeAndMigrateContractRecord(ctx, cfg.Postgres, dsn, adminDSN, true)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DB: %w", err)
	}
	return db, nil
}

// Watch resolves the tickers, primes the gateway and (re)connects the stream.
// With only an option given, its underlying is watched as well. Resolver
// errors abort before any connection is attempted; a priming failure does not.
func (c *Collector) Watch(ctx context.Context, stock, option string) ([]ibkr.ConID, error) {
	if stock == "" && option != "" {
		if t, err := occ.Parse(option); err == nil {
			stock = t.Root
		}
	}
	if stock == "" && option == "" {
		return nil, ErrNothingToWatch
	}

	var ids []ibkr.ConID
	if stock != "" {
		id, err := c.resolver.ResolveStock(ctx, stock)
		if err != nil {
			return nil, fmt.Errorf("resolve stock %s: %w", stock, err)
		}
		ids = append(ids, id)
	}
	if option != "" {
		id, err := c.resolver.ResolveOption(ctx, option)
		if err != nil {
			return nil, fmt.Errorf("resolve option %s: %w", option, err)
		}
		ids = append(ids, id)
	}

	if err := c.primer.Prime(ctx, ids); err != nil {
		c.logger.Warn("market data priming failed, connecting anyway", zap.Error(err))
	}

	if err := c.manager.Connect(ctx, ids); err != nil {
		return ids, err
	}
	return ids, nil
}

func (c *Collector) Manager() *Manager {
	return c.manager
}

// Close disconnects the stream and releases the database.
func (c *Collector) Close() error {
	c.manager.Disconnect()
	c.manager.Wait()
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *Collector) pruneExpired(ctx context.Context, cutoff time.Time) (int, error) {
	n := c.resolver.ForgetExpired(cutoff)
	if c.db == nil {
		return n, nil
	}
	rows, err := c.db.DeleteExpiredContracts(ctx, cutoff)
	return n + int(rows), err
}

// logStatus periodically prints the series counts for visibility.
func (c *Collector) logStatus(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := c.manager.Status()
			trades, quotes, volumes := c.manager.Store().Counts()
			fields := []zap.Field{
				zap.String("status", string(st.Status)),
				zap.Int("trades", trades),
				zap.Int("quotes", quotes),
				zap.Int("volumes", volumes),
			}
			if st.LastErr != nil {
				fields = append(fields, zap.NamedError("last_error", st.LastErr))
			}
			c.logger.Info("current series", fields...)
		}
	}
}
