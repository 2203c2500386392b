package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"tickscope/internal/ibkr/occ"
	"tickscope/pkg/ibkr"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	secTypeStock  = "STK"
	secTypeOption = "OPT"
)

// SecDefAPI is the part of the gateway REST API used for lookups.
type SecDefAPI interface {
	SearchSecDef(ctx context.Context, symbol string) ([]ibkr.SecDefSearchResult, error)
	SecDefInfo(ctx context.Context, q ibkr.InfoQuery) ([]ibkr.SecDefInfo, error)
}

// Cache is an optional persistent second level behind the in-memory map.
type Cache interface {
	LookupContract(ctx context.Context, key string) (ibkr.ConID, bool, error)
	SaveContract(ctx context.Context, key, secType string, id ibkr.ConID, expiry *time.Time) error
}

type entry struct {
	id     ibkr.ConID
	expiry *time.Time
}

// Resolver maps stock symbols and OCC option tickers to contract ids.
// Concurrent lookups of one key share a single gateway round trip.
type Resolver struct {
	api    SecDefAPI
	cache  Cache
	logger *zap.Logger

	group singleflight.Group

	mu   sync.Mutex
	memo map[string]entry // "STK|BA" / "OPT|BA250620P00180000"
}

// New creates a Resolver. cache may be nil.
func New(api SecDefAPI, cache Cache, logger *zap.Logger) *Resolver {
	return &Resolver{
		api:    api,
		cache:  cache,
		logger: logger,
		memo:   make(map[string]entry),
	}
}

func cacheKey(secType, ticker string) string {
	return secType + "|" + ticker
}

// ResolveStock returns the conid of symbol, preferring the listing that also
// has options.
func (r *Resolver) ResolveStock(ctx context.Context, symbol string) (ibkr.ConID, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return 0, fmt.Errorf("empty symbol: %w", ErrNotFound)
	}

	return r.lookup(ctx, cacheKey(secTypeStock, symbol), secTypeStock, nil, func(ctx context.Context) (ibkr.ConID, error) {
		results, err := r.api.SearchSecDef(ctx, symbol)
		if err != nil {
			return 0, serverError(err)
		}
		if len(results) == 0 {
			return 0, ErrNotFound
		}

		pick := results[0]
		for _, res := range results {
			if res.HasSecTypes(secTypeStock, secTypeOption) {
				pick = res
				break
			}
		}
		if pick.ConID <= 0 {
			return 0, ErrNotFound
		}
		return pick.ConID, nil
	})
}

// ResolveOption validates an OCC ticker, resolves its underlying and then picks
// the option row whose maturity matches the ticker's expiry.
func (r *Resolver) ResolveOption(ctx context.Context, ticker string) (ibkr.ConID, error) {
	ticker = strings.TrimSpace(ticker)
	parsed, err := occ.Parse(ticker)
	if err != nil {
		return 0, &InvalidTickerError{Ticker: ticker, Reason: err}
	}
	expiry := parsed.Expiry

	return r.lookup(ctx, cacheKey(secTypeOption, ticker), secTypeOption, &expiry, func(ctx context.Context) (ibkr.ConID, error) {
		underlying, err := r.ResolveStock(ctx, parsed.Root)
		if err != nil {
			return 0, err
		}

		rows, err := r.api.SecDefInfo(ctx, ibkr.InfoQuery{
			ConID:    underlying,
			SecType:  secTypeOption,
			Month:    parsed.MonthCode(),
			Right:    string(parsed.Right),
			Strike:   parsed.PlainStrike(),
			Exchange: "SMART",
		})
		if err != nil {
			return 0, serverError(err)
		}
		if len(rows) == 0 {
			return 0, ErrNotFound
		}

		pick := rows[0]
		for _, row := range rows {
			if row.MaturityDate == parsed.MaturityDate() {
				pick = row
				break
			}
		}
		if pick.ConID <= 0 {
			return 0, ErrNotFound
		}
		return pick.ConID, nil
	})
}

// ForgetExpired drops in-memory options whose expiry day is before now's day.
func (r *Resolver) ForgetExpired(now time.Time) int {
	today := now.UTC().Truncate(24 * time.Hour)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, e := range r.memo {
		if e.expiry != nil && e.expiry.Before(today) {
			delete(r.memo, key)
			removed++
		}
	}
	return removed
}

func (r *Resolver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.memo)
}

func (r *Resolver) cached(key string) (ibkr.ConID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.memo[key]
	return e.id, ok
}

func (r *Resolver) remember(key string, id ibkr.ConID, expiry *time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memo[key] = entry{id: id, expiry: expiry}
}

// lookup checks memory, then the persistent cache, then calls fetch. Failures
// are never cached.
func (r *Resolver) lookup(ctx context.Context, key, secType string, expiry *time.Time,
	fetch func(ctx context.Context) (ibkr.ConID, error)) (ibkr.ConID, error) {
	if id, ok := r.cached(key); ok {
		return id, nil
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		// a flight for this key may have finished since the check above
		if id, ok := r.cached(key); ok {
			return id, nil
		}
		if r.cache != nil {
			id, ok, err := r.cache.LookupContract(ctx, key)
			if err != nil {
				r.logger.Warn("contract cache lookup failed", zap.String("key", key), zap.Error(err))
			} else if ok {
				r.remember(key, id, expiry)
				return id, nil
			}
		}

		id, err := fetch(ctx)
		if err != nil {
			return ibkr.ConID(0), err
		}
		r.remember(key, id, expiry)
		r.logger.Info("contract resolved", zap.String("key", key), zap.Int64("conid", int64(id)))

		if r.cache != nil {
			if err := r.cache.SaveContract(ctx, key, secType, id, expiry); err != nil {
				r.logger.Warn("contract cache save failed", zap.String("key", key), zap.Error(err))
			}
		}
		return id, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(ibkr.ConID), nil
}

func serverError(err error) error {
	var apiErr *ibkr.APIError
	if errors.As(err, &apiErr) {
		return &ServerError{Message: apiErr.Message, Err: err}
	}
	return &ServerError{Message: err.Error(), Err: err}
}
