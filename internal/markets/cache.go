package markets

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/ksred/astrade-api/internal/types"
)

const fetchTimeout = time.Minute

// MarketLister is the part of the exchange client the cache needs
type MarketLister interface {
	GetMarkets(ctx context.Context) ([]types.Market, error)
}

// Cache keeps the market list in memory. It is refreshed on a cron schedule
// and fetched lazily when empty; concurrent misses share one fetch.
type Cache struct {
	source MarketLister
	group  singleflight.Group

	mu        sync.RWMutex
	markets   []types.Market
	fetchedAt time.Time

	cron *cron.Cron
}

func NewCache(source MarketLister) *Cache {
	return &Cache{source: source}
}

// Markets returns the cached list, fetching it on a miss
func (c *Cache) Markets(ctx context.Context) ([]types.Market, error) {
	if markets := c.cached(); markets != nil {
		return markets, nil
	}
	return c.shared(ctx, "load", func(fetchCtx context.Context) ([]types.Market, error) {
		if markets := c.cached(); markets != nil {
			return markets, nil
		}
		return c.fetch(fetchCtx)
	})
}

// Refresh replaces the cached list with a fresh copy from the exchange.
// A failed refresh keeps the previous list.
func (c *Cache) Refresh(ctx context.Context) ([]types.Market, error) {
	return c.shared(ctx, "refresh", c.fetch)
}

// shared runs fn once per key for every concurrent caller. The fetch is
// detached from the caller that started it so a cancelled request cannot fail
// the others; each caller still stops waiting when its own ctx ends.
func (c *Cache) shared(ctx context.Context, key string, fn func(context.Context) ([]types.Market, error)) ([]types.Market, error) {
	ch := c.group.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		return fn(fetchCtx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]types.Market), nil
	}
}

func (c *Cache) cached() []types.Market {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.markets
}

func (c *Cache) fetch(ctx context.Context) ([]types.Market, error) {
	markets, err := c.source.GetMarkets(ctx)
	if err != nil {
		return nil, err
	}
	if markets == nil {
		markets = []types.Market{}
	}
	c.mu.Lock()
	c.markets = markets
	c.fetchedAt = time.Now()
	c.mu.Unlock()
	return markets, nil
}

// FetchedAt reports when the list was last refreshed; zero if never
func (c *Cache) FetchedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchedAt
}

// Start schedules background refreshes, e.g. "@every 5m"
func (c *Cache) Start(schedule string) error {
	c.cron = cron.New()
	_, err := c.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		markets, err := c.Refresh(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("market cache refresh failed, keeping previous list")
			return
		}
		log.Debug().Int("markets", len(markets)).Msg("market cache refreshed")
	})
	if err != nil {
		return err
	}
	c.cron.Start()
	log.Info().Str("schedule", schedule).Msg("market cache refresh scheduled")
	return nil
}

// Stop halts the schedule and waits for a running refresh to finish
func (c *Cache) Stop() {
	if c.cron == nil {
		return
	}
	<-c.cron.Stop().Done()
}
