package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/schoolhub/schoolhub/internal/domain/dashboard"
	"github.com/schoolhub/schoolhub/internal/domain/shared"
	"github.com/schoolhub/schoolhub/pkg/logger"
)

// KPIKey holds the latest dashboard snapshot.
var KPIKey = DashboardKey("kpis")

// kv is the part of Cache the KPI cache uses.
type kv interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string, dest any) error
	Publish(ctx context.Context, channel string, message any) error
}

// KPICache mirrors every kpi.recomputed event into Redis and announces it
// on the matching pub/sub channel.
type KPICache struct {
	store   kv
	timeout time.Duration
	log     *logger.Logger
}

func NewKPICache(cache *Cache, timeout time.Duration, log *logger.Logger) *KPICache {
	return newKPICache(cache, timeout, log)
}

func newKPICache(store kv, timeout time.Duration, log *logger.Logger) *KPICache {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &KPICache{store: store, timeout: timeout, log: log.Named("kpi_cache")}
}

// Handle is an event bus handler for shared.EventKPIsRecomputed.
func (c *KPICache) Handle(event shared.Event) error {
	e, ok := event.(shared.KPIsRecomputed)
	if !ok {
		return nil
	}
	kpis, ok := e.Payload.(dashboard.KPIs)
	if !ok {
		return fmt.Errorf("kpi cache: unexpected payload %T", e.Payload)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	snap := dashboard.Snapshot{KPIs: kpis, ComputedAt: e.OccurredAt()}
	if err := c.store.Set(ctx, KPIKey, snap, 0); err != nil {
		return fmt.Errorf("kpi cache: set: %w", err)
	}
	if err := c.store.Publish(ctx, PubSubChannel(string(shared.EventKPIsRecomputed)), snap); err != nil {
		c.log.Warn("kpi publish failed", logger.Err(err))
	}
	return nil
}

// Latest returns the last cached snapshot, or ErrCacheMiss. The dashboard
// serves it while the store is still loading.
func (c *KPICache) Latest(ctx context.Context) (dashboard.Snapshot, error) {
	var snap dashboard.Snapshot
	if err := c.store.Get(ctx, KPIKey, &snap); err != nil {
		return dashboard.Snapshot{}, err
	}
	return snap, nil
}
