package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/terraferm/fieldops/internal/metrics"
)

// snapshotTTL bounds staleness of cached metrics; a fresh report makes the
// dashboard current within a minute.
const snapshotTTL = 60 * time.Second

// SnapshotCache memoizes metrics snapshots in Redis. Every operation is
// best-effort: a cache fault degrades to recomputation, never to an error.
type SnapshotCache struct {
	client *redis.Client
	logger *slog.Logger
}

func NewSnapshotCache(client *redis.Client, logger *slog.Logger) *SnapshotCache {
	return &SnapshotCache{client: client, logger: logger}
}

func (c *SnapshotCache) Get(ctx context.Context, start, end time.Time, plotID *uuid.UUID) (*metrics.Snapshot, bool) {
	data, err := c.client.Get(ctx, snapshotKey(start, end, plotID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("metrics cache read failed", "error", err)
		}
		return nil, false
	}
	var snap metrics.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		c.logger.Warn("metrics cache entry corrupt", "error", err)
		return nil, false
	}
	return &snap, true
}

func (c *SnapshotCache) Put(ctx context.Context, start, end time.Time, plotID *uuid.UUID, snap *metrics.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		c.logger.Warn("metrics cache marshal failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, snapshotKey(start, end, plotID), data, snapshotTTL).Err(); err != nil {
		c.logger.Warn("metrics cache write failed", "error", err)
	}
}

func snapshotKey(start, end time.Time, plotID *uuid.UUID) string {
	plot := "all"
	if plotID != nil {
		plot = plotID.String()
	}
	return fmt.Sprintf("fieldops:metrics:%s:%s:%s",
		start.Format("2006-01-02"), end.Format("2006-01-02"), plot)
}
