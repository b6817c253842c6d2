package resource

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds write limits.
type Config struct {
	// MaxInFlightBatches is the maximum number of micro-batches being
	// written at the same time. If 0, defaults to 1.
	MaxInFlightBatches int64

	// ItemsPerSecond is the target write throughput in items.
	// If 0, unlimited.
	ItemsPerSecond int64
}

// Controller bounds write concurrency and throughput across every caller
// that shares it.
type Controller struct {
	// Concurrency
	batchSem *semaphore.Weighted

	// Throughput
	itemLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxInFlightBatches <= 0 {
		cfg.MaxInFlightBatches = 1
	}

	c := &Controller{
		batchSem: semaphore.NewWeighted(cfg.MaxInFlightBatches),
	}

	if cfg.ItemsPerSecond > 0 {
		c.itemLimiter = rate.NewLimiter(rate.Limit(cfg.ItemsPerSecond), int(cfg.ItemsPerSecond))
	}

	return c
}

// AcquireBatch reserves a micro-batch slot.
// Blocks if all slots are busy.
func (c *Controller) AcquireBatch(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.batchSem.Acquire(ctx, 1)
}

// ReleaseBatch releases a micro-batch slot.
func (c *Controller) ReleaseBatch() {
	if c == nil {
		return
	}
	c.batchSem.Release(1)
}

// AcquireItems waits until the throughput limit allows n items.
// Requests larger than one second of budget are paced in chunks.
func (c *Controller) AcquireItems(ctx context.Context, n int) error {
	if c == nil || c.itemLimiter == nil {
		return nil
	}
	burst := c.itemLimiter.Burst()
	for n > 0 {
		chunk := min(n, burst)
		if err := c.itemLimiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
