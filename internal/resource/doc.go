// Package resource implements the Controller that governs write pressure.
//
// The Controller manages two resource types shared by every window of a run:
//
//   - Concurrency: a weighted semaphore bounding in-flight micro-batches
//   - Throughput: a token bucket pacing items per second
//
// # Micro-batch Slots
//
//	rc := resource.NewController(resource.Config{
//	    MaxInFlightBatches: 4,
//	})
//
//	if err := rc.AcquireBatch(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseBatch()
//
// Because slots are shared, concurrent windows cannot multiply the
// configured concurrency.
//
// # Throughput
//
//	rc := resource.NewController(resource.Config{
//	    ItemsPerSecond: 500,
//	})
//
//	if err := rc.AcquireItems(ctx, len(batch)); err != nil {
//	    return err
//	}
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully; they become no-ops.
package resource
