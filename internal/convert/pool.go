// Package convert runs batch coordinate conversions over a fixed worker
// pool. A single transform call is cheap, but overlay and reprojection
// callers convert tens of thousands of points per request, so batches are
// split into spans and converted in parallel.
package convert

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/AstroAir/skymap-wcs/internal/metrics"
	"github.com/AstroAir/skymap-wcs/internal/wcs"
)

// Direction labels for metrics and logs.
const (
	DirectionPixelToWorld = "pixel_to_world"
	DirectionWorldToPixel = "world_to_pixel"
)

// spanSize is the number of points handed to a worker at a time. Small
// enough to balance uneven batches, large enough that channel traffic is
// negligible next to the math.
const spanSize = 1024

// Config holds conversion pool configuration loaded from environment
// variables.
type Config struct {
	Workers   int // worker pool size (default: runtime.NumCPU())
	MaxPoints int // per-request point budget enforced by the API layer
}

// Pool converts batches of points using a fixed number of goroutines.
type Pool struct {
	workers int
	logger  *slog.Logger
}

// NewPool creates a conversion pool with the given number of workers.
func NewPool(workers int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{workers: workers, logger: logger}
}

// span is a half-open index range [start, end) of one batch.
type span struct {
	start, end int
}

// PixelsToWorld converts a batch of pixel positions through the transform.
// Results are positional: out[i] corresponds to points[i]. The returned
// counts are converted and failed points, where a failure is a NaN result
// (degenerate geometry). A canceled context stops feeding workers; points
// not reached remain zero-valued and are not counted.
func (p *Pool) PixelsToWorld(ctx context.Context, t *wcs.Transform, points []wcs.Pixel) ([]wcs.World, int, int) {
	out := make([]wcs.World, len(points))
	ok, failed := p.run(ctx, len(points), DirectionPixelToWorld, func(i int) bool {
		w := t.PixelToWorld(points[i])
		out[i] = w
		return !math.IsNaN(w.RA) && !math.IsNaN(w.Dec)
	})
	return out, ok, failed
}

// WorldsToPixel converts a batch of sky positions through the transform.
// Same contract as PixelsToWorld; sky points 90° or more from the reference
// coordinate produce NaN pixels and count as failures.
func (p *Pool) WorldsToPixel(ctx context.Context, t *wcs.Transform, points []wcs.World) ([]wcs.Pixel, int, int) {
	out := make([]wcs.Pixel, len(points))
	ok, failed := p.run(ctx, len(points), DirectionWorldToPixel, func(i int) bool {
		px := t.WorldToPixel(points[i])
		out[i] = px
		return !math.IsNaN(px.X) && !math.IsNaN(px.Y)
	})
	return out, ok, failed
}

// run fans spans of [0, n) out to the workers. convertOne writes result i
// and reports whether it is finite; each index is owned by exactly one
// worker, so the output slices need no locking.
func (p *Pool) run(ctx context.Context, n int, direction string, convertOne func(i int) bool) (okCount, failedCount int) {
	if n == 0 {
		return 0, 0
	}

	start := time.Now()

	jobs := make(chan span, p.workers*2)
	results := make(chan [2]int, p.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sp := range jobs {
				var ok, bad int
				for i := sp.start; i < sp.end; i++ {
					if convertOne(i) {
						ok++
					} else {
						bad++
					}
				}
				select {
				case results <- [2]int{ok, bad}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for at := 0; at < n; at += spanSize {
			end := at + spanSize
			if end > n {
				end = n
			}
			select {
			case jobs <- span{start: at, end: end}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		okCount += r[0]
		failedCount += r[1]
	}

	duration := time.Since(start)
	metrics.RecordConversion(direction, duration, okCount, failedCount)

	if failedCount > 0 {
		p.logger.Warn("batch conversion had degenerate points",
			"direction", direction,
			"failed", failedCount,
			"converted", okCount,
		)
	}
	p.logger.Debug("batch conversion complete",
		"direction", direction,
		"points", n,
		"duration_ms", duration.Milliseconds(),
		"workers", p.workers,
	)

	return okCount, failedCount
}
