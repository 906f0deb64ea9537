package convert

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/AstroAir/skymap-wcs/internal/wcs"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testTransform(t *testing.T) *wcs.Transform {
	t.Helper()
	tr, err := wcs.NewTransform(wcs.LinearParams{
		CRPix1: 2048.5, CRPix2: 2048.5,
		CRVal1: 83.633, CRVal2: -5.392,
		CD1_1: -1.0 / 3600.0, CD2_2: 1.0 / 3600.0,
	})
	if err != nil {
		t.Fatalf("NewTransform: %v", err)
	}
	return tr
}

func TestPixelsToWorldMatchesScalarCalls(t *testing.T) {
	tr := testTransform(t)
	pool := NewPool(4, testLogger())

	// More points than one span so several workers participate.
	points := make([]wcs.Pixel, 5000)
	for i := range points {
		points[i] = wcs.Pixel{X: float64(i % 400 * 10), Y: float64(i / 400 * 10)}
	}

	out, ok, failed := pool.PixelsToWorld(context.Background(), tr, points)
	if len(out) != len(points) {
		t.Fatalf("output length %d, want %d", len(out), len(points))
	}
	if failed != 0 || ok != len(points) {
		t.Fatalf("ok=%d failed=%d, want all %d converted", ok, failed, len(points))
	}

	for i, p := range points {
		want := tr.PixelToWorld(p)
		if out[i] != want {
			t.Fatalf("out[%d] = %v, scalar result %v", i, out[i], want)
		}
	}
}

func TestWorldsToPixelCountsDegeneratePoints(t *testing.T) {
	tr := testTransform(t)
	pool := NewPool(2, testLogger())

	points := []wcs.World{
		{RA: 83.633, Dec: -5.392},        // in field
		{RA: 83.633 + 90.0, Dec: -5.392}, // quarter turn away: NaN
		{RA: 83.7, Dec: -5.3},            // in field
	}

	out, ok, failed := pool.WorldsToPixel(context.Background(), tr, points)
	if ok != 2 || failed != 1 {
		t.Errorf("ok=%d failed=%d, want 2/1", ok, failed)
	}
	if !math.IsNaN(out[1].X) || !math.IsNaN(out[1].Y) {
		t.Errorf("degenerate point = %v, want NaN (positional result preserved)", out[1])
	}
	if math.IsNaN(out[0].X) || math.IsNaN(out[2].X) {
		t.Error("in-field points came back NaN")
	}
}

func TestPoolEmptyBatch(t *testing.T) {
	tr := testTransform(t)
	pool := NewPool(4, testLogger())

	out, ok, failed := pool.PixelsToWorld(context.Background(), tr, nil)
	if len(out) != 0 || ok != 0 || failed != 0 {
		t.Errorf("empty batch = (%d results, ok=%d, failed=%d), want zeros", len(out), ok, failed)
	}
}

func TestPoolCanceledContext(t *testing.T) {
	tr := testTransform(t)
	pool := NewPool(2, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	points := make([]wcs.Pixel, 100000)
	out, ok, _ := pool.PixelsToWorld(ctx, tr, points)

	// Cancellation must not lose the positional shape, and cannot have
	// converted every point.
	if len(out) != len(points) {
		t.Fatalf("output length %d, want %d", len(out), len(points))
	}
	if ok == len(points) {
		t.Log("all points converted despite cancellation (workers outran cancel); acceptable but unexpected")
	}
}

func TestNewPoolClampsWorkers(t *testing.T) {
	pool := NewPool(0, testLogger())
	if pool.workers != 1 {
		t.Errorf("workers = %d, want clamp to 1", pool.workers)
	}
}
