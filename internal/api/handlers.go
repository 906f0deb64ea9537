package api

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AstroAir/skymap-wcs/internal/convert"
	"github.com/AstroAir/skymap-wcs/internal/frame"
	"github.com/AstroAir/skymap-wcs/internal/wcs"
)

var tracer = otel.Tracer("github.com/AstroAir/skymap-wcs/internal/api")

// sipPayload mirrors wcs.SIPCoefficients on the wire. Coefficient maps use
// the FITS-SIP per-term keys ("A_0_2", "BP_1_1", ...).
type sipPayload struct {
	AOrder int                `json:"a_order"`
	BOrder int                `json:"b_order"`
	A      map[string]float64 `json:"a"`
	B      map[string]float64 `json:"b"`

	APOrder int                `json:"ap_order"`
	BPOrder int                `json:"bp_order"`
	AP      map[string]float64 `json:"ap,omitempty"`
	BP      map[string]float64 `json:"bp,omitempty"`
}

func (p *sipPayload) coefficients() *wcs.SIPCoefficients {
	if p == nil {
		return nil
	}
	return &wcs.SIPCoefficients{
		AOrder: p.AOrder, BOrder: p.BOrder, A: p.A, B: p.B,
		APOrder: p.APOrder, BPOrder: p.BPOrder, AP: p.AP, BP: p.BP,
	}
}

type registerRequest struct {
	FrameID     string      `json:"frame_id"`
	WidthPx     float64     `json:"width_px"`
	HeightPx    float64     `json:"height_px"`
	Calibration wcs.Info    `json:"calibration"`
	SIP         *sipPayload `json:"sip,omitempty"`
}

type registerResponse struct {
	FrameID string       `json:"frame_id,omitempty"`
	Solved  bool         `json:"solved"`
	Summary *wcs.Summary `json:"summary,omitempty"`
}

// frameRecord is the list/detail representation of one registered frame.
type frameRecord struct {
	FrameID      string    `json:"frame_id"`
	WidthPx      float64   `json:"width_px"`
	HeightPx     float64   `json:"height_px"`
	RegisteredAt time.Time `json:"registered_at"`
	AgeSeconds   float64   `json:"age_seconds"`
	PixelScale   float64   `json:"pixel_scale"`
	Distortion   bool      `json:"distortion"`
}

func recordOf(f *frame.Frame) frameRecord {
	return frameRecord{
		FrameID:      f.ID,
		WidthPx:      f.WidthPx,
		HeightPx:     f.HeightPx,
		RegisteredAt: f.RegisteredAt,
		AgeSeconds:   f.AgeSeconds(),
		PixelScale:   f.Transform.PixelScale(),
		Distortion:   f.Transform.HasDistortion(),
	}
}

// worldPoint and pixelPoint carry conversion results on the wire. Degenerate
// results are NaN internally, which JSON cannot encode, so each component is
// a pointer and null marks a point with no image.
type worldPoint struct {
	RA  *float64 `json:"ra"`
	Dec *float64 `json:"dec"`
}

type pixelPoint struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func registerFrameHandler(logger *slog.Logger, store *frame.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "frame.register")
		defer span.End()

		var req registerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
		if req.WidthPx <= 0 || req.HeightPx <= 0 {
			writeError(w, http.StatusBadRequest, "width_px and height_px must be positive")
			return
		}

		t, err := wcs.FromInfo(req.Calibration, req.SIP.coefficients())
		if err != nil {
			// Singular matrix and SIP compilation failures are both
			// configuration errors in the payload.
			logger.Warn("frame registration rejected", "error", err)
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if t == nil {
			// No CD matrix: the image is not plate-solved. Not an error,
			// but nothing to register either.
			writeJSON(w, http.StatusOK, registerResponse{Solved: false})
			return
		}

		id := req.FrameID
		if id == "" {
			id = store.NextID()
		}
		store.Put(&frame.Frame{
			ID:           id,
			Transform:    t,
			WidthPx:      req.WidthPx,
			HeightPx:     req.HeightPx,
			RegisteredAt: time.Now(),
		})
		span.SetAttributes(attribute.String("frame_id", id))

		logger.Info("frame registered",
			"frame_id", id,
			"width_px", req.WidthPx,
			"height_px", req.HeightPx,
			"pixel_scale_arcsec", t.PixelScale(),
			"distortion", t.HasDistortion(),
		)

		summary := t.Summarize(req.WidthPx, req.HeightPx)
		writeJSON(w, http.StatusOK, registerResponse{FrameID: id, Solved: true, Summary: &summary})
	}
}

func listFramesHandler(store *frame.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		frames := store.List()
		records := make([]frameRecord, 0, len(frames))
		for _, f := range frames {
			records = append(records, recordOf(f))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"count":  len(records),
			"frames": records,
		})
	}
}

func getFrameHandler(store *frame.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := store.Get(r.PathValue("frame_id"))
		if f == nil {
			writeError(w, http.StatusNotFound, "unknown frame")
			return
		}
		writeJSON(w, http.StatusOK, recordOf(f))
	}
}

func deleteFrameHandler(logger *slog.Logger, store *frame.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("frame_id")
		if !store.Remove(id) {
			writeError(w, http.StatusNotFound, "unknown frame")
			return
		}
		logger.Info("frame removed", "frame_id", id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func summaryHandler(store *frame.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := store.Get(r.PathValue("frame_id"))
		if f == nil {
			writeError(w, http.StatusNotFound, "unknown frame")
			return
		}
		writeJSON(w, http.StatusOK, f.Transform.Summarize(f.WidthPx, f.HeightPx))
	}
}

func footprintHandler(store *frame.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := store.Get(r.PathValue("frame_id"))
		if f == nil {
			writeError(w, http.StatusNotFound, "unknown frame")
			return
		}

		corners := f.Transform.ImageCorners(f.WidthPx, f.HeightPx)
		center := f.Transform.ImageCenter(f.WidthPx, f.HeightPx)
		widthDeg, heightDeg := f.Transform.FieldOfView(f.WidthPx, f.HeightPx)

		out := make([]worldPoint, len(corners))
		for i, c := range corners {
			out[i] = worldPoint{RA: finite(c.RA), Dec: finite(c.Dec)}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"corners":    out,
			"center":     worldPoint{RA: finite(center.RA), Dec: finite(center.Dec)},
			"width_deg":  widthDeg,
			"height_deg": heightDeg,
		})
	}
}

// frameForConvert runs the shared admission checks for the two conversion
// endpoints: frame lookup, point budget, and the per-IP concurrency cap.
// On success the caller must invoke release when the conversion finishes.
func frameForConvert(w http.ResponseWriter, r *http.Request, store *frame.Store, cfg convert.Config, limiter *convertLimiter, trustProxy bool, nPoints int) (*frame.Frame, func(), bool) {
	f := store.Get(r.PathValue("frame_id"))
	if f == nil {
		writeError(w, http.StatusNotFound, "unknown frame")
		return nil, nil, false
	}

	if nPoints > cfg.MaxPoints {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      "point budget exceeded",
			"points":     nPoints,
			"max_points": cfg.MaxPoints,
		})
		return nil, nil, false
	}

	ip := clientIP(r, trustProxy)
	if !limiter.acquire(ip) {
		writeError(w, http.StatusTooManyRequests, "too many concurrent conversions")
		return nil, nil, false
	}
	return f, func() { limiter.release(ip) }, true
}

func pixelToWorldHandler(store *frame.Store, pool *convert.Pool, cfg convert.Config, limiter *convertLimiter, trustProxy bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Points []wcs.Pixel `json:"points"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}

		f, release, ok := frameForConvert(w, r, store, cfg, limiter, trustProxy, len(req.Points))
		if !ok {
			return
		}
		defer release()

		ctx, span := tracer.Start(r.Context(), "convert.pixel_to_world")
		defer span.End()
		span.SetAttributes(
			attribute.String("frame_id", f.ID),
			attribute.Int("points", len(req.Points)),
		)

		worlds, converted, failed := pool.PixelsToWorld(ctx, f.Transform, req.Points)

		out := make([]worldPoint, len(worlds))
		for i, p := range worlds {
			out[i] = worldPoint{RA: finite(p.RA), Dec: finite(p.Dec)}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"points":    out,
			"converted": converted,
			"failed":    failed,
		})
	}
}

func worldToPixelHandler(store *frame.Store, pool *convert.Pool, cfg convert.Config, limiter *convertLimiter, trustProxy bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Points []wcs.World `json:"points"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}

		f, release, ok := frameForConvert(w, r, store, cfg, limiter, trustProxy, len(req.Points))
		if !ok {
			return
		}
		defer release()

		ctx, span := tracer.Start(r.Context(), "convert.world_to_pixel")
		defer span.End()
		span.SetAttributes(
			attribute.String("frame_id", f.ID),
			attribute.Int("points", len(req.Points)),
		)

		pixels, converted, failed := pool.WorldsToPixel(ctx, f.Transform, req.Points)

		out := make([]pixelPoint, len(pixels))
		for i, p := range pixels {
			out[i] = pixelPoint{X: finite(p.X), Y: finite(p.Y)}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"points":    out,
			"converted": converted,
			"failed":    failed,
		})
	}
}
