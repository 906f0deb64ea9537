package wcs

import (
	"fmt"
	"math"
)

// Summary is the human-readable digest of one solved frame, as shown by
// solve-status UI: plate scale, orientation, parity, field of view, and the
// image center in both decimal and sexagesimal form.
type Summary struct {
	CenterRA  float64 `json:"center_ra"`
	CenterDec float64 `json:"center_dec"`
	CenterHMS string  `json:"center_ra_hms"`
	CenterDMS string  `json:"center_dec_dms"`

	PixelScale float64 `json:"pixel_scale"` // arcsec/px
	Rotation   float64 `json:"rotation"`    // degrees, [0,360)
	Flipped    bool    `json:"flipped"`

	WidthDeg   float64 `json:"width_deg"`
	HeightDeg  float64 `json:"height_deg"`
	Distortion bool    `json:"distortion"` // SIP terms present
}

// Summarize derives the display summary for an image of the given pixel
// dimensions.
func (t *Transform) Summarize(widthPx, heightPx float64) Summary {
	center := t.ImageCenter(widthPx, heightPx)
	widthDeg, heightDeg := t.FieldOfView(widthPx, heightPx)

	return Summary{
		CenterRA:   center.RA,
		CenterDec:  center.Dec,
		CenterHMS:  FormatRA(center.RA),
		CenterDMS:  FormatDec(center.Dec),
		PixelScale: t.PixelScale(),
		Rotation:   t.Rotation(),
		Flipped:    t.Flipped(),
		WidthDeg:   widthDeg,
		HeightDeg:  heightDeg,
		Distortion: t.HasDistortion(),
	}
}

// FormatRA renders a right ascension in degrees as an HMS string,
// e.g. 83.633 → "05h 34m 31.92s".
func FormatRA(raDeg float64) string {
	hours := raDeg / 15.0
	h := math.Floor(hours)
	mf := (hours - h) * 60.0
	m := math.Floor(mf)
	s := (mf - m) * 60.0

	return fmt.Sprintf("%02dh %02dm %05.2fs", int(h), int(m), s)
}

// FormatDec renders a declination in degrees as a signed DMS string,
// e.g. -5.392 → "-5° 23' 31.20\"".
func FormatDec(decDeg float64) string {
	sign := "+"
	if decDeg < 0 {
		sign = "-"
	}
	abs := math.Abs(decDeg)
	d := math.Floor(abs)
	mf := (abs - d) * 60.0
	m := math.Floor(mf)
	s := (mf - m) * 60.0

	return fmt.Sprintf("%s%d° %02d' %05.2f\"", sign, int(d), int(m), s)
}
