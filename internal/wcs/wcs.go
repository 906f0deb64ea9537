// Package wcs implements the World Coordinate System transform for
// plate-solved astronomical images: the mapping between image pixel
// coordinates and sky coordinates (right ascension/declination), with
// optional SIP polynomial distortion correction.
//
// A Transform is built once from calibration parameters and is immutable
// afterwards: the CD matrix inverse and the distortion term tables are
// precomputed at construction, so a single Transform can be shared across
// goroutines and called once per pixel without synchronization or per-call
// allocation.
//
// Conventions follow the FITS WCS keywords: the reference pixel (CRPIX) is
// 1-based, the reference coordinate (CRVAL) is in degrees, and the CD matrix
// maps pixel offsets from the reference pixel to tangent-plane coordinates in
// degrees per pixel. Sky positions 90° or more from the reference coordinate
// have no pixel image; WorldToPixel reports them as NaN coordinates rather
// than an error.
package wcs

import (
	"errors"
	"fmt"
	"math"

	"github.com/AstroAir/skymap-wcs/internal/sphere"
)

// ErrSingularMatrix is returned when a CD matrix has zero determinant and
// therefore cannot define a pixel↔sky mapping.
var ErrSingularMatrix = errors.New("singular CD matrix")

// Pixel is an image position in pixel units.
type Pixel struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// World is a sky position: right ascension and declination in degrees.
type World struct {
	RA  float64 `json:"ra"`
	Dec float64 `json:"dec"`
}

// LinearParams holds the calibration of a solved frame. All fields are
// required except SIP; construction fails if the CD matrix is singular.
type LinearParams struct {
	// Reference pixel (1-based) whose sky position is exactly (CRVal1, CRVal2).
	CRPix1, CRPix2 float64
	// Reference sky coordinate in degrees: RA, Dec.
	CRVal1, CRVal2 float64
	// Linear transform from pixel offsets to tangent-plane degrees.
	CD1_1, CD1_2, CD2_1, CD2_2 float64
	// Optional SIP distortion coefficients.
	SIP *SIPCoefficients
}

// Transform maps pixel coordinates of one solved frame to sky coordinates
// and back. Immutable after construction; safe for concurrent use.
type Transform struct {
	crpix1, crpix2 float64
	crval1, crval2 float64

	cd11, cd12, cd21, cd22 float64
	det                    float64

	// Inverse CD matrix, fixed at construction so WorldToPixel never
	// re-solves the 2x2 system.
	inv11, inv12, inv21, inv22 float64

	sip *compiledSIP
}

// NewTransform builds a Transform from strict calibration parameters.
// It returns ErrSingularMatrix (wrapped) when det(CD) is zero or not finite,
// and a descriptive error when the SIP block is malformed.
func NewTransform(p LinearParams) (*Transform, error) {
	det := p.CD1_1*p.CD2_2 - p.CD1_2*p.CD2_1
	if det == 0 || math.IsNaN(det) || math.IsInf(det, 0) {
		return nil, fmt.Errorf("%w: cd=[%g %g; %g %g]", ErrSingularMatrix,
			p.CD1_1, p.CD1_2, p.CD2_1, p.CD2_2)
	}

	t := &Transform{
		crpix1: p.CRPix1,
		crpix2: p.CRPix2,
		crval1: p.CRVal1,
		crval2: p.CRVal2,
		cd11:   p.CD1_1,
		cd12:   p.CD1_2,
		cd21:   p.CD2_1,
		cd22:   p.CD2_2,
		det:    det,
		inv11:  p.CD2_2 / det,
		inv12:  -p.CD1_2 / det,
		inv21:  -p.CD2_1 / det,
		inv22:  p.CD1_1 / det,
	}

	if p.SIP != nil {
		sip, err := compileSIP(p.SIP)
		if err != nil {
			return nil, fmt.Errorf("compile SIP coefficients: %w", err)
		}
		t.sip = sip
	}

	return t, nil
}

// PixelToWorld maps an image pixel to its sky position. At the reference
// pixel the result equals the reference coordinate exactly.
func (t *Transform) PixelToWorld(p Pixel) World {
	u := p.X - t.crpix1
	v := p.Y - t.crpix2

	if t.sip != nil {
		du, dv := t.sip.forward(u, v)
		u += du
		v += dv
	}

	xi := t.cd11*u + t.cd12*v
	eta := t.cd21*u + t.cd22*v

	ra, dec := sphere.Deproject(xi, eta, t.crval1, t.crval2)
	return World{RA: ra, Dec: dec}
}

// WorldToPixel maps a sky position to image pixel coordinates. Positions 90°
// or more from the reference coordinate have no tangent-plane image and come
// back as NaN in both components.
//
// When the calibration carries SIP forward terms but no explicit inverse
// (AP/BP) terms, the distortion is undone by bounded fixed-point iteration;
// that path is an approximation and round-trips to roughly a tenth of a
// pixel instead of floating-point precision.
func (t *Transform) WorldToPixel(w World) Pixel {
	xi, eta := sphere.Project(w.RA, w.Dec, t.crval1, t.crval2)

	u := t.inv11*xi + t.inv12*eta
	v := t.inv21*xi + t.inv22*eta

	if t.sip != nil {
		u, v = t.sip.invert(u, v)
	}

	return Pixel{X: u + t.crpix1, Y: v + t.crpix2}
}

// PixelScale returns the plate scale in arcseconds per pixel, taken as the
// magnitude of the first CD matrix column.
func (t *Transform) PixelScale() float64 {
	return math.Hypot(t.cd11, t.cd21) * 3600.0
}

// Rotation returns the position angle of the calibration in degrees,
// normalized to [0, 360). The convention matches the solver output this
// engine consumes: a standard North-up/East-left frame (negative CD1_1,
// zero cross terms) reports ~180°.
func (t *Transform) Rotation() float64 {
	rot := math.Atan2(t.cd12, t.cd11) * 180.0 / math.Pi
	if rot < 0 {
		rot += 360.0
	}
	return rot
}

// Flipped reports whether the image parity is mirrored relative to the sky
// (East to the right of North). True iff det(CD) is positive.
func (t *Transform) Flipped() bool {
	return t.det > 0
}

// FieldOfView returns the angular size in degrees covered by an image of the
// given pixel dimensions, using the per-axis CD column magnitudes.
func (t *Transform) FieldOfView(widthPx, heightPx float64) (widthDeg, heightDeg float64) {
	scaleX := math.Hypot(t.cd11, t.cd21)
	scaleY := math.Hypot(t.cd12, t.cd22)
	return widthPx * scaleX, heightPx * scaleY
}

// ReferencePixel returns the calibration's reference pixel.
func (t *Transform) ReferencePixel() Pixel {
	return Pixel{X: t.crpix1, Y: t.crpix2}
}

// ReferenceCoord returns the calibration's reference sky coordinate.
func (t *Transform) ReferenceCoord() World {
	return World{RA: t.crval1, Dec: t.crval2}
}

// HasDistortion reports whether the transform applies a SIP correction.
func (t *Transform) HasDistortion() bool {
	return t.sip != nil
}
