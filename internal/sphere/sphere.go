// Package sphere provides the spherical-geometry primitives for celestial
// coordinate work: great-circle separation and the gnomonic (tangent-plane)
// projection used by plate-solved image calibrations.
//
// All public functions take and return degrees. Right ascension is measured
// in [0, 360), declination in [-90, 90].
package sphere

import "math"

const (
	degToRad = math.Pi / 180.0
	radToDeg = 180.0 / math.Pi
)

// Separation returns the great-circle angular distance in degrees between
// two sky positions given as (ra, dec) pairs in degrees.
//
// Uses the haversine form, which stays accurate for very small separations
// where the spherical law of cosines loses precision. The result is in
// [0, 180]: 0 for identical points (including RA values that differ by a
// full turn) and 180 for antipodal points.
func Separation(ra1, dec1, ra2, dec2 float64) float64 {
	phi1 := dec1 * degToRad
	phi2 := dec2 * degToRad
	dPhi := (dec2 - dec1) * degToRad
	dLam := (ra2 - ra1) * degToRad

	sinDPhi := math.Sin(dPhi / 2)
	sinDLam := math.Sin(dLam / 2)

	h := sinDPhi*sinDPhi + math.Cos(phi1)*math.Cos(phi2)*sinDLam*sinDLam
	if h < 0 {
		h = 0
	}
	if h > 1 {
		h = 1
	}

	return 2 * math.Asin(math.Sqrt(h)) * radToDeg
}

// NormalizeRA wraps a right ascension value into [0, 360).
func NormalizeRA(ra float64) float64 {
	ra = math.Mod(ra, 360.0)
	if ra < 0 {
		ra += 360.0
	}
	return ra
}

// ClampDec limits a declination value to [-90, 90]. Inputs outside that
// range only arise from floating-point overshoot at the poles.
func ClampDec(dec float64) float64 {
	if dec > 90 {
		return 90
	}
	if dec < -90 {
		return -90
	}
	return dec
}
