package sphere

import "math"

// Project maps a sky position (ra, dec) onto the plane tangent to the sphere
// at (ra0, dec0) using the gnomonic (TAN) projection. The returned plane
// coordinates (xi, eta) are in degrees, xi increasing along right ascension
// and eta along declination at the tangent point.
//
// The projection is undefined for points 90° or more from the tangent point
// (the dividing cosine term reaches zero at 90° and the far hemisphere maps
// through the sphere's center). Such inputs return NaN for both coordinates
// rather than a misleading finite value: plate-solved frames are small-field,
// so a quarter-turn argument always indicates a caller error.
func Project(ra, dec, ra0, dec0 float64) (xi, eta float64) {
	phi := dec * degToRad
	phi0 := dec0 * degToRad
	dLam := (ra - ra0) * degToRad

	sinPhi, cosPhi := math.Sincos(phi)
	sinPhi0, cosPhi0 := math.Sincos(phi0)
	cosDLam := math.Cos(dLam)

	// Cosine of the angular distance to the tangent point.
	cosC := sinPhi0*sinPhi + cosPhi0*cosPhi*cosDLam
	if cosC <= 0 {
		return math.NaN(), math.NaN()
	}

	xi = cosPhi * math.Sin(dLam) / cosC * radToDeg
	eta = (cosPhi0*sinPhi - sinPhi0*cosPhi*cosDLam) / cosC * radToDeg
	return xi, eta
}

// Deproject is the inverse of Project: it maps tangent-plane coordinates
// (xi, eta) in degrees back to a sky position (ra, dec) about the tangent
// point (ra0, dec0). Defined for all finite plane coordinates; the returned
// right ascension is normalized to [0, 360).
func Deproject(xi, eta, ra0, dec0 float64) (ra, dec float64) {
	x := xi * degToRad
	y := eta * degToRad
	phi0 := dec0 * degToRad

	sinPhi0, cosPhi0 := math.Sincos(phi0)

	d := cosPhi0 - y*sinPhi0
	dRA := math.Atan2(x, d)

	ra = NormalizeRA(ra0 + dRA*radToDeg)
	dec = math.Atan2(sinPhi0+y*cosPhi0, math.Hypot(x, d)) * radToDeg
	return ra, ClampDec(dec)
}
