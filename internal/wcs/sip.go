package wcs

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/AstroAir/skymap-wcs/internal/metrics"
)

// SIPCoefficients holds Simple Imaging Polynomial distortion terms as they
// arrive from a header-parsing collaborator: sparse maps keyed by the
// FITS-SIP per-term keyword, where the two digits encode the monomial
// exponents ("A_2_0" is the term in u², "B_1_1" the term in u·v). Either the
// bare "p_q" form or the full keyword with prefix is accepted.
//
// A and B correct the forward (pixel→sky) direction; AP and BP, when
// present, are the explicit inverse polynomial. Absent terms are zero.
type SIPCoefficients struct {
	AOrder int
	BOrder int
	A      map[string]float64
	B      map[string]float64

	APOrder int
	BPOrder int
	AP      map[string]float64
	BP      map[string]float64
}

// Iteration bounds for the fixed-point inverse used when no AP/BP terms are
// supplied. Ten rounds is far beyond what physical optics need: plate-solve
// distortions are a few pixels across a full frame, so the residual contracts
// to under iterEpsilon in two or three rounds in practice.
const (
	iterMax     = 10
	iterEpsilon = 1e-8 // pixels
)

// sipTerm is one monomial of a distortion polynomial.
type sipTerm struct {
	p, q  int
	coeff float64
}

// sipPoly is a distortion polynomial compiled to a flat term list, evaluated
// without map lookups or allocation.
type sipPoly struct {
	terms []sipTerm
}

// compiledSIP is the construction-time compiled form of SIPCoefficients.
type compiledSIP struct {
	a, b       sipPoly
	ap, bp     sipPoly
	hasInverse bool
}

// compileSIP validates the sparse coefficient maps and flattens them into
// term slices. Malformed term keys and terms whose total degree exceeds the
// declared order are configuration errors.
func compileSIP(c *SIPCoefficients) (*compiledSIP, error) {
	a, err := compilePoly(c.A, c.AOrder, "A")
	if err != nil {
		return nil, err
	}
	b, err := compilePoly(c.B, c.BOrder, "B")
	if err != nil {
		return nil, err
	}

	s := &compiledSIP{a: a, b: b}

	if len(c.AP) > 0 || len(c.BP) > 0 {
		ap, err := compilePoly(c.AP, c.APOrder, "AP")
		if err != nil {
			return nil, err
		}
		bp, err := compilePoly(c.BP, c.BPOrder, "BP")
		if err != nil {
			return nil, err
		}
		s.ap = ap
		s.bp = bp
		s.hasInverse = true
	}

	return s, nil
}

func compilePoly(coeffs map[string]float64, order int, axis string) (sipPoly, error) {
	if order < 0 {
		return sipPoly{}, fmt.Errorf("%s order must be non-negative, got %d", axis, order)
	}

	terms := make([]sipTerm, 0, len(coeffs))
	for key, coeff := range coeffs {
		p, q, err := parseTermKey(key)
		if err != nil {
			return sipPoly{}, fmt.Errorf("%s term %q: %w", axis, key, err)
		}
		if p+q > order {
			return sipPoly{}, fmt.Errorf("%s term %q: degree %d exceeds declared order %d", axis, key, p+q, order)
		}
		if coeff == 0 {
			continue
		}
		terms = append(terms, sipTerm{p: p, q: q, coeff: coeff})
	}
	return sipPoly{terms: terms}, nil
}

// parseTermKey extracts the monomial exponents from a per-term key.
// "A_2_0", "AP_0_3" and the bare "2_0" all parse; the exponents are always
// the last two underscore-separated fields.
func parseTermKey(key string) (p, q int, err error) {
	parts := strings.Split(key, "_")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("want suffix p_q with integer exponents")
	}

	p, err = strconv.Atoi(parts[len(parts)-2])
	if err != nil || p < 0 {
		return 0, 0, fmt.Errorf("invalid exponent %q", parts[len(parts)-2])
	}
	q, err = strconv.Atoi(parts[len(parts)-1])
	if err != nil || q < 0 {
		return 0, 0, fmt.Errorf("invalid exponent %q", parts[len(parts)-1])
	}
	return p, q, nil
}

// eval computes Σ coeff · u^p · v^q over the polynomial's terms.
func (poly sipPoly) eval(u, v float64) float64 {
	var sum float64
	for _, t := range poly.terms {
		sum += t.coeff * ipow(u, t.p) * ipow(v, t.q)
	}
	return sum
}

// ipow is x^n for small non-negative integer n, avoiding math.Pow in the
// per-pixel path.
func ipow(x float64, n int) float64 {
	r := 1.0
	for ; n > 0; n-- {
		r *= x
	}
	return r
}

// forward returns the distortion corrections (f, g) for an undistorted pixel
// offset (u, v) from the reference pixel; the corrected offset is (u+f, v+g).
func (s *compiledSIP) forward(u, v float64) (f, g float64) {
	return s.a.eval(u, v), s.b.eval(u, v)
}

// invert recovers the undistorted pixel offset from a distorted offset
// (bigU, bigV). With explicit AP/BP terms this is a single closed-form
// evaluation, as the SIP convention intends. Without them it falls back to
// fixed-point iteration on the forward model; see invertIterative.
func (s *compiledSIP) invert(bigU, bigV float64) (u, v float64) {
	if math.IsNaN(bigU) || math.IsNaN(bigV) {
		return math.NaN(), math.NaN()
	}

	if s.hasInverse {
		return bigU + s.ap.eval(bigU, bigV), bigV + s.bp.eval(bigU, bigV)
	}

	u, v, iters := invertIterative(s.a, s.b, bigU, bigV, iterMax, iterEpsilon)
	metrics.ObserveSIPInverseIterations(iters)
	return u, v
}

// invertIterative solves (u + f(u,v), v + g(u,v)) = (bigU, bigV) for (u, v)
// by fixed-point iteration, starting from the distorted offset itself and
// subtracting the forward-model residual each round. It stops when both
// residual components fall below eps or after maxIter rounds, returning the
// last iterate either way — the result is an approximation, not a guarantee,
// and the cap keeps termination unconditional. Returns the number of
// iterations performed.
func invertIterative(a, b sipPoly, bigU, bigV float64, maxIter int, eps float64) (u, v float64, iters int) {
	u, v = bigU, bigV
	for i := 1; i <= maxIter; i++ {
		ru := u + a.eval(u, v) - bigU
		rv := v + b.eval(u, v) - bigV
		if math.Abs(ru) < eps && math.Abs(rv) < eps {
			return u, v, i
		}
		u -= ru
		v -= rv
	}
	return u, v, maxIter
}
