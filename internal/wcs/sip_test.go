package wcs

import (
	"math"
	"strings"
	"testing"
)

func TestParseTermKey(t *testing.T) {
	tests := []struct {
		key     string
		p, q    int
		wantErr bool
	}{
		{"A_2_0", 2, 0, false},
		{"B_1_1", 1, 1, false},
		{"AP_0_3", 0, 3, false},
		{"BP_4_1", 4, 1, false},
		{"2_0", 2, 0, false},
		{"A_2", 0, 0, true},
		{"A", 0, 0, true},
		{"A_x_1", 0, 0, true},
		{"A_1_y", 0, 0, true},
		{"A_-1_0", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			p, q, err := parseTermKey(tt.key)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseTermKey(%q) = (%d,%d), want error", tt.key, p, q)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseTermKey(%q): %v", tt.key, err)
			}
			if p != tt.p || q != tt.q {
				t.Errorf("parseTermKey(%q) = (%d,%d), want (%d,%d)", tt.key, p, q, tt.p, tt.q)
			}
		})
	}
}

func TestCompileSIPRejectsOverOrderTerms(t *testing.T) {
	_, err := compileSIP(&SIPCoefficients{
		AOrder: 2, BOrder: 2,
		A: map[string]float64{"A_2_1": 1e-7}, // degree 3 > order 2
		B: map[string]float64{},
	})
	if err == nil || !strings.Contains(err.Error(), "exceeds declared order") {
		t.Errorf("err = %v, want over-order rejection", err)
	}
}

func TestCompileSIPRejectsMalformedKeys(t *testing.T) {
	_, err := compileSIP(&SIPCoefficients{
		AOrder: 2, BOrder: 2,
		A: map[string]float64{"A_first_second": 1e-7},
	})
	if err == nil {
		t.Error("expected error for malformed term key")
	}
}

func TestNewTransformRejectsBadSIP(t *testing.T) {
	p := orionParams()
	p.SIP = &SIPCoefficients{AOrder: -1}
	if _, err := NewTransform(p); err == nil {
		t.Error("expected error for negative SIP order")
	}
}

func TestSIPForwardEvaluation(t *testing.T) {
	sip, err := compileSIP(&SIPCoefficients{
		AOrder: 2, BOrder: 2,
		A: map[string]float64{"A_2_0": 1e-6, "A_1_1": -2e-7},
		B: map[string]float64{"B_0_2": 2e-6},
	})
	if err != nil {
		t.Fatalf("compileSIP: %v", err)
	}

	u, v := 100.0, 50.0
	f, g := sip.forward(u, v)

	wantF := 1e-6*u*u - 2e-7*u*v // 0.01 - 0.001
	wantG := 2e-6 * v * v        // 0.005
	if math.Abs(f-wantF) > 1e-15 || math.Abs(g-wantG) > 1e-15 {
		t.Errorf("forward(%v,%v) = (%v, %v), want (%v, %v)", u, v, f, g, wantF, wantG)
	}
}

// TestSIPForwardMatchesShiftedLinear checks the layering order: the forward
// correction is added to the pixel offset before the CD matrix, so a SIP
// transform at p must equal the plain transform at p shifted by (f, g).
func TestSIPForwardMatchesShiftedLinear(t *testing.T) {
	coeffs := &SIPCoefficients{
		AOrder: 2, BOrder: 2,
		A: map[string]float64{"A_2_0": 1e-6},
		B: map[string]float64{"B_0_2": 2e-6},
	}

	params := orionParams()
	params.SIP = coeffs
	withSIP := mustTransform(t, params)
	plain := mustTransform(t, orionParams())

	p := Pixel{X: 2148.5, Y: 2098.5} // offset (100, 50)
	u, v := p.X-2048.5, p.Y-2048.5
	f := 1e-6 * u * u
	g := 2e-6 * v * v

	got := withSIP.PixelToWorld(p)
	want := plain.PixelToWorld(Pixel{X: p.X + f, Y: p.Y + g})

	if math.Abs(got.RA-want.RA) > 1e-12 || math.Abs(got.Dec-want.Dec) > 1e-12 {
		t.Errorf("SIP transform = %v, shifted linear = %v", got, want)
	}
}

func TestRoundTripIterativeSIP(t *testing.T) {
	// Forward terms only — the inverse falls back to fixed-point iteration.
	// Coefficients sized for ~1 px of distortion at the frame edge.
	params := orionParams()
	params.SIP = &SIPCoefficients{
		AOrder: 2, BOrder: 2,
		A: map[string]float64{"A_2_0": 2e-7, "A_0_2": -1.2e-7, "A_1_1": 8e-8},
		B: map[string]float64{"B_2_0": -1.5e-7, "B_0_2": 2.5e-7, "B_1_1": -6e-8},
	}
	tr := mustTransform(t, params)

	pixels := []Pixel{
		{2048.5, 2048.5},
		{100, 100},
		{4000, 200},
		{300, 3900},
		{4096, 4096},
	}
	for _, p := range pixels {
		got := tr.WorldToPixel(tr.PixelToWorld(p))
		if math.Abs(got.X-p.X) > 0.1 || math.Abs(got.Y-p.Y) > 0.1 {
			t.Errorf("iterative round trip %v → %v, want within 0.1 px", p, got)
		}
	}
}

func TestRoundTripExplicitInverseSIP(t *testing.T) {
	// f depends only on v and the v axis is undistorted, so the negated
	// coefficient is the exact inverse polynomial and the AP/BP path must
	// round-trip as tightly as the no-SIP case.
	const a = 3e-7
	params := orionParams()
	params.SIP = &SIPCoefficients{
		AOrder: 2, BOrder: 2,
		A:       map[string]float64{"A_0_2": a},
		B:       map[string]float64{},
		APOrder: 2, BPOrder: 2,
		AP: map[string]float64{"AP_0_2": -a},
		BP: map[string]float64{},
	}
	tr := mustTransform(t, params)

	pixels := []Pixel{
		{2048.5, 2048.5},
		{0, 0},
		{4096, 0},
		{512.25, 3777.75},
	}
	for _, p := range pixels {
		got := tr.WorldToPixel(tr.PixelToWorld(p))
		if math.Abs(got.X-p.X) > 1e-3 || math.Abs(got.Y-p.Y) > 1e-3 {
			t.Errorf("AP/BP round trip %v → %v, want sub-milli-pixel agreement", p, got)
		}
	}
}

func TestInvertIterativeConverges(t *testing.T) {
	a, err := compilePoly(map[string]float64{"A_2_0": 1e-6}, 2, "A")
	if err != nil {
		t.Fatal(err)
	}
	b, err := compilePoly(map[string]float64{"B_0_2": 1e-6}, 2, "B")
	if err != nil {
		t.Fatal(err)
	}

	// Distort a known offset, then invert the distorted value.
	u0, v0 := 800.0, -600.0
	bigU := u0 + a.eval(u0, v0)
	bigV := v0 + b.eval(u0, v0)

	u, v, iters := invertIterative(a, b, bigU, bigV, 10, 1e-8)
	if math.Abs(u-u0) > 1e-6 || math.Abs(v-v0) > 1e-6 {
		t.Errorf("invertIterative = (%v, %v), want (%v, %v)", u, v, u0, v0)
	}
	if iters >= 10 {
		t.Errorf("iters = %d, expected convergence well before the cap", iters)
	}
}

func TestInvertIterativeCapReturnsLastIterate(t *testing.T) {
	a, _ := compilePoly(map[string]float64{"A_2_0": 1e-6}, 2, "A")
	b, _ := compilePoly(map[string]float64{"B_0_2": 1e-6}, 2, "B")

	u0, v0 := 800.0, -600.0
	bigU := u0 + a.eval(u0, v0)
	bigV := v0 + b.eval(u0, v0)

	// One round cannot reach 1e-8; the call must still terminate and hand
	// back its best approximation.
	u, v, iters := invertIterative(a, b, bigU, bigV, 1, 1e-8)
	if iters != 1 {
		t.Fatalf("iters = %d, want cap of 1", iters)
	}
	if math.IsNaN(u) || math.IsNaN(v) {
		t.Fatal("capped iteration returned NaN")
	}
	// Still closer than the starting guess.
	if math.Abs(u-u0) > math.Abs(bigU-u0) || math.Abs(v-v0) > math.Abs(bigV-v0) {
		t.Errorf("capped iterate (%v, %v) did not improve on the initial guess", u, v)
	}
}

func TestInvertPropagatesNaN(t *testing.T) {
	sip, err := compileSIP(&SIPCoefficients{
		AOrder: 2, BOrder: 2,
		A: map[string]float64{"A_2_0": 1e-6},
		B: map[string]float64{"B_0_2": 1e-6},
	})
	if err != nil {
		t.Fatal(err)
	}
	u, v := sip.invert(math.NaN(), 5)
	if !math.IsNaN(u) || !math.IsNaN(v) {
		t.Errorf("invert(NaN, 5) = (%v, %v), want NaN", u, v)
	}
}

func TestIpow(t *testing.T) {
	tests := []struct {
		x    float64
		n    int
		want float64
	}{
		{2, 0, 1},
		{2, 1, 2},
		{2, 5, 32},
		{-3, 2, 9},
		{-3, 3, -27},
		{0.5, 2, 0.25},
	}
	for _, tt := range tests {
		if got := ipow(tt.x, tt.n); got != tt.want {
			t.Errorf("ipow(%v, %d) = %v, want %v", tt.x, tt.n, got, tt.want)
		}
	}
}
