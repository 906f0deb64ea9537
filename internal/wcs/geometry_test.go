package wcs

import (
	"math"
	"testing"

	"github.com/AstroAir/skymap-wcs/internal/sphere"
)

func TestImageCornersNormalized(t *testing.T) {
	// Tangent point just past RA 0 so western corners cross the wrap.
	p := orionParams()
	p.CRVal1 = 0.05
	p.CRVal2 = -5.392
	tr := mustTransform(t, p)

	corners := tr.ImageCorners(4096, 4096)
	for i, c := range corners {
		if c.RA < 0 || c.RA >= 360 {
			t.Errorf("corner %d RA = %v, want [0,360)", i, c.RA)
		}
		if c.Dec < -90 || c.Dec > 90 {
			t.Errorf("corner %d Dec = %v, want [-90,90]", i, c.Dec)
		}
	}

	// The corners of a ~1.14° field sit about 0.8° from the center.
	for i, c := range corners {
		sep := sphere.Separation(0.05, -5.392, c.RA, c.Dec)
		if math.Abs(sep-0.8) > 0.05 {
			t.Errorf("corner %d separation from center = %v deg, want ≈ 0.8", i, sep)
		}
	}
}

func TestImageCornersMatchPixelToWorld(t *testing.T) {
	tr := mustTransform(t, orionParams())
	corners := tr.ImageCorners(4096, 2048)

	want := [4]Pixel{{0, 0}, {4096, 0}, {0, 2048}, {4096, 2048}}
	for i, px := range want {
		w := tr.PixelToWorld(px)
		if corners[i] != w {
			t.Errorf("corner %d = %v, PixelToWorld(%v) = %v", i, corners[i], px, w)
		}
	}
}

func TestImageCenter(t *testing.T) {
	tr := mustTransform(t, orionParams())

	// The reference pixel is the frame center of a 4097x4097 region starting
	// at 0, so the center of a (2*2048.5)-sized image is the reference
	// coordinate itself.
	c := tr.ImageCenter(4097, 4097)
	if math.Abs(c.RA-83.633) > 1e-9 || math.Abs(c.Dec-(-5.392)) > 1e-9 {
		t.Errorf("ImageCenter = %v, want reference coordinate", c)
	}
}
