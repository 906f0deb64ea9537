package wcs

// ImageCorners returns the sky positions of the four corners of an image
// with the given pixel dimensions, in the order (0,0), (w,0), (0,h), (w,h).
// Built purely on PixelToWorld, so SIP correction applies when present.
// Each result has RA in [0, 360) and Dec in [-90, 90].
func (t *Transform) ImageCorners(widthPx, heightPx float64) [4]World {
	return [4]World{
		t.PixelToWorld(Pixel{X: 0, Y: 0}),
		t.PixelToWorld(Pixel{X: widthPx, Y: 0}),
		t.PixelToWorld(Pixel{X: 0, Y: heightPx}),
		t.PixelToWorld(Pixel{X: widthPx, Y: heightPx}),
	}
}

// ImageCenter returns the sky position of the image center.
func (t *Transform) ImageCenter(widthPx, heightPx float64) World {
	return t.PixelToWorld(Pixel{X: widthPx / 2, Y: heightPx / 2})
}
