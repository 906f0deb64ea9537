package wcs

// CDMatrix is the 2x2 linear calibration block of a parsed header, in
// degrees per pixel.
type CDMatrix struct {
	CD1_1 float64 `json:"cd1_1"`
	CD1_2 float64 `json:"cd1_2"`
	CD2_1 float64 `json:"cd2_1"`
	CD2_2 float64 `json:"cd2_2"`
}

// Info is the loosely-typed calibration record produced by a header-parsing
// collaborator. Unlike LinearParams it may be under-specified: an image that
// has not been plate-solved carries scale and rotation estimates at best and
// no CD matrix. PixelScale (arcsec/px) and Rotation (deg) are informational
// display values; they are never used to synthesize a missing matrix.
type Info struct {
	ReferencePixel Pixel     `json:"reference_pixel"`
	ReferenceCoord World     `json:"reference_coordinates"`
	PixelScale     float64   `json:"pixel_scale"`
	Rotation       float64   `json:"rotation"`
	CDMatrix       *CDMatrix `json:"cd_matrix,omitempty"`
}

// FromInfo builds a Transform from a loose calibration record. A record
// without a CD matrix cannot define a transform; that is the normal state of
// an unsolved image, so it is reported as (nil, nil) — an absence, not an
// error — and callers show their "not solved" state. A present but singular
// matrix is a real configuration error, exactly as in NewTransform.
func FromInfo(info Info, sip *SIPCoefficients) (*Transform, error) {
	if info.CDMatrix == nil {
		return nil, nil
	}

	return NewTransform(LinearParams{
		CRPix1: info.ReferencePixel.X,
		CRPix2: info.ReferencePixel.Y,
		CRVal1: info.ReferenceCoord.RA,
		CRVal2: info.ReferenceCoord.Dec,
		CD1_1:  info.CDMatrix.CD1_1,
		CD1_2:  info.CDMatrix.CD1_2,
		CD2_1:  info.CDMatrix.CD2_1,
		CD2_2:  info.CDMatrix.CD2_2,
		SIP:    sip,
	})
}
