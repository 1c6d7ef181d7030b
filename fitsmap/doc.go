// Package fitsmap loads calibrated 2D FITS intensity maps and samples them
// at a sky position.
//
// A [Map] holds the pixel grid, its celestial [WCS] and the unit named by
// BUNIT. Only zenithal TAN and SIN projections in equatorial or galactic
// axes are understood; the linear part may be given as CDi_j, PCi_j with
// CDELTi, or CDELTi with CROTA2. Pixel coordinates are zero-based: the FITS
// reference pixel CRPIX = (1, 1) is pixel (0, 0) here.
//
// Sampling never fails on position: coordinates outside the grid clamp to
// the nearest edge pixel for both [Nearest] and [Bilinear]. A blank (NaN)
// value returns [ErrBlankPixel].
//
// # Usage
//
//	ex := fitsmap.NewExtractor(fitsmap.Bilinear)
//	intensity, err := ex.ReadValue("lmc_both_spire_250_binned.fits", pos)
//	flux, err := fitsmap.IntensityToFlux(intensity, consts.BeamSolidAngle)
package fitsmap
