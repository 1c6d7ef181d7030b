// Package band describes the photometric bands of an SED and locates the
// calibrated map for each of them on disk.
//
// A [Registry] is built once and never mutated. [FindFile] requires exactly
// one matching file per band: zero matches give [ErrMissingData], more than
// one give an [*AmbiguousDataError] listing every candidate.
//
// # Usage
//
//	reg := band.Default()
//	for _, spec := range reg.Specs() {
//		path, err := band.FindFile("data/binned", spec)
//		...
//	}
package band
