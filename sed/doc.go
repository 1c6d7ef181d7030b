// Package sed assembles a spectral energy distribution from per-band maps
// and reads and writes it as CSV.
//
// [Assembler.Assemble] visits the bands of a [band.Registry] in order,
// locates each map, samples it at the source position, converts the surface
// brightness to flux density with the beam solid angle and assigns a
// fractional uncertainty. The result is always sorted by wavelength.
//
// The CSV artifact has the columns
//
//	band,wav_um,file,I_MJy_sr,S_Jy,Serr_Jy
//
// and [ReadCSV] rebuilds the SED written by [WriteCSV].
//
// # Usage
//
//	a, err := sed.NewAssembler(band.Default(), dust.DefaultConstants(),
//		sed.WithDataDir("data/binned"),
//		sed.WithMethod(fitsmap.Bilinear),
//	)
//	res, err := a.Assemble(ctx, pos)
//	err = sed.WriteFile("n113_sed_points.csv", res.SED)
package sed
