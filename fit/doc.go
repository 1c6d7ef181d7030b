// Package fit fits the modified-blackbody dust model to an SED.
//
// A [Mode] is the parameterization: [FixedBeta] fits the temperature and
// log10 of the total column with β held constant, [Free] also fits β. Both
// dispatch to the same bounded least-squares solver on the weighted
// residuals r_i = (S_i - model_i)/σ_i. Result.Cost is Σ r_i² at the optimum.
//
// Failing to converge is not an error: Result.Converged is false and the
// caller decides whether to retry from another starting point
// ([Mode.WithInitial]), warn or abort.
//
// # Usage
//
//	f, err := fit.NewFitter(dust.DefaultConstants())
//	mode, err := fit.ParseMode("fixed", f.Constants())
//	res, err := f.Fit(wav, flux, ferr, mode)
//	grid, _ := fit.LogGrid(fit.CurveMinUm, fit.CurveMaxUm, fit.CurvePoints)
//	curve, err := f.Curve(res, grid)
package fit
