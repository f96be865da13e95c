package growth

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Outcome tells how a fit terminated.
type Outcome uint16

const (
	// OutcomeConverged means a tolerance criterion was met.
	OutcomeConverged Outcome = iota
	// OutcomeMaxIterations means the iteration budget ran out.
	OutcomeMaxIterations
	// OutcomeTimeout means the time budget ran out.
	OutcomeTimeout
	// OutcomeCancelled means the context was done before convergence.
	OutcomeCancelled
	// OutcomeStalled means no damping produced a lower cost away from a minimum.
	OutcomeStalled
	// OutcomeInsufficientData means there are fewer points than parameters.
	OutcomeInsufficientData
	// OutcomeNonFinite means the model could not be evaluated at the starting point.
	OutcomeNonFinite
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConverged:
		return "converged"
	case OutcomeMaxIterations:
		return "max iterations"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeStalled:
		return "stalled"
	case OutcomeInsufficientData:
		return "insufficient data"
	case OutcomeNonFinite:
		return "non-finite"
	default:
		return "unknown"
	}
}

// FitOptions bounds and tunes the Levenberg-Marquardt optimizer.
type FitOptions struct {
	// Maximum number of accepted or rejected outer iterations. Default 500
	MaxIterations int
	// Wall-clock budget for a single fit. Zero means no limit
	Timeout time.Duration
	// Relative cost reduction treated as convergence. Default 1e-12
	FunctionTolerance float64
	// Relative step length treated as convergence. Default 1e-10
	StepTolerance float64
	// Cosine between residuals and Jacobian columns treated as convergence. Default 1e-10
	GradientTolerance float64
}

// DefaultFitOptions returns the optimizer settings used when none are given.
func DefaultFitOptions() FitOptions {
	return FitOptions{
		MaxIterations:     500,
		FunctionTolerance: 1e-12,
		StepTolerance:     1e-10,
		GradientTolerance: 1e-10,
	}
}

func (opts FitOptions) withDefaults() FitOptions {
	def := DefaultFitOptions()
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = def.MaxIterations
	}
	if opts.FunctionTolerance <= 0 {
		opts.FunctionTolerance = def.FunctionTolerance
	}
	if opts.StepTolerance <= 0 {
		opts.StepTolerance = def.StepTolerance
	}
	if opts.GradientTolerance <= 0 {
		opts.GradientTolerance = def.GradientTolerance
	}
	return opts
}

// FitResult is the outcome of a single fit. Params and StdDev are only
// meaningful when Converged reports true; StdDev additionally requires HasStdDev.
type FitResult struct {
	Outcome    Outcome
	Params     Params
	StdDev     Params
	HasStdDev  bool
	Iterations int
	// Half the residual sum of squares at Params
	Cost float64
}

// Converged reports whether the optimizer met a tolerance criterion.
func (r FitResult) Converged() bool {
	return r.Outcome == OutcomeConverged
}

const (
	initialDamping = 1e-3
	maxDamping     = 1e16
	minDamping     = 1e-15
	// Floor for the diagonal scaling so flat directions still get damped
	minDiagonal = 1e-12
	// A stalled fit this close to stationary is accepted as converged
	stallGradientTolerance = 1e-6
	// A stalled fit whose cost is this small relative to ½Σy² sits at rounding
	// noise, where the gradient cosine is meaningless
	stallCostTolerance = 1e-24
)

// Fit fits the Gompertz model to (timestamps, measurements) by nonlinear least
// squares, starting at initial. It never returns an error: budget exhaustion,
// cancellation and numerical breakdown are reported through FitResult.Outcome.
func Fit(ctx context.Context, timestamps, measurements []float64, initial Params, opts FitOptions) FitResult {
	n := len(timestamps)
	if n != len(measurements) || n < numParams {
		return FitResult{Outcome: OutcomeInsufficientData}
	}
	opts = opts.withDefaults()
	var deadline time.Time
	if opts.Timeout > 0 {
		deadline = time.Now().Add(opts.Timeout)
	}

	x := initial.vector()
	residuals := make([]float64, n)
	cost := evaluateCost(timestamps, measurements, x, residuals)
	if !finite(cost) || !allFinite(x) {
		return FitResult{Outcome: OutcomeNonFinite}
	}

	dataScale := floats.Dot(measurements, measurements) / 2

	jac := mat.NewDense(n, numParams, nil)
	jtj := mat.NewSymDense(numParams, nil)
	augmented := mat.NewSymDense(numParams, nil)
	grad := mat.NewVecDense(numParams, nil)
	step := mat.NewVecDense(numParams, nil)
	trial := make([]float64, numParams)
	trialResiduals := make([]float64, n)
	lambda := initialDamping

	for iter := 1; iter <= opts.MaxIterations; iter++ {
		if ctx.Err() != nil {
			return FitResult{Outcome: OutcomeCancelled, Iterations: iter - 1}
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return FitResult{Outcome: OutcomeTimeout, Iterations: iter - 1}
		}

		fillJacobian(jac, timestamps, x)
		jtj.SymOuterK(1, jac.T())
		grad.MulVec(jac.T(), mat.NewVecDense(n, residuals))
		if gradientCosine(jac, grad, residuals) <= opts.GradientTolerance {
			return converged(timestamps, x, cost, iter)
		}

		improved := false
		for lambda <= maxDamping {
			augmented.CopySym(jtj)
			for i := 0; i < numParams; i++ {
				d := math.Max(jtj.At(i, i), minDiagonal)
				augmented.SetSym(i, i, jtj.At(i, i)+lambda*d)
			}
			var chol mat.Cholesky
			if !chol.Factorize(augmented) {
				lambda *= 10
				continue
			}
			if err := chol.SolveVecTo(step, grad); err != nil {
				lambda *= 10
				continue
			}
			for i := range trial {
				trial[i] = x[i] + step.AtVec(i)
			}
			trialCost := evaluateCost(timestamps, measurements, trial, trialResiduals)
			if !finite(trialCost) || trialCost >= cost {
				lambda *= 10
				continue
			}

			reduction := cost - trialCost
			stepNorm := mat.Norm(step, 2)
			prevCost := cost
			copy(x, trial)
			copy(residuals, trialResiduals)
			cost = trialCost
			lambda = math.Max(lambda/10, minDamping)
			improved = true

			if cost == 0 ||
				reduction <= opts.FunctionTolerance*prevCost ||
				stepNorm <= opts.StepTolerance*(floats.Norm(x, 2)+opts.StepTolerance) {
				return converged(timestamps, x, cost, iter)
			}
			break
		}
		if !improved {
			if gradientCosine(jac, grad, residuals) <= stallGradientTolerance ||
				cost <= stallCostTolerance*dataScale {
				return converged(timestamps, x, cost, iter)
			}
			return FitResult{Outcome: OutcomeStalled, Iterations: iter, Cost: cost}
		}
	}
	return FitResult{Outcome: OutcomeMaxIterations, Iterations: opts.MaxIterations, Cost: cost}
}

// converged packs a successful result, adding standard deviations from the
// covariance s²·(JᵀJ)⁻¹ when it is finite.
func converged(timestamps []float64, x []float64, cost float64, iterations int) FitResult {
	result := FitResult{
		Outcome:    OutcomeConverged,
		Params:     paramsFromVector(x),
		Iterations: iterations,
		Cost:       cost,
	}
	dof := len(timestamps) - numParams
	if dof <= 0 {
		return result
	}
	jac := mat.NewDense(len(timestamps), numParams, nil)
	fillJacobian(jac, timestamps, x)
	jtj := mat.NewSymDense(numParams, nil)
	jtj.SymOuterK(1, jac.T())

	var chol mat.Cholesky
	if !chol.Factorize(jtj) {
		return result
	}
	var cov mat.SymDense
	if err := chol.InverseTo(&cov); err != nil {
		return result
	}
	variance := 2 * cost / float64(dof)
	std := make([]float64, numParams)
	for i := range std {
		std[i] = math.Sqrt(math.Max(cov.At(i, i)*variance, 0))
	}
	if !allFinite(std) {
		return result
	}
	result.StdDev = paramsFromVector(std)
	result.HasStdDev = true
	return result
}

// evaluateCost fills residuals with y - f(t) and returns half their sum of squares.
func evaluateCost(timestamps, measurements, x []float64, residuals []float64) float64 {
	p := paramsFromVector(x)
	var sum float64
	for i, t := range timestamps {
		r := measurements[i] - Gompertz(t, p)
		residuals[i] = r
		sum += r * r
	}
	return sum / 2
}

func fillJacobian(jac *mat.Dense, timestamps, x []float64) {
	p := paramsFromVector(x)
	row := make([]float64, numParams)
	for i, t := range timestamps {
		gompertzGradient(row, t, p)
		jac.SetRow(i, row)
	}
}

// gradientCosine is the largest cosine between the residual vector and a
// Jacobian column. It is scale free, so one tolerance fits any units.
func gradientCosine(jac *mat.Dense, grad *mat.VecDense, residuals []float64) float64 {
	rNorm := floats.Norm(residuals, 2)
	if rNorm == 0 {
		return 0
	}
	var worst float64
	for j := 0; j < numParams; j++ {
		colNorm := mat.Norm(jac.ColView(j), 2)
		if colNorm == 0 {
			continue
		}
		worst = math.Max(worst, math.Abs(grad.AtVec(j))/(colNorm*rNorm))
	}
	return worst
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func allFinite(values []float64) bool {
	for _, v := range values {
		if !finite(v) {
			return false
		}
	}
	return true
}
