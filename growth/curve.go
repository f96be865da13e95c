package growth

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
)

// DataProvider supplies the measurements a growth curve is fitted to:
// every timestamp maps to one or more measurements taken at that time.
type DataProvider interface {
	GrowthCurveData() map[time.Duration][]float64
}

// Parameters are the biologically meaningful outputs of a fit.
type Parameters struct {
	LagTime          time.Duration
	GrowthRate       float64
	CarryingCapacity float64
	DoublingTime     time.Duration
}

// DoublingTime returns ln2/growthRate as a duration, or 0 for a non-positive rate.
func DoublingTime(growthRate float64) time.Duration {
	if growthRate <= 0 {
		return 0
	}
	return secondsToDuration(math.Ln2 / growthRate)
}

func secondsToDuration(seconds float64) time.Duration {
	if !finite(seconds) {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// Curve fits the Gompertz model to the data of its provider and caches the
// resulting parameters. Accessors trigger a fit on first use; later reads are
// served from the cache until Fit or Invalidate is called.
type Curve struct {
	provider DataProvider
	options  FitOptions
	logger   *slog.Logger

	mu     sync.Mutex
	fitted bool
	result FitResult
	params Parameters
}

// CurveOption configures a Curve.
type CurveOption func(*Curve)

// WithFitOptions sets the optimizer budget and tolerances.
func WithFitOptions(opts FitOptions) CurveOption {
	return func(c *Curve) {
		c.options = opts
	}
}

// WithLogger sets the logger used to report failed fits.
func WithLogger(logger *slog.Logger) CurveOption {
	return func(c *Curve) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCurve creates a growth curve over provider's data.
func NewCurve(provider DataProvider, options ...CurveOption) *Curve {
	c := &Curve{
		provider: provider,
		options:  DefaultFitOptions(),
		logger:   slog.Default(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Fit (re)fits the curve and replaces the cached parameters.
// When initial is nil the starting point is the minimum measurement as
// initial size plus the EstimateParameters heuristics, with the growth rate
// converted from per-sample to per-second using the mean sampling interval.
// A fit that does not converge leaves every parameter at zero.
func (c *Curve) Fit(ctx context.Context, initial *Params) FitResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fitLocked(ctx, initial)
}

func (c *Curve) fitLocked(ctx context.Context, initial *Params) FitResult {
	series := NewSeries(c.provider.GrowthCurveData())
	var result FitResult
	if series.Len() == 0 {
		result = FitResult{Outcome: OutcomeInsufficientData}
	} else {
		start := Params{}
		if initial != nil {
			start = *initial
		} else {
			// Lengths always match for a Series
			lag, rate, capacity, _ := EstimateParameters(series.Timestamps, series.Measurements)
			start = Params{
				InitialSize:      floats.Min(series.Measurements),
				LagTime:          lag,
				GrowthRate:       rate / series.meanInterval(),
				CarryingCapacity: capacity,
			}
		}
		result = Fit(ctx, series.Timestamps, series.Measurements, start, c.options)
	}

	c.result = result
	c.params = Parameters{}
	if result.Converged() {
		c.params = Parameters{
			LagTime:          secondsToDuration(result.Params.LagTime),
			GrowthRate:       result.Params.GrowthRate,
			CarryingCapacity: result.Params.CarryingCapacity,
			DoublingTime:     DoublingTime(result.Params.GrowthRate),
		}
	} else {
		c.logger.Debug("growth curve fit did not converge",
			slog.String("outcome", result.Outcome.String()),
			slog.Int("points", series.Len()),
			slog.Int("iterations", result.Iterations),
		)
	}
	c.fitted = true
	return result
}

func (c *Curve) cached() Parameters {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.fitted {
		c.fitLocked(context.Background(), nil)
	}
	return c.params
}

// Invalidate drops the cached parameters so the next access refits.
func (c *Curve) Invalidate() {
	c.mu.Lock()
	c.fitted = false
	c.result = FitResult{}
	c.params = Parameters{}
	c.mu.Unlock()
}

// Fitted reports whether parameters are cached.
func (c *Curve) Fitted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fitted
}

// Result returns the raw outcome of the last fit, fitting first if needed.
func (c *Curve) Result() FitResult {
	c.cached()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Parameters returns all fitted parameters, fitting first if needed.
func (c *Curve) Parameters() Parameters {
	return c.cached()
}

// LagTime returns λ, the time before exponential growth begins.
func (c *Curve) LagTime() time.Duration {
	return c.cached().LagTime
}

// GrowthRate returns μmax, the slope at the inflection point.
func (c *Curve) GrowthRate() float64 {
	return c.cached().GrowthRate
}

// CarryingCapacity returns A, the asymptote of the curve.
func (c *Curve) CarryingCapacity() float64 {
	return c.cached().CarryingCapacity
}

// DoublingTime returns ln2/μmax at the maximal growth rate.
func (c *Curve) DoublingTime() time.Duration {
	return c.cached().DoublingTime
}
