package growth

import (
	"math"
)

// Params holds the four Gompertz model parameters.
// Times are in seconds, GrowthRate is in measurement units per second.
type Params struct {
	InitialSize      float64
	LagTime          float64
	GrowthRate       float64
	CarryingCapacity float64
}

// numParams is the number of free model parameters.
const numParams = 4

// vector returns the parameters in optimizer order: y0, λ, μmax, A.
func (p Params) vector() []float64 {
	return []float64{p.InitialSize, p.LagTime, p.GrowthRate, p.CarryingCapacity}
}

func paramsFromVector(x []float64) Params {
	return Params{
		InitialSize:      x[0],
		LagTime:          x[1],
		GrowthRate:       x[2],
		CarryingCapacity: x[3],
	}
}

// Gompertz evaluates the parametrized Gompertz function (Zwietering et al. 1990)
//
//	y(t) = y0 + A·exp(−exp((μmax·e/A)·(λ−t) + 1))
//
// The carrying capacity term is evaluated in log space so large exponents
// underflow to zero instead of overflowing. A non-finite result is reported as 0.
func Gompertz(t float64, p Params) float64 {
	z := gompertzExponent(t, p)
	var term float64
	if p.CarryingCapacity > 0 {
		term = math.Exp(math.Log(p.CarryingCapacity) - math.Exp(z))
	} else {
		term = p.CarryingCapacity * math.Exp(-math.Exp(z))
	}
	y := p.InitialSize + term
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return 0
	}
	return y
}

func gompertzExponent(t float64, p Params) float64 {
	return (p.GrowthRate*math.E/p.CarryingCapacity)*(p.LagTime-t) + 1
}

// gompertzGradient writes ∂y/∂(y0, λ, μmax, A) at time t into dst.
// Non-finite partials are zeroed so a single bad row cannot poison the normal equations.
func gompertzGradient(dst []float64, t float64, p Params) {
	z := gompertzExponent(t, p)
	g := math.Exp(-math.Exp(z))
	// h = exp(z)·exp(−exp(z)), written so it tends to 0 rather than Inf·0
	h := math.Exp(z - math.Exp(z))
	slope := p.GrowthRate * math.E / p.CarryingCapacity
	dt := p.LagTime - t

	dst[0] = 1
	dst[1] = -h * p.GrowthRate * math.E
	dst[2] = -h * math.E * dt
	dst[3] = g + h*slope*dt
	for i := range dst {
		if math.IsNaN(dst[i]) || math.IsInf(dst[i], 0) {
			dst[i] = 0
		}
	}
}
