package tuner

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

var errSingular = errors.New("gaussian process: kernel matrix is not positive definite")

// gaussianProcess is a zero-mean GP regressor with an RBF kernel over
// features scaled to [0, 1].
type gaussianProcess struct {
	lengthScale float64
	noise       float64

	x     [][]float64
	mean  float64
	chol  mat.Cholesky
	alpha *mat.VecDense
}

func newGaussianProcess() *gaussianProcess {
	return &gaussianProcess{lengthScale: 0.3, noise: 1e-6}
}

func (g *gaussianProcess) kernel(a, b []float64) float64 {
	d := 0.0
	for i := range a {
		diff := a[i] - b[i]
		d += diff * diff
	}

	return math.Exp(-d / (2 * g.lengthScale * g.lengthScale))
}

// fit conditions the process on (x, y). Targets are centered on their
// mean.
func (g *gaussianProcess) fit(x [][]float64, y []float64) error {
	n := len(x)
	if n == 0 || n != len(y) {
		return errSingular
	}

	g.mean = 0
	for _, v := range y {
		g.mean += v
	}
	g.mean /= float64(n)

	k := mat.NewSymDense(n, nil)
	for i := range n {
		for j := i; j < n; j++ {
			v := g.kernel(x[i], x[j])
			if i == j {
				v += g.noise
			}
			k.SetSym(i, j, v)
		}
	}

	if ok := g.chol.Factorize(k); !ok {
		return errSingular
	}

	centered := make([]float64, n)
	for i, v := range y {
		centered[i] = v - g.mean
	}

	g.alpha = mat.NewVecDense(n, nil)
	if err := g.chol.SolveVecTo(g.alpha, mat.NewVecDense(n, centered)); err != nil {
		return err
	}

	g.x = x

	return nil
}

// predict returns the posterior mean and standard deviation at p.
func (g *gaussianProcess) predict(p []float64) (float64, float64) {
	n := len(g.x)
	ks := mat.NewVecDense(n, nil)
	for i, xi := range g.x {
		ks.SetVec(i, g.kernel(p, xi))
	}

	mu := g.mean + mat.Dot(ks, g.alpha)

	w := mat.NewVecDense(n, nil)
	if err := g.chol.SolveVecTo(w, ks); err != nil {
		return mu, 0
	}

	variance := 1 + g.noise - mat.Dot(ks, w)

	return mu, math.Sqrt(math.Max(variance, 0))
}

// expectedImprovement of a maximization at a point with posterior
// (mu, sigma) over the incumbent best.
func expectedImprovement(mu, sigma, best, xi float64) float64 {
	if sigma <= 0 {
		return math.Max(mu-best-xi, 0)
	}

	z := (mu - best - xi) / sigma

	return (mu-best-xi)*distuv.UnitNormal.CDF(z) + sigma*distuv.UnitNormal.Prob(z)
}
