package distribution

import (
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"
)

// layout is the cell geometry of a dataset: one row of nproc cells, or
// nproc rows of nproc cells when every sender has a per-receiver value.
type layout struct {
	nproc  int
	matrix bool
}

func newLayout(nproc int, m2m bool) layout { return layout{nproc: nproc, matrix: m2m} }

func (l layout) rows() int {
	if l.matrix {
		return l.nproc
	}
	return 1
}

func (l layout) cells() int { return l.rows() * l.nproc }

// receiver is the receiving participant of cell i.
func (l layout) receiver(i int) int { return i % l.nproc }

func fill(l layout, f func(i int) int64) []int64 {
	out := make([]int64, l.cells())
	for i := range out {
		out[i] = f(i)
	}
	return out
}

func floorAbs(v float64) int64 { return int64(math.Floor(math.Abs(v))) }

type equalGenerator struct {
	Value int64 `mapstructure:"val"`
}

func (g *equalGenerator) required() []string { return []string{"val"} }

func (g *equalGenerator) validate() error {
	if g.Value < 0 {
		return errors.Errorf("val must be >= 0, got %d", g.Value)
	}
	return nil
}

func (g *equalGenerator) values(l layout, _ *rand.Rand) []int64 {
	return fill(l, func(int) int64 { return g.Value })
}

type normalGenerator struct {
	Mean   float64 `mapstructure:"mean"`
	StdDev float64 `mapstructure:"stddev"`
}

func (g *normalGenerator) required() []string { return nil }

func (g *normalGenerator) validate() error {
	if g.StdDev <= 0 {
		return errors.Errorf("stddev must be > 0, got %g", g.StdDev)
	}
	return nil
}

func (g *normalGenerator) values(l layout, r *rand.Rand) []int64 {
	dist := distuv.Normal{Mu: g.Mean, Sigma: g.StdDev, Src: r}
	return fill(l, func(int) int64 { return floorAbs(dist.Rand()) })
}

type exponentialGenerator struct {
	Scale float64 `mapstructure:"scale"`
}

func (g *exponentialGenerator) required() []string { return nil }

func (g *exponentialGenerator) validate() error {
	if g.Scale <= 0 {
		return errors.Errorf("scale must be > 0, got %g", g.Scale)
	}
	return nil
}

func (g *exponentialGenerator) values(l layout, r *rand.Rand) []int64 {
	dist := distuv.Exponential{Rate: 1 / g.Scale, Src: r}
	return fill(l, func(int) int64 { return floorAbs(dist.Rand()) })
}

type zipfianGenerator struct {
	Exponent float64 `mapstructure:"exponent"`
	Max      uint64  `mapstructure:"max"`
}

func (g *zipfianGenerator) required() []string { return nil }

func (g *zipfianGenerator) validate() error {
	if g.Exponent <= 1 {
		return errors.Errorf("exponent must be > 1, got %g", g.Exponent)
	}
	if g.Max == 0 {
		return errors.New("max must be > 0")
	}
	return nil
}

func (g *zipfianGenerator) values(l layout, r *rand.Rand) []int64 {
	z := rand.NewZipf(r, g.Exponent, 1, g.Max)
	return fill(l, func(int) int64 { return int64(z.Uint64()) + 1 })
}

type uniformGenerator struct {
	Average int64 `mapstructure:"avg"`
}

func (g *uniformGenerator) required() []string { return []string{"avg"} }

func (g *uniformGenerator) validate() error { return checkAverage(g.Average) }

func (g *uniformGenerator) values(l layout, r *rand.Rand) []int64 {
	dist := distuv.Uniform{Min: 0, Max: float64(2 * g.Average), Src: r}
	return fill(l, func(int) int64 { return floorAbs(dist.Rand()) })
}

type bucketGenerator struct {
	Average int64 `mapstructure:"avg"`
	Buckets int   `mapstructure:"buckets"`
}

func (g *bucketGenerator) required() []string { return []string{"avg"} }

func (g *bucketGenerator) validate() error {
	if g.Buckets < 1 {
		return errors.Errorf("buckets must be >= 1, got %d", g.Buckets)
	}
	return checkAverage(g.Average)
}

func (g *bucketGenerator) values(l layout, r *rand.Rand) []int64 {
	return fill(l, func(int) int64 {
		k := int64(r.IntN(g.Buckets))
		return g.Average * (2*k + 1) / int64(g.Buckets)
	})
}

// rampGenerator spreads 2*avg linearly over the cells so that the mean is
// avg within rounding.
type rampGenerator struct {
	Average int64 `mapstructure:"avg"`
	reverse bool
}

func (g *rampGenerator) required() []string { return []string{"avg"} }

func (g *rampGenerator) validate() error { return checkAverage(g.Average) }

func (g *rampGenerator) values(l layout, _ *rand.Rand) []int64 {
	n := l.cells()
	return fill(l, func(i int) int64 {
		if g.reverse {
			i = n - 1 - i
		}
		return int64(math.Round(float64(2*g.Average*int64(i+1)) / float64(n+1)))
	})
}

type spikesGenerator struct {
	Average int64 `mapstructure:"avg"`
	Rho     int64 `mapstructure:"rho"`
}

func (g *spikesGenerator) required() []string { return []string{"avg"} }

func (g *spikesGenerator) validate() error {
	if g.Rho < 1 {
		return errors.Errorf("rho must be >= 1, got %d", g.Rho)
	}
	return checkAverage(g.Average)
}

func (g *spikesGenerator) values(l layout, r *rand.Rand) []int64 {
	spike := distuv.Bernoulli{P: 1 / float64(g.Rho), Src: r}
	return fill(l, func(int) int64 {
		if spike.Rand() == 1 {
			return g.Rho * g.Average
		}
		return 1
	})
}

type alternatingGenerator struct {
	Average int64 `mapstructure:"avg"`
}

func (g *alternatingGenerator) required() []string { return []string{"avg"} }

func (g *alternatingGenerator) validate() error { return checkAverage(g.Average) }

func (g *alternatingGenerator) values(l layout, _ *rand.Rand) []int64 {
	half := g.Average / 2
	return fill(l, func(i int) int64 {
		if l.receiver(i)%2 == 0 {
			return g.Average + half
		}
		return g.Average - half
	})
}

type twoBlocksGenerator struct {
	Average int64 `mapstructure:"avg"`
}

func (g *twoBlocksGenerator) required() []string { return []string{"avg"} }

func (g *twoBlocksGenerator) validate() error { return checkAverage(g.Average) }

func (g *twoBlocksGenerator) values(l layout, _ *rand.Rand) []int64 {
	return fill(l, func(i int) int64 {
		if rcv := l.receiver(i); rcv == 0 || rcv == l.nproc-1 {
			return g.Average
		}
		return 0
	})
}

func checkAverage(avg int64) error {
	if avg < 0 {
		return errors.Errorf("avg must be >= 0, got %d", avg)
	}
	return nil
}
