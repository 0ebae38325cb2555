// Package surrogate provides a gradient-boosted regression tree model that
// predicts the reward of a configuration from its features.
//
// A Model is plain data: it marshals to JSON and can be copied across
// goroutines or processes without sharing state.
package surrogate

import (
	"errors"
	"math/rand"
	"sort"
)

// Config holds the boosting hyperparameters.
type Config struct {
	Trees        int     `json:"trees"`
	MaxDepth     int     `json:"max_depth"`
	LearningRate float64 `json:"learning_rate"`
	Subsample    float64 `json:"subsample"`
	MinLeaf      int     `json:"min_leaf"`
	Seed         int64   `json:"seed"`
}

// DefaultConfig returns a small model suited to a few hundred samples.
func DefaultConfig() Config {
	return Config{
		Trees:        50,
		MaxDepth:     4,
		LearningRate: 0.1,
		Subsample:    0.8,
		MinLeaf:      2,
		Seed:         1,
	}
}

// Node is a tree node. Leaves have Left == -1.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
}

// Tree is a regression tree stored as a node array rooted at 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left < 0 {
			return n.Value
		}

		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Model is a trained ensemble.
type Model struct {
	Config    Config  `json:"config"`
	Features  int     `json:"features"`
	Base      float64 `json:"base"`
	Ensemble  []Tree  `json:"ensemble"`
	TrainedOn int     `json:"trained_on"`
}

// New returns an untrained model.
func New(cfg Config) *Model {
	return &Model{Config: cfg}
}

// ErrShape is returned for empty or ragged training data.
var ErrShape = errors.New("surrogate: inconsistent training data")

// Ready reports whether the model has been trained.
func (m *Model) Ready() bool {
	return m != nil && m.TrainedOn > 0
}

// Predict returns the predicted target of x. The second result is false if
// the model is not trained or x has the wrong width; callers then must not
// prune on the prediction.
func (m *Model) Predict(x []float64) (float64, bool) {
	if !m.Ready() || len(x) != m.Features {
		return 0, false
	}

	y := m.Base
	for i := range m.Ensemble {
		y += m.Config.LearningRate * m.Ensemble[i].predict(x)
	}

	return y, true
}

// Train fits the model to (X, y) from scratch.
func (m *Model) Train(X [][]float64, y []float64) error {
	if len(X) == 0 || len(X) != len(y) {
		return ErrShape
	}

	width := len(X[0])
	for _, row := range X {
		if len(row) != width {
			return ErrShape
		}
	}

	cfg := m.Config
	if cfg.Trees <= 0 {
		cfg = DefaultConfig()
	}

	rng := rand.New(rand.NewSource(cfg.Seed))

	base := 0.0
	for _, v := range y {
		base += v
	}
	base /= float64(len(y))

	pred := make([]float64, len(y))
	for i := range pred {
		pred[i] = base
	}

	residual := make([]float64, len(y))
	ensemble := make([]Tree, 0, cfg.Trees)

	for range cfg.Trees {
		for i := range y {
			residual[i] = y[i] - pred[i]
		}

		rows := subsample(rng, len(y), cfg.Subsample)
		b := treeBuilder{x: X, r: residual, maxDepth: cfg.MaxDepth, minLeaf: max(cfg.MinLeaf, 1)}
		b.build(rows, 0)

		t := Tree{Nodes: b.nodes}
		for i := range pred {
			pred[i] += cfg.LearningRate * t.predict(X[i])
		}

		ensemble = append(ensemble, t)
	}

	m.Config = cfg
	m.Features = width
	m.Base = base
	m.Ensemble = ensemble
	m.TrainedOn = len(y)

	return nil
}

func subsample(rng *rand.Rand, n int, frac float64) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}

	if frac <= 0 || frac >= 1 || n < 4 {
		return rows
	}

	rng.Shuffle(n, func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })

	return rows[:max(int(float64(n)*frac), 2)]
}

type treeBuilder struct {
	x        [][]float64
	r        []float64
	maxDepth int
	minLeaf  int
	nodes    []Node
}

func (b *treeBuilder) leaf(rows []int) int {
	sum := 0.0
	for _, i := range rows {
		sum += b.r[i]
	}

	b.nodes = append(b.nodes, Node{Left: -1, Right: -1, Value: sum / float64(len(rows))})

	return len(b.nodes) - 1
}

func (b *treeBuilder) build(rows []int, depth int) int {
	if depth >= b.maxDepth || len(rows) < 2*b.minLeaf {
		return b.leaf(rows)
	}

	feature, threshold, ok := b.bestSplit(rows)
	if !ok {
		return b.leaf(rows)
	}

	var left, right []int
	for _, i := range rows {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	idx := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: feature, Threshold: threshold})

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[idx].Left = l
	b.nodes[idx].Right = r

	return idx
}

// bestSplit finds the split with the largest reduction of squared error.
func (b *treeBuilder) bestSplit(rows []int) (int, float64, bool) {
	total, n := 0.0, float64(len(rows))
	for _, i := range rows {
		total += b.r[i]
	}

	bestGain, bestFeature, bestThreshold := 1e-12, -1, 0.0
	sorted := make([]int, len(rows))

	for f := range b.x[rows[0]] {
		copy(sorted, rows)
		sort.Slice(sorted, func(a, c int) bool {
			return b.x[sorted[a]][f] < b.x[sorted[c]][f]
		})

		left := 0.0
		for k := 0; k < len(sorted)-1; k++ {
			left += b.r[sorted[k]]

			nl := float64(k + 1)
			if k+1 < b.minLeaf || len(sorted)-k-1 < b.minLeaf {
				continue
			}

			lo, hi := b.x[sorted[k]][f], b.x[sorted[k+1]][f]
			if lo == hi {
				continue
			}

			right := total - left
			gain := left*left/nl + right*right/(n-nl) - total*total/n
			if gain > bestGain {
				bestGain, bestFeature, bestThreshold = gain, f, (lo+hi)/2
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}
