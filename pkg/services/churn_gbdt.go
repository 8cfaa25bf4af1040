package services

import (
	"fmt"
	"math"
	"sort"
)

// boostingParams are the fixed hyperparameters of the churn ensemble.
type boostingParams struct {
	NEstimators    int     `json:"n_estimators"`
	LearningRate   float64 `json:"learning_rate"`
	MaxDepth       int     `json:"max_depth"`
	MinSamplesLeaf int     `json:"min_samples_leaf"`
}

var defaultBoostingParams = boostingParams{
	NEstimators:    100,
	LearningRate:   0.1,
	MaxDepth:       3,
	MinSamplesLeaf: 1,
}

// minSplitGain guards against splits that only reflect rounding noise.
const minSplitGain = 1e-12

// treeNode is one node of a regression tree. Leaves have Feature == -1.
type treeNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

type regressionTree struct {
	Nodes []treeNode `json:"nodes"`
}

func (t *regressionTree) predict(row []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// gradientBoostingClassifier is a binary classifier fitted by gradient
// boosting on the binomial deviance. Each stage fits a least-squares
// regression tree to the pseudo-residuals y - p and sets leaf values with a
// single Newton step.
type gradientBoostingClassifier struct {
	Params      boostingParams   `json:"params"`
	NumFeatures int              `json:"num_features"`
	InitScore   float64          `json:"init_score"` // prior log-odds
	Trees       []regressionTree `json:"trees"`
	Importances []float64        `json:"feature_importances"`
}

func newGradientBoostingClassifier(params boostingParams) *gradientBoostingClassifier {
	return &gradientBoostingClassifier{Params: params}
}

// fit trains the ensemble. progress, when non-nil, is called after every tree.
func (g *gradientBoostingClassifier) fit(x [][]float64, y []int, progress func(done, total int)) error {
	n := len(x)
	if n == 0 || n != len(y) {
		return fmt.Errorf("fit: %d rows but %d labels", n, len(y))
	}
	g.NumFeatures = len(x[0])

	prior := churnRate(y)
	if prior <= 0 || prior >= 1 {
		return &DataError{Reason: "churn label must contain both classes (0 and 1)"}
	}
	g.InitScore = math.Log(prior / (1 - prior))
	g.Trees = make([]regressionTree, 0, g.Params.NEstimators)

	raw := make([]float64, n)
	for i := range raw {
		raw[i] = g.InitScore
	}
	residual := make([]float64, n)
	hessian := make([]float64, n)
	importances := make([]float64, g.NumFeatures)
	rows := make([]int, n)

	for m := 0; m < g.Params.NEstimators; m++ {
		for i := 0; i < n; i++ {
			p := sigmoid(raw[i])
			residual[i] = float64(y[i]) - p
			hessian[i] = p * (1 - p)
			rows[i] = i
		}

		b := &treeBuilder{
			x:        x,
			residual: residual,
			hessian:  hessian,
			params:   g.Params,
			gains:    make([]float64, g.NumFeatures),
			leafOf:   make([]int, n),
		}
		b.build(rows, 0)
		tree := regressionTree{Nodes: b.nodes}
		g.Trees = append(g.Trees, tree)

		for i := 0; i < n; i++ {
			raw[i] += g.Params.LearningRate * tree.Nodes[b.leafOf[i]].Value
		}

		// 木ごとに正規化してから合算
		var total float64
		for _, v := range b.gains {
			total += v
		}
		if total > 0 {
			for j, v := range b.gains {
				importances[j] += v / total
			}
		}

		if progress != nil {
			progress(m+1, g.Params.NEstimators)
		}
	}

	g.Importances = normalizeImportances(importances)
	return nil
}

// normalizeImportances scales importances to sum to 1. An ensemble without a
// single split spreads importance uniformly.
func normalizeImportances(values []float64) []float64 {
	out := make([]float64, len(values))
	var total float64
	for _, v := range values {
		total += v
	}
	if total <= 0 {
		for i := range out {
			out[i] = 1 / float64(len(out))
		}
		return out
	}
	for i, v := range values {
		out[i] = v / total
	}
	return out
}

// predictProba returns the churn probability for each row.
func (g *gradientBoostingClassifier) predictProba(x [][]float64) ([]float64, error) {
	out := make([]float64, len(x))
	for i, row := range x {
		if len(row) != g.NumFeatures {
			return nil, fmt.Errorf("model expects %d features, row %d has %d", g.NumFeatures, i, len(row))
		}
		raw := g.InitScore
		for t := range g.Trees {
			raw += g.Params.LearningRate * g.Trees[t].predict(row)
		}
		out[i] = sigmoid(raw)
	}
	return out, nil
}

// validate checks the structural integrity of a decoded ensemble.
func (g *gradientBoostingClassifier) validate() error {
	if g.NumFeatures <= 0 {
		return fmt.Errorf("model has no features")
	}
	if len(g.Trees) == 0 {
		return fmt.Errorf("model has no trees")
	}
	if len(g.Importances) != g.NumFeatures {
		return fmt.Errorf("model has %d importances for %d features", len(g.Importances), g.NumFeatures)
	}
	for ti, t := range g.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("tree %d is empty", ti)
		}
		for ni, n := range t.Nodes {
			if n.Feature < 0 {
				continue
			}
			if n.Feature >= g.NumFeatures || n.Left <= ni || n.Right <= ni || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
				return fmt.Errorf("tree %d node %d is malformed", ti, ni)
			}
		}
	}
	return nil
}

// treeBuilder grows one depth-limited regression tree.
type treeBuilder struct {
	x        [][]float64
	residual []float64
	hessian  []float64
	params   boostingParams
	nodes    []treeNode
	gains    []float64 // impurity decrease per feature
	leafOf   []int     // training row -> leaf node index
}

type splitCandidate struct {
	feature   int
	threshold float64
	gain      float64
}

func (b *treeBuilder) build(rows []int, depth int) int {
	id := len(b.nodes)
	b.nodes = append(b.nodes, treeNode{Feature: -1})

	if depth < b.params.MaxDepth && len(rows) >= 2*b.params.MinSamplesLeaf {
		if best, ok := b.bestSplit(rows); ok {
			var left, right []int
			for _, r := range rows {
				if b.x[r][best.feature] <= best.threshold {
					left = append(left, r)
				} else {
					right = append(right, r)
				}
			}
			b.gains[best.feature] += best.gain
			l := b.build(left, depth+1)
			r := b.build(right, depth+1)
			b.nodes[id] = treeNode{Feature: best.feature, Threshold: best.threshold, Left: l, Right: r}
			return id
		}
	}

	b.nodes[id].Value = b.leafValue(rows)
	for _, r := range rows {
		b.leafOf[r] = id
	}
	return id
}

// leafValue is the Newton step sum(residual) / sum(p(1-p)).
func (b *treeBuilder) leafValue(rows []int) float64 {
	var num, den float64
	for _, r := range rows {
		num += b.residual[r]
		den += b.hessian[r]
	}
	if den < 1e-150 {
		return 0
	}
	return num / den
}

// bestSplit finds the split with the largest squared-error reduction. Ties
// keep the first candidate found (lowest feature index, lowest threshold).
func (b *treeBuilder) bestSplit(rows []int) (splitCandidate, bool) {
	n := len(rows)
	var total float64
	for _, r := range rows {
		total += b.residual[r]
	}
	parent := total * total / float64(n)

	best := splitCandidate{feature: -1}
	sorted := make([]int, n)
	minLeaf := b.params.MinSamplesLeaf

	for f := 0; f < len(b.x[0]); f++ {
		copy(sorted, rows)
		sort.SliceStable(sorted, func(i, j int) bool { return b.x[sorted[i]][f] < b.x[sorted[j]][f] })

		var leftSum float64
		for k := 1; k < n; k++ {
			leftSum += b.residual[sorted[k-1]]
			lo := b.x[sorted[k-1]][f]
			hi := b.x[sorted[k]][f]
			if lo == hi || k < minLeaf || n-k < minLeaf {
				continue
			}
			rightSum := total - leftSum
			gain := leftSum*leftSum/float64(k) + rightSum*rightSum/float64(n-k) - parent
			if gain > best.gain+minSplitGain {
				threshold := lo + (hi-lo)/2
				if threshold >= hi {
					threshold = lo
				}
				best = splitCandidate{feature: f, threshold: threshold, gain: gain}
			}
		}
	}
	return best, best.feature >= 0
}
