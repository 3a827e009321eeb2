package recommend

import (
	"math"
	"math/rand"
	"sort"
)

// Node is one split or leaf of a classification tree.
// Fields are exported for gob.
type Node struct {
	Leaf      bool
	Feature   int
	Threshold float64
	Left      *Node
	Right     *Node
	Probs     []float64
}

func (n *Node) predict(x []float64) []float64 {
	for !n.Leaf {
		if x[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Probs
}

// treeBuilder grows one CART tree on a bootstrap sample using Gini impurity
type treeBuilder struct {
	x        [][]float64
	y        []int
	classes  int
	mtry     int
	maxDepth int
	minLeaf  int
	rng      *rand.Rand
}

func (b *treeBuilder) build(idx []int, depth int) *Node {
	counts := b.counts(idx)
	if b.isPure(counts) || len(idx) < 2*b.minLeaf || (b.maxDepth > 0 && depth >= b.maxDepth) {
		return b.leaf(counts, len(idx))
	}

	feature, threshold, ok := b.bestSplit(idx, counts)
	if !ok {
		return b.leaf(counts, len(idx))
	}

	var left, right []int
	for _, i := range idx {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &Node{
		Feature:   feature,
		Threshold: threshold,
		Left:      b.build(left, depth+1),
		Right:     b.build(right, depth+1),
	}
}

// bestSplit samples mtry candidate features and keeps drawing past mtry
// until at least one valid split is found.
func (b *treeBuilder) bestSplit(idx []int, parent []int) (int, float64, bool) {
	nFeatures := len(b.x[0])
	bestGini := gini(parent, len(idx))
	bestFeature, bestThreshold := -1, 0.0
	found := false

	order := make([]int, len(idx))
	for tried, f := range b.rng.Perm(nFeatures) {
		if tried >= b.mtry && found {
			break
		}

		copy(order, idx)
		sort.Slice(order, func(a, c int) bool { return b.x[order[a]][f] < b.x[order[c]][f] })

		left := make([]int, b.classes)
		right := append([]int(nil), parent...)
		for k := 0; k < len(order)-1; k++ {
			cls := b.y[order[k]]
			left[cls]++
			right[cls]--

			nl, nr := k+1, len(order)-k-1
			if nl < b.minLeaf || nr < b.minLeaf {
				continue
			}
			v, next := b.x[order[k]][f], b.x[order[k+1]][f]
			if v == next {
				continue
			}

			g := (float64(nl)*gini(left, nl) + float64(nr)*gini(right, nr)) / float64(len(order))
			if !found || g < bestGini {
				bestGini = g
				bestFeature = f
				bestThreshold = v + (next-v)/2
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}

func (b *treeBuilder) counts(idx []int) []int {
	c := make([]int, b.classes)
	for _, i := range idx {
		c[b.y[i]]++
	}
	return c
}

func (b *treeBuilder) isPure(counts []int) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

func (b *treeBuilder) leaf(counts []int, n int) *Node {
	probs := make([]float64, len(counts))
	if n > 0 {
		for i, c := range counts {
			probs[i] = float64(c) / float64(n)
		}
	}
	return &Node{Leaf: true, Probs: probs}
}

func gini(counts []int, n int) float64 {
	if n == 0 {
		return 0
	}
	g := 1.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		g -= p * p
	}
	return g
}

// growForest trains cfg.Trees trees, each on a bootstrap sample of the rows
func growForest(x [][]float64, y []int, classes int, cfg Config, rng *rand.Rand) []*Node {
	mtry := cfg.MaxFeatures
	if mtry <= 0 {
		mtry = int(math.Max(1, math.Floor(math.Sqrt(float64(len(x[0]))))))
	}
	b := &treeBuilder{
		x:        x,
		y:        y,
		classes:  classes,
		mtry:     mtry,
		maxDepth: cfg.MaxDepth,
		minLeaf:  max(1, cfg.MinLeaf),
		rng:      rng,
	}

	trees := make([]*Node, cfg.Trees)
	n := len(x)
	for t := range trees {
		sample := make([]int, n)
		for i := range sample {
			sample[i] = rng.Intn(n)
		}
		trees[t] = b.build(sample, 0)
	}
	return trees
}

// vote averages the class probabilities of every tree
func vote(trees []*Node, x []float64, classes int) []float64 {
	probs := make([]float64, classes)
	for _, t := range trees {
		for i, p := range t.predict(x) {
			probs[i] += p
		}
	}
	for i := range probs {
		probs[i] /= float64(len(trees))
	}
	return probs
}

func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
