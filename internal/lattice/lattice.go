package lattice

import (
	"math"

	"codeberg.org/mutker/coherentd/internal/errors"
)

const (
	windowSize      = 64
	alignmentWindow = 4
)

// Handle identifies a node within a Tree.
type Handle int

// None is the parent handle of a root node.
const None Handle = -1

// Tree is an arena of aggregator nodes. Each node keeps smoothed
// statistics over its own observations and a health score, and blends
// its score with the mean of its children's reported scores. Scores
// propagate upward synchronously and without damping: a single
// observation at a leaf is visible at the root before Observe returns.
//
// Two different couplings are at work. Raw observations within a node
// are smoothed by the retention factor; score reports between levels
// are not smoothed at all, each hop averaging the node's own score 1:1
// against the mean of its children's scores.
//
// Tree is not safe for concurrent use; callers serialize access.
type Tree struct {
	cfg   Config
	nodes []node
}

type node struct {
	name        string
	parent      Handle
	children    []Handle
	count       uint64
	mean        float64
	variance    float64
	window      []float64
	ownScore    float64
	childScores map[string]float64
	blended     float64
}

// Result reports the state of a node after an observation.
type Result struct {
	OwnScore     float64
	BlendedScore float64
	Mean         float64
	Stdev        float64
	Count        uint64
}

// Snapshot is a read-only view of a single node.
type Snapshot struct {
	Name         string
	Count        uint64
	Mean         float64
	Stdev        float64
	OwnScore     float64
	BlendedScore float64
	Children     int
}

// NewTree returns an empty arena.
func NewTree(cfg Config) (*Tree, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Tree{cfg: cfg}, nil
}

// AddRoot creates the root node. A tree holds exactly one root.
func (t *Tree) AddRoot(name string) (Handle, error) {
	errFactory := errors.New()
	if len(t.nodes) > 0 {
		return None, errFactory.New(ErrRootExists)
	}

	return t.attach(None, name), nil
}

// SpawnChild attaches a zero-history node under parent. The new node
// immediately reports the neutral threshold score upward, so the parent
// chain reflects its existence before it has observed anything. Nodes
// are never removed.
func (t *Tree) SpawnChild(parent Handle, name string) (Handle, error) {
	errFactory := errors.New()
	if !t.valid(parent) {
		return None, errFactory.WithData(ErrUnknownNode, int(parent))
	}
	for _, c := range t.nodes[parent].children {
		if t.nodes[c].name == name {
			return None, errFactory.WithData(ErrDuplicateChild, name)
		}
	}

	h := t.attach(parent, name)
	t.report(h)

	return h, nil
}

func (t *Tree) attach(parent Handle, name string) Handle {
	h := Handle(len(t.nodes))
	t.nodes = append(t.nodes, node{
		name:        name,
		parent:      parent,
		window:      make([]float64, 0, windowSize),
		ownScore:    t.cfg.Threshold,
		childScores: make(map[string]float64),
		blended:     t.cfg.Threshold,
	})
	if parent != None {
		t.nodes[parent].children = append(t.nodes[parent].children, h)
	}

	return h
}

// Observe feeds a raw observation into a node, recomputes its scores,
// and pushes the updated blended score up through its ancestors.
func (t *Tree) Observe(h Handle, value float64) (Result, error) {
	errFactory := errors.New()
	if !t.valid(h) {
		return Result{}, errFactory.WithData(ErrUnknownNode, int(h))
	}

	n := &t.nodes[h]
	n.count++
	n.window = append(n.window, value)
	if len(n.window) > windowSize {
		n.window = n.window[1:]
	}

	alpha := 1 - t.cfg.Retention
	if n.count == 1 {
		n.mean = value
		n.variance = 0
	} else {
		n.mean = alpha*value + t.cfg.Retention*n.mean
		dev := value - n.mean
		n.variance = alpha*dev*dev + t.cfg.Retention*n.variance
	}

	n.ownScore = t.ownScore(n)
	n.blended = t.blend(n)
	t.report(h)

	return Result{
		OwnScore:     n.ownScore,
		BlendedScore: n.blended,
		Mean:         n.mean,
		Stdev:        math.Sqrt(n.variance),
		Count:        n.count,
	}, nil
}

// ownScore derives the node's local health from the stability of its
// observations (vitality) and their directional consistency (alignment).
// A node with fewer than four samples has not been measured yet and
// scores the neutral threshold.
func (t *Tree) ownScore(n *node) float64 {
	if len(n.window) < alignmentWindow {
		return t.cfg.Threshold
	}

	cv := 1.0
	if n.mean > 0 {
		cv = math.Sqrt(n.variance) / n.mean
	}
	vitality := 1.0 / (1.0 + cv)

	recent := n.window[len(n.window)-alignmentWindow:]
	diffs := make([]float64, alignmentWindow-1)
	for i := range diffs {
		diffs[i] = recent[i+1] - recent[i]
	}

	rising, falling := true, true
	for _, d := range diffs {
		if d < 0 {
			rising = false
		}
		if d > 0 {
			falling = false
		}
	}

	alignment := 1.0
	if !rising && !falling {
		same := 0
		for i := 0; i < len(diffs)-1; i++ {
			if (diffs[i] >= 0) == (diffs[i+1] >= 0) {
				same++
			}
		}
		alignment = float64(same+1) / float64(len(diffs))
	}

	return clamp(t.cfg.Ceiling*vitality*alignment, 0, 1)
}

// blend combines the cached own score with the mean of the reported
// child scores, weighted 1:1 regardless of child count. The per-child
// averaging happens first, then one averaging step against the node's
// own score.
func (t *Tree) blend(n *node) float64 {
	if len(n.childScores) == 0 {
		return n.ownScore
	}

	var sum float64
	for _, s := range n.childScores {
		sum += s
	}
	childMean := sum / float64(len(n.childScores))

	return (n.ownScore + childMean) / 2
}

// report walks from h to the root, overwriting each parent's entry for
// its child and recomputing the parent's blended score from its cached
// own score. Raw observation history is never re-read on this path.
func (t *Tree) report(h Handle) {
	child := h
	score := t.nodes[h].blended
	for {
		parent := t.nodes[child].parent
		if parent == None {
			return
		}
		p := &t.nodes[parent]
		p.childScores[t.nodes[child].name] = score
		p.blended = t.blend(p)
		score = p.blended
		child = parent
	}
}

// Score returns a node's blended score.
func (t *Tree) Score(h Handle) float64 {
	if !t.valid(h) {
		return 0
	}
	return t.nodes[h].blended
}

// Get returns a read-only snapshot of a node.
func (t *Tree) Get(h Handle) (Snapshot, error) {
	if !t.valid(h) {
		return Snapshot{}, errors.New().WithData(ErrUnknownNode, int(h))
	}

	n := &t.nodes[h]
	return Snapshot{
		Name:         n.name,
		Count:        n.count,
		Mean:         n.mean,
		Stdev:        math.Sqrt(n.variance),
		OwnScore:     n.ownScore,
		BlendedScore: n.blended,
		Children:     len(n.children),
	}, nil
}

// Children returns the child handles of a node.
func (t *Tree) Children(h Handle) []Handle {
	if !t.valid(h) {
		return nil
	}
	out := make([]Handle, len(t.nodes[h].children))
	copy(out, t.nodes[h].children)

	return out
}

// Len returns the number of nodes in the arena.
func (t *Tree) Len() int {
	return len(t.nodes)
}

func (t *Tree) valid(h Handle) bool {
	return h >= 0 && int(h) < len(t.nodes)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}

	return v
}
