package lattice_test

import (
	"math"
	"math/rand"
	"testing"

	"codeberg.org/mutker/coherentd/internal/lattice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTree(t *testing.T) *lattice.Tree {
	t.Helper()
	tree, err := lattice.NewTree(lattice.DefaultConfig())
	require.NoError(t, err)
	return tree
}

func TestScoresStayBounded(t *testing.T) {
	tree := newTree(t)
	root, err := tree.AddRoot("system")
	require.NoError(t, err)
	leaf, err := tree.SpawnChild(root, "leaf")
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		res, err := tree.Observe(leaf, rng.Float64()*1e6)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.OwnScore, 0.0)
		assert.LessOrEqual(t, res.OwnScore, 1.0)
		assert.GreaterOrEqual(t, res.BlendedScore, 0.0)
		assert.LessOrEqual(t, res.BlendedScore, 1.0)
		assert.GreaterOrEqual(t, tree.Score(root), 0.0)
		assert.LessOrEqual(t, tree.Score(root), 1.0)
	}
}

func TestInsufficientHistoryScoresNeutral(t *testing.T) {
	cfg := lattice.DefaultConfig()
	tree, err := lattice.NewTree(cfg)
	require.NoError(t, err)
	root, err := tree.AddRoot("system")
	require.NoError(t, err)

	var res lattice.Result
	for i := 0; i < 3; i++ {
		res, err = tree.Observe(root, 1.0)
		require.NoError(t, err)
	}

	// Three samples are below the alignment window: not yet measured,
	// score defaults to the neutral threshold.
	assert.InDelta(t, cfg.Threshold, res.OwnScore, 1e-12)
	assert.Equal(t, uint64(3), res.Count)
}

func TestMonotoneSequenceGetsFullAlignment(t *testing.T) {
	cfg := lattice.DefaultConfig()
	tree, err := lattice.NewTree(cfg)
	require.NoError(t, err)
	root, err := tree.AddRoot("system")
	require.NoError(t, err)

	var res lattice.Result
	for _, v := range []float64{10, 20, 30, 40, 50, 60} {
		res, err = tree.Observe(root, v)
		require.NoError(t, err)
	}

	// Strictly increasing observations: alignment is exactly 1, so the
	// score reduces to ceiling * vitality with vitality derived from the
	// reported mean and stdev.
	cv := res.Stdev / res.Mean
	vitality := 1.0 / (1.0 + cv)
	assert.InDelta(t, cfg.Ceiling*vitality, res.OwnScore, 1e-12)
}

func TestChildReportsArriveUndamped(t *testing.T) {
	cfg := lattice.DefaultConfig()
	tree, err := lattice.NewTree(cfg)
	require.NoError(t, err)
	parent, err := tree.AddRoot("parent")
	require.NoError(t, err)
	child, err := tree.SpawnChild(parent, "child")
	require.NoError(t, err)

	prevChild := tree.Score(child)
	prevParent := tree.Score(parent)

	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 100; i++ {
		res, err := tree.Observe(child, 100+rng.Float64()*50)
		require.NoError(t, err)

		// The parent never observes anything itself, so its own score is
		// pinned at the neutral threshold and its blended score must be
		// exactly (threshold + child)/2 after every report.
		wantParent := (cfg.Threshold + res.BlendedScore) / 2
		assert.InDelta(t, wantParent, tree.Score(parent), 1e-12)

		// Any change in the child's score arrives at the parent halved,
		// with no additional damping applied at the hop.
		deltaChild := res.BlendedScore - prevChild
		deltaParent := tree.Score(parent) - prevParent
		assert.InDelta(t, deltaChild/2, deltaParent, 1e-12)

		prevChild = res.BlendedScore
		prevParent = tree.Score(parent)
	}
}

func TestDeepPropagationReachesRoot(t *testing.T) {
	cfg := lattice.DefaultConfig()
	tree, err := lattice.NewTree(cfg)
	require.NoError(t, err)
	root, err := tree.AddRoot("root")
	require.NoError(t, err)
	mid, err := tree.SpawnChild(root, "mid")
	require.NoError(t, err)
	leaf, err := tree.SpawnChild(mid, "leaf")
	require.NoError(t, err)

	res, err := tree.Observe(leaf, 42)
	require.NoError(t, err)

	wantMid := (cfg.Threshold + res.BlendedScore) / 2
	assert.InDelta(t, wantMid, tree.Score(mid), 1e-12)
	wantRoot := (cfg.Threshold + wantMid) / 2
	assert.InDelta(t, wantRoot, tree.Score(root), 1e-12)
}

func TestBlendWeighsChildrenMeanFirst(t *testing.T) {
	// The own score and the children mean are weighted 1:1 regardless of
	// how many children exist. This locks in current behavior; child
	// influence deliberately does not scale with child count.
	cfg := lattice.DefaultConfig()
	tree, err := lattice.NewTree(cfg)
	require.NoError(t, err)
	root, err := tree.AddRoot("root")
	require.NoError(t, err)

	var children []lattice.Handle
	for _, name := range []string{"a", "b", "c", "d"} {
		h, err := tree.SpawnChild(root, name)
		require.NoError(t, err)
		children = append(children, h)
	}

	for _, h := range children {
		_, err := tree.Observe(h, 5)
		require.NoError(t, err)
	}

	var childSum float64
	for _, h := range children {
		childSum += tree.Score(h)
	}
	childMean := childSum / float64(len(children))
	assert.InDelta(t, (cfg.Threshold+childMean)/2, tree.Score(root), 1e-12)
}

func TestSpawnedChildReportsNeutralImmediately(t *testing.T) {
	cfg := lattice.DefaultConfig()
	tree, err := lattice.NewTree(cfg)
	require.NoError(t, err)
	root, err := tree.AddRoot("root")
	require.NoError(t, err)

	_, err = tree.SpawnChild(root, "fresh")
	require.NoError(t, err)

	// The new child has zero history but already counts toward the
	// parent's blend at the neutral threshold.
	assert.InDelta(t, cfg.Threshold, tree.Score(root), 1e-12)

	snap, err := tree.Get(root)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Children)
}

func TestStructuralErrors(t *testing.T) {
	tree := newTree(t)
	root, err := tree.AddRoot("root")
	require.NoError(t, err)

	_, err = tree.AddRoot("second")
	require.Error(t, err)

	_, err = tree.SpawnChild(root, "dup")
	require.NoError(t, err)
	_, err = tree.SpawnChild(root, "dup")
	require.Error(t, err)

	_, err = tree.Observe(lattice.Handle(99), 1)
	require.Error(t, err)

	_, err = tree.SpawnChild(lattice.Handle(-5), "x")
	require.Error(t, err)
}

func TestNegativeMeanDegradesVitality(t *testing.T) {
	tree := newTree(t)
	root, err := tree.AddRoot("root")
	require.NoError(t, err)

	var res lattice.Result
	for _, v := range []float64{-4, -3, -2, -1} {
		var err error
		res, err = tree.Observe(root, v)
		require.NoError(t, err)
	}

	// Non-positive mean forces the worst-case coefficient of variation
	// instead of propagating garbage through the score math.
	assert.False(t, math.IsNaN(res.OwnScore))
	assert.GreaterOrEqual(t, res.OwnScore, 0.0)
	assert.LessOrEqual(t, res.OwnScore, 1.0)
}
