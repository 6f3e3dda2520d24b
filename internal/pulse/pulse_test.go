package pulse_test

import (
	"math"
	"testing"

	"codeberg.org/mutker/coherentd/internal/pulse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() pulse.Config {
	cfg := pulse.DefaultConfig()
	cfg.TargetHz = 100000 // 10µs period keeps test runtime negligible
	return cfg
}

func TestNewValidatesConfig(t *testing.T) {
	cfg := pulse.DefaultConfig()
	cfg.TargetHz = 0
	_, err := pulse.New(cfg)
	require.Error(t, err)

	cfg = pulse.DefaultConfig()
	cfg.Retention = 1.5
	_, err = pulse.New(cfg)
	require.Error(t, err)

	cfg = pulse.DefaultConfig()
	cfg.Threshold = 0
	_, err = pulse.New(cfg)
	require.Error(t, err)
}

func TestFireAdvancesPhase(t *testing.T) {
	p, err := pulse.New(fastConfig())
	require.NoError(t, err)

	for i := 1; i <= 10; i++ {
		r := p.Fire()
		assert.Equal(t, uint64(i), r.Fires)
		assert.GreaterOrEqual(t, r.Phase, 0.0)
		assert.Less(t, r.Phase, 1.0)
		assert.Positive(t, r.Elapsed.Nanoseconds())
	}

	// Ten firings complete one full cycle. Accumulated float error can
	// leave the phase just below 1.0 instead of exactly 0.
	wrap := math.Min(p.Phase(), 1.0-p.Phase())
	assert.InDelta(t, 0.0, wrap, 1e-9)
}

func TestCoherenceBounded(t *testing.T) {
	p, err := pulse.New(fastConfig())
	require.NoError(t, err)

	for i := 0; i < 64; i++ {
		r := p.Fire()
		assert.GreaterOrEqual(t, r.Coherence, 0.0)
		assert.LessOrEqual(t, r.Coherence, 1.0)
	}
}

func TestLockIsOneWay(t *testing.T) {
	// A coarser 100µs target keeps the spin overshoot small relative to
	// the interval, so the lock reliably latches within the budget.
	cfg := pulse.DefaultConfig()
	cfg.TargetHz = 10000
	p, err := pulse.New(cfg)
	require.NoError(t, err)

	locked := false
	for i := 0; i < 512 && !locked; i++ {
		locked = p.Fire().Locked
	}
	require.True(t, locked, "lock must latch on a stable host")
	assert.Positive(t, p.LockedHz())

	for i := 0; i < 64; i++ {
		assert.True(t, p.Fire().Locked, "lock must not reset once latched")
	}
	assert.Positive(t, p.LockedHz())
}

func TestCoherenceNeutralBeforeWindow(t *testing.T) {
	cfg := fastConfig()
	p, err := pulse.New(cfg)
	require.NoError(t, err)

	// Fewer samples than the variability window: coherence stays at the
	// neutral threshold value.
	for i := 0; i < 15; i++ {
		r := p.Fire()
		assert.InDelta(t, cfg.Threshold, r.Coherence, 1e-9)
	}
}
