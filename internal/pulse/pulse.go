package pulse

import (
	"math"
	"time"
)

const (
	historySize = 256
	windowSize  = 16
	// Floor for the corrected wait so a badly skewed error estimate can
	// never produce a zero or negative spin target.
	minWaitNs = 100
)

// Pulse is a self-tuning periodic timing source. Instead of sleeping a
// fixed interval it spins until a corrected deadline, measures the actual
// elapsed time, and folds the measurement back into its own estimates so
// the achieved cadence converges toward the host's natural one.
//
// A Pulse is owned by a single goroutine; Fire must not be called
// concurrently.
type Pulse struct {
	cfg         Config
	targetNs    float64
	phase       float64
	emaInterval float64
	emaError    float64
	coherence   float64
	locked      bool
	lockedHz    float64
	fires       uint64
	history     []float64
}

// Reading is the result of a single Fire.
type Reading struct {
	Elapsed   time.Duration
	Error     time.Duration
	Phase     float64
	Coherence float64
	Locked    bool
	Fires     uint64
}

// New returns a Pulse targeting cfg.TargetHz firings per second.
func New(cfg Config) (*Pulse, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	targetNs := 1e9 / cfg.TargetHz

	return &Pulse{
		cfg:         cfg,
		targetNs:    targetNs,
		emaInterval: targetNs,
		coherence:   cfg.Threshold,
		history:     make([]float64, 0, historySize),
	}, nil
}

// Fire blocks until the corrected interval has elapsed, then updates the
// pulse estimates and advances the phase by one tenth of a cycle.
//
// The wait is a busy spin; coarse sleeps cannot resolve sub-millisecond
// targets. On a host whose clock cannot keep up, the corrected wait
// floors out and coherence degrades; that is reported, not raised.
func (p *Pulse) Fire() Reading {
	correction := p.emaError * (1 - p.cfg.Retention)
	adjusted := time.Duration(math.Max(minWaitNs, p.emaInterval-correction))

	start := time.Now()
	for time.Since(start) < adjusted {
	}
	elapsed := time.Since(start)

	actual := float64(elapsed.Nanoseconds())
	alpha := 1 - p.cfg.Retention
	p.emaInterval = alpha*actual + p.cfg.Retention*p.emaInterval

	errNs := actual - p.targetNs
	p.emaError = alpha*errNs + p.cfg.Retention*p.emaError

	p.history = append(p.history, actual)
	if len(p.history) > historySize {
		p.history = p.history[1:]
	}

	if len(p.history) >= windowSize {
		p.updateCoherence()
	}

	p.fires++
	p.phase = math.Mod(p.phase+0.1, 1.0)

	return Reading{
		Elapsed:   elapsed,
		Error:     time.Duration(errNs),
		Phase:     p.phase,
		Coherence: p.coherence,
		Locked:    p.locked,
		Fires:     p.fires,
	}
}

func (p *Pulse) updateCoherence() {
	recent := p.history[len(p.history)-windowSize:]

	var sum float64
	for _, v := range recent {
		sum += v
	}
	mean := sum / float64(len(recent))

	var sq float64
	for _, v := range recent {
		sq += (v - mean) * (v - mean)
	}
	variance := sq / float64(len(recent))

	cv := 1.0
	if mean > 0 {
		cv = math.Sqrt(variance) / mean
	}
	vitality := 1.0 / (1.0 + cv)
	alignment := 1.0 / (1.0 + math.Abs(p.emaError)/p.targetNs)

	p.coherence = p.cfg.Ceiling * vitality * alignment

	// One-way latch: the lock condition is never re-evaluated once it
	// has held.
	if !p.locked && p.coherence >= p.cfg.Threshold {
		p.locked = true
		p.lockedHz = 1e9 / p.emaInterval
	}
}

// Phase returns the current position within the ten-step cycle.
func (p *Pulse) Phase() float64 {
	return p.phase
}

// Coherence returns the most recently computed coherence score.
func (p *Pulse) Coherence() float64 {
	return p.coherence
}

// Locked reports whether the timing has stabilized past the lock
// threshold at least once.
func (p *Pulse) Locked() bool {
	return p.locked
}

// LockedHz returns the empirical frequency recorded at the moment the
// lock latched, or zero if unlocked.
func (p *Pulse) LockedHz() float64 {
	return p.lockedHz
}

// Fires returns the number of completed firings.
func (p *Pulse) Fires() uint64 {
	return p.fires
}
