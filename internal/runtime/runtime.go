package runtime

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"codeberg.org/mutker/coherentd/internal/errors"
	"codeberg.org/mutker/coherentd/internal/lattice"
	"codeberg.org/mutker/coherentd/internal/pulse"
)

// Runtime owns one timing pulse, a fixed-shape aggregator tree and the
// ten-stage spine, and dispatches arbitrary units of work so their
// latency feeds the tree.
//
// Tree shape, built once at construction:
//
//	system (root)
//	└── epoch                ← fed by pulse coherence on every tick
//	    └── <domain> × N     ← fed by spine-weighted latency
//	        └── <domain>_micro ← fed by raw latency
//
// A single mutex guards pulse, tree and spine as one unit. Work passed
// to Execute runs outside the lock.
type Runtime struct {
	cfg  Config
	mu   sync.Mutex
	puls *pulse.Pulse
	tree *lattice.Tree

	root   lattice.Handle
	epoch  lattice.Handle
	byName map[string]*domainRecord

	spn      spine
	opsTotal uint64
	rng      *rand.Rand

	hbMu    sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

type domainRecord struct {
	name    string
	node    lattice.Handle
	micro   lattice.Handle
	ops     uint64
	spawned int
}

// TickResult is the snapshot returned by a single tick.
type TickResult struct {
	Pulse      pulse.Reading `json:"pulse"`
	SpineStage int           `json:"spine_stage"`
	SpineValue float64       `json:"spine_value"`
	Epochs     uint64        `json:"epochs"`
	RootScore  float64       `json:"root_score"`
	OpsTotal   uint64        `json:"ops_total"`
}

// DomainStatus is the per-domain slice of a full status snapshot.
type DomainStatus struct {
	Score   float64 `json:"score"`
	Health  string  `json:"health"`
	Ops     uint64  `json:"ops"`
	Spawned int     `json:"spawned"`
}

// Status is a read-only snapshot of the whole runtime.
type Status struct {
	OpsTotal       uint64                  `json:"ops_total"`
	OpsByDomain    map[string]uint64       `json:"ops_by_domain"`
	Epochs         uint64                  `json:"epochs"`
	PulseLocked    bool                    `json:"pulse_locked"`
	PulseCoherence float64                 `json:"pulse_coherence"`
	PulseLockedHz  float64                 `json:"pulse_locked_hz"`
	Spine          [spineStages]float64    `json:"spine"`
	SpineStage     int                     `json:"spine_stage"`
	RootScore      float64                 `json:"root_score"`
	RootHealth     string                  `json:"root_health"`
	EpochScore     float64                 `json:"epoch_score"`
	Domains        map[string]DomainStatus `json:"domains"`
}

// New builds a runtime for the configured domains. Configuration errors
// fail here, never silently default.
func New(cfg Config) (*Runtime, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p, err := pulse.New(pulse.Config{
		TargetHz:  cfg.PulseRateHz,
		Retention: cfg.Retention,
		Ceiling:   cfg.Ceiling,
		Threshold: cfg.Threshold,
	})
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitRuntime, err)
	}

	tree, err := lattice.NewTree(lattice.Config{
		Retention: cfg.Retention,
		Ceiling:   cfg.Ceiling,
		Threshold: cfg.Threshold,
	})
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitRuntime, err)
	}

	root, err := tree.AddRoot("system")
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitRuntime, err)
	}
	epoch, err := tree.SpawnChild(root, "epoch")
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitRuntime, err)
	}

	byName := make(map[string]*domainRecord, len(cfg.Domains))
	for _, name := range cfg.Domains {
		node, err := tree.SpawnChild(epoch, name)
		if err != nil {
			return nil, errFactory.Wrap(errors.ErrInitRuntime, err)
		}
		micro, err := tree.SpawnChild(node, name+"_micro")
		if err != nil {
			return nil, errFactory.Wrap(errors.ErrInitRuntime, err)
		}
		byName[name] = &domainRecord{name: name, node: node, micro: micro}
	}

	return &Runtime{
		cfg:    cfg,
		puls:   p,
		tree:   tree,
		root:   root,
		epoch:  epoch,
		byName: byName,
		spn:    newSpine(cfg.Threshold),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Tick fires the pulse once, advances the spine, and feeds the pulse
// coherence into the epoch node. It blocks for the pulse's corrected
// interval.
func (r *Runtime) Tick() TickResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.tickLocked()
}

func (r *Runtime) tickLocked() TickResult {
	reading := r.puls.Fire()
	r.spn.advance(r.cfg.Retention, r.cfg.Threshold, r.rng)
	// The epoch node ingests the pulse's own health signal.
	_, _ = r.tree.Observe(r.epoch, reading.Coherence)

	return TickResult{
		Pulse:      reading,
		SpineStage: r.spn.stage,
		SpineValue: r.spn.current(),
		Epochs:     r.spn.epochs,
		RootScore:  r.tree.Score(r.root),
		OpsTotal:   r.opsTotal,
	}
}

// Execute runs work synchronously, records its wall-clock duration into
// the domain's aggregator pair, and advances the spine. The return value
// and any error from work pass through unchanged; a failing call is
// still timed and counted.
//
// An unrecognized domain is not a fault: the work still runs, the spine
// and the total op count still advance, and the measurement is
// discarded.
func (r *Runtime) Execute(domain string, work func() (any, error)) (any, error) {
	r.mu.Lock()
	rec := r.byName[domain]
	spineVal := r.spn.current()
	r.mu.Unlock()

	start := time.Now()
	result, workErr := work()
	elapsed := time.Since(start)
	// Coarse clocks can report zero or negative elapsed time; the
	// aggregator math assumes positive durations.
	if elapsed <= 0 {
		elapsed = time.Nanosecond
	}
	elapsedUs := float64(elapsed.Nanoseconds()) / 1e3

	r.mu.Lock()
	r.opsTotal++
	if rec != nil {
		rec.ops++
		_, _ = r.tree.Observe(rec.micro, elapsedUs)
		res, _ := r.tree.Observe(rec.node, elapsedUs*spineVal)
		r.maybeGrow(rec, res.BlendedScore)
	}
	r.spn.advance(r.cfg.Retention, r.cfg.Threshold, r.rng)
	r.mu.Unlock()

	return result, workErr
}

// maybeGrow spawns an extra sub-node under a domain when an observation
// lands with a blended score at or above the threshold and the growth
// probability check passes. Spawned nodes are never removed.
func (r *Runtime) maybeGrow(rec *domainRecord, blended float64) {
	if r.cfg.GrowthProbability <= 0 || blended < r.cfg.Threshold {
		return
	}
	if r.rng.Float64() >= r.cfg.GrowthProbability {
		return
	}

	name := fmt.Sprintf("%s_sub%d", rec.name, rec.spawned+1)
	if _, err := r.tree.SpawnChild(rec.node, name); err == nil {
		rec.spawned++
	}
}

// Status walks the tree read-only and returns a full snapshot.
func (r *Runtime) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{
		OpsTotal:       r.opsTotal,
		OpsByDomain:    make(map[string]uint64, len(r.byName)),
		Epochs:         r.spn.epochs,
		PulseLocked:    r.puls.Locked(),
		PulseCoherence: r.puls.Coherence(),
		PulseLockedHz:  r.puls.LockedHz(),
		Spine:          r.spn.values,
		SpineStage:     r.spn.stage,
		RootScore:      r.tree.Score(r.root),
		EpochScore:     r.tree.Score(r.epoch),
		Domains:        make(map[string]DomainStatus, len(r.byName)),
	}
	st.RootHealth = healthLabel(st.RootScore, r.cfg.Threshold)

	for name, rec := range r.byName {
		st.OpsByDomain[name] = rec.ops
		score := r.tree.Score(rec.node)
		st.Domains[name] = DomainStatus{
			Score:   score,
			Health:  healthLabel(score, r.cfg.Threshold),
			Ops:     rec.ops,
			Spawned: rec.spawned,
		}
	}

	return st
}

// StartHeartbeat launches a background goroutine that ticks continuously;
// the pulse's own wait paces the loop. Calling it while running is a
// no-op.
func (r *Runtime) StartHeartbeat() {
	r.hbMu.Lock()
	defer r.hbMu.Unlock()

	if r.running {
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})

	go func() {
		defer close(r.doneCh)
		for {
			select {
			case <-r.stopCh:
				return
			default:
				r.Tick()
			}
		}
	}()
}

// StopHeartbeat signals the heartbeat goroutine and joins it, so
// shutdown is deterministic. Calling it while stopped is a no-op.
func (r *Runtime) StopHeartbeat() {
	r.hbMu.Lock()
	defer r.hbMu.Unlock()

	if !r.running {
		return
	}
	close(r.stopCh)
	<-r.doneCh
	r.running = false
}
