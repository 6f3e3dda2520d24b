package telemetry

import (
	"context"
	"time"
)

// Collector defines the core domain interface
type Collector interface {
	Record(ctx context.Context, snapshot *Snapshot) error
	Close() error
}

// Repository defines the interface for snapshot storage
type Repository interface {
	Record(snapshot *Snapshot) error
	Close() error
}

// Snapshot is one recorded observation of the runtime's health.
type Snapshot struct {
	Timestamp      time.Time
	OpsTotal       uint64
	Epochs         uint64
	PulseLocked    bool
	PulseCoherence float64
	PulseLockedHz  float64
	SpineStage     int
	RootScore      float64
	RootHealth     string
	DomainScores   map[string]float64
}
