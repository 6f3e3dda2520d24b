package pulse

import "codeberg.org/mutker/coherentd/internal/errors"

// Default tuning constants. Retention governs how slowly the interval and
// error estimates move, Ceiling bounds the coherence score below 1, and
// Threshold is the score at which the lock latches.
const (
	DefaultTargetHz  = 1000.0
	DefaultRetention = 0.991
	DefaultCeiling   = 0.991
	DefaultThreshold = 0.714
)

type Config struct {
	TargetHz  float64
	Retention float64
	Ceiling   float64
	Threshold float64
}

func DefaultConfig() Config {
	return Config{
		TargetHz:  DefaultTargetHz,
		Retention: DefaultRetention,
		Ceiling:   DefaultCeiling,
		Threshold: DefaultThreshold,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.TargetHz <= 0 {
		return errFactory.WithData(errors.ErrInvalidPulseRate, c.TargetHz)
	}
	if c.Retention <= 0 || c.Retention >= 1 {
		return errFactory.WithData(errors.ErrInvalidTuning, "retention must be in (0, 1)")
	}
	if c.Ceiling <= 0 || c.Ceiling >= 1 {
		return errFactory.WithData(errors.ErrInvalidTuning, "ceiling must be in (0, 1)")
	}
	if c.Threshold <= 0 || c.Threshold >= 1 {
		return errFactory.WithData(errors.ErrInvalidTuning, "threshold must be in (0, 1)")
	}

	return nil
}
