package lattice

import "codeberg.org/mutker/coherentd/internal/errors"

const (
	DefaultRetention = 0.991
	DefaultCeiling   = 0.991
	DefaultThreshold = 0.714
)

type Config struct {
	Retention float64
	Ceiling   float64
	Threshold float64
}

func DefaultConfig() Config {
	return Config{
		Retention: DefaultRetention,
		Ceiling:   DefaultCeiling,
		Threshold: DefaultThreshold,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

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
