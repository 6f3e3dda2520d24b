package runtime

import "codeberg.org/mutker/coherentd/internal/errors"

const (
	DefaultPulseRateHz       = 1000.0
	DefaultRetention         = 0.991
	DefaultCeiling           = 0.991
	DefaultThreshold         = 0.714
	DefaultGrowthProbability = 1.0 / 512
)

// DefaultDomains are the instrumentation domains built when none are
// configured.
var DefaultDomains = []string{"compute", "memory", "io", "net"}

type Config struct {
	// Domains is the fixed set of named instrumentation domains. At
	// least one is required.
	Domains []string

	// PulseRateHz is the target firing rate of the timing pulse.
	PulseRateHz float64

	// Retention, Ceiling and Threshold are the shared tuning constants
	// for the pulse and the aggregator tree.
	Retention float64
	Ceiling   float64
	Threshold float64

	// GrowthProbability is the chance that a domain observation landing
	// with a blended score at or above Threshold spawns an extra
	// sub-node under that domain. Zero disables structural growth.
	GrowthProbability float64
}

func DefaultConfig() Config {
	domains := make([]string, len(DefaultDomains))
	copy(domains, DefaultDomains)

	return Config{
		Domains:           domains,
		PulseRateHz:       DefaultPulseRateHz,
		Retention:         DefaultRetention,
		Ceiling:           DefaultCeiling,
		Threshold:         DefaultThreshold,
		GrowthProbability: DefaultGrowthProbability,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if len(c.Domains) == 0 {
		return errFactory.New(errors.ErrInvalidDomains)
	}
	seen := make(map[string]struct{}, len(c.Domains))
	for _, d := range c.Domains {
		if d == "" {
			return errFactory.WithData(errors.ErrInvalidDomains, "empty domain name")
		}
		if _, dup := seen[d]; dup {
			return errFactory.WithData(errors.ErrInvalidDomains, "duplicate domain: "+d)
		}
		seen[d] = struct{}{}
	}

	if c.PulseRateHz <= 0 {
		return errFactory.WithData(errors.ErrInvalidPulseRate, c.PulseRateHz)
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
	if c.GrowthProbability < 0 || c.GrowthProbability >= 1 {
		return errFactory.WithData(errors.ErrInvalidTuning, "growth probability must be in [0, 1)")
	}

	return nil
}
