package runtime

import (
	"math"
	"math/rand"
)

const (
	spineStages = 10
	spineFloor  = 0.001
)

// spine is the ten-stage cyclic state vector advanced once per tick or
// instrumented operation. Each stage applies its own fixed transform to
// its previous value, using the preceding stage's value as context, then
// clamps into [spineFloor, 1]. A full pass through all ten stages closes
// one epoch.
type spine struct {
	values   [spineStages]float64
	stage    int
	epochs   uint64
	advances uint64
}

func newSpine(threshold float64) spine {
	var s spine
	for i := range s.values {
		s.values[i] = threshold
	}

	return s
}

func (s *spine) advance(retention, threshold float64, rng *rand.Rand) {
	i := s.stage
	prev := s.values[(i+spineStages-1)%spineStages]
	old := s.values[i]
	rho := retention

	switch i {
	case 0: // ground toward minimum energy, scaled by the predecessor
		s.values[i] = prev * (1 - rho) * 0.1
	case 1: // build structure from the predecessor
		s.values[i] = old*rho + prev*(1-rho)
	case 2: // contrast against the predecessor
		s.values[i] = math.Abs(old-prev)*rho + old*(1-rho)
	case 3: // advance monotonically toward 1.0
		s.values[i] = old + (1.0-old)*(1-rho)
	case 4: // controlled decay
		s.values[i] = old * rho
	case 5: // center between self and the vector mean
		s.values[i] = (old + s.mean()) / 2
	case 6: // small zero-mean perturbation
		s.values[i] = old*rho + rng.NormFloat64()*0.001
	case 7: // geometric blend with the predecessor
		s.values[i] = math.Sqrt(math.Max(spineFloor, old*prev))
	case 8: // slow oscillation over the advance count
		s.values[i] = old * (1.0 + 0.005*math.Sin(float64(s.advances)*0.1))
	case 9: // restore toward the neutral threshold
		s.values[i] = old*rho + threshold*(1-rho)
	}

	s.values[i] = math.Max(spineFloor, math.Min(1.0, s.values[i]))

	s.advances++
	s.stage = (i + 1) % spineStages
	if s.stage == 0 {
		s.epochs++
	}
}

func (s *spine) mean() float64 {
	var sum float64
	for _, v := range s.values {
		sum += v
	}

	return sum / spineStages
}

func (s *spine) current() float64 {
	return s.values[s.stage]
}
