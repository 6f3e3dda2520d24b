package runtime

// Health labels, from best to worst. The bands are a display concern;
// only HealthStable (the configured threshold) carries semantic weight.
const (
	HealthExcellent = "excellent"
	HealthOptimal   = "optimal"
	HealthGood      = "good"
	HealthStable    = "stable"
	HealthDegraded  = "degraded"
	HealthCritical  = "critical"
	HealthFailing   = "failing"
)

func healthLabel(score, threshold float64) string {
	switch {
	case score >= 0.95:
		return HealthExcellent
	case score >= 0.90:
		return HealthOptimal
	case score >= 0.80:
		return HealthGood
	case score >= threshold:
		return HealthStable
	case score >= 0.50:
		return HealthDegraded
	case score >= 0.25:
		return HealthCritical
	default:
		return HealthFailing
	}
}
