package models

// HealthColor is the traffic-light classification of a health score.
type HealthColor string

const (
	HealthGreen  HealthColor = "green"
	HealthYellow HealthColor = "yellow"
	HealthRed    HealthColor = "red"
)

// HealthScore is a composite 0-100 stream health score with the per-factor
// penalty breakdown that produced it.
type HealthScore struct {
	Score   int               `json:"score"`
	Color   HealthColor       `json:"color"`
	Factors map[string]string `json:"factors,omitempty"`
}

// PerfectHealth returns the score of a stream with no observed defects.
func PerfectHealth() HealthScore {
	return HealthScore{Score: 100, Color: HealthGreen}
}
