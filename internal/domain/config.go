package domain

// Distance metrics supported by the comment stores.
const (
	MetricCosine = "cosine"
	MetricL2     = "l2"
)

// VectorConfig holds internal vectorization settings.
type VectorConfig struct {
	Model          string
	Dimensions     int
	DistanceMetric string
	APIBase        string
}

// DefaultVectorConfig returns the defaults for a local Ollama serving nomic-embed-text.
func DefaultVectorConfig() VectorConfig {
	return VectorConfig{
		Model:          "nomic-embed-text",
		Dimensions:     768,
		DistanceMetric: MetricCosine,
		APIBase:        "http://localhost:11434/v1",
	}
}
