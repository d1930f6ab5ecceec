package decision

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config centralizes every approval rule the engine applies. A blanket
// auto-approve of bulk uploads is expressed as a threshold of 0, not a
// special-cased branch.
type Config struct {
	AutoApproveThreshold      float64 `envconfig:"AUTO_APPROVE_THRESHOLD" default:"0.90"`
	BulkAutoApproveThreshold  float64 `envconfig:"BULK_AUTO_APPROVE_THRESHOLD" default:"0.75"`
	MaxClassificationAttempts int     `envconfig:"MAX_CLASSIFICATION_ATTEMPTS" default:"3"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
