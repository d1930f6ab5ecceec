package classifier

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	APIKey    string        `envconfig:"ANTHROPIC_API_KEY"`
	Model     string        `envconfig:"CLASSIFIER_MODEL" default:"claude-sonnet-4-5-20250929"`
	MaxTokens int64         `envconfig:"CLASSIFIER_MAX_TOKENS" default:"1024"`
	Timeout   time.Duration `envconfig:"CLASSIFIER_TIMEOUT" default:"30s"`

	// Dollar cost per million tokens, for the billing columns on each
	// classification attempt.
	InputCostPerMTok  float64 `envconfig:"CLASSIFIER_INPUT_COST_PER_MTOK" default:"3.0"`
	OutputCostPerMTok float64 `envconfig:"CLASSIFIER_OUTPUT_COST_PER_MTOK" default:"15.0"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
