package executor

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Purchase retries are bounded; after this many failed attempts the
	// mapping is escalated to human review instead of retried forever.
	MaxInvestAttempts int `envconfig:"MAX_INVEST_ATTEMPTS" default:"5"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
