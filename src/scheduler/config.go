package scheduler

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	LoopPeriod time.Duration `envconfig:"LOOP_PERIOD" default:"1m"`
	BatchSize  int           `envconfig:"BATCH_SIZE" default:"25"`

	// Fixed dollar amount of every fractional purchase.
	InvestmentDollarAmount float64 `envconfig:"INVESTMENT_DOLLAR_AMOUNT" default:"5.00"`

	// Exponential backoff between classification attempts.
	BackoffBase time.Duration `envconfig:"CLASSIFY_BACKOFF_BASE" default:"2s"`
	BackoffMax  time.Duration `envconfig:"CLASSIFY_BACKOFF_MAX" default:"30s"`

	// How long a classification claim stays valid. Claims older than
	// this belong to a worker that died mid-pass and are picked up again.
	ClaimLeaseWindow time.Duration `envconfig:"CLAIM_LEASE_WINDOW" default:"10m"`

	// Encrypted venue credentials, sealed with the credentials key.
	BrokerageAPIKeyEnc    string `envconfig:"BROKERAGE_API_KEY_ENC"`
	BrokerageAPISecretEnc string `envconfig:"BROKERAGE_API_SECRET_ENC"`
	BrokerageBaseURL      string `envconfig:"BROKERAGE_BASE_URL" default:"https://sandbox-api.fracshares.example.com"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
