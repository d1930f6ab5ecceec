package recovery

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"investpipeline/src/database"
	"investpipeline/src/scheduler"
)

type Recovery struct{}

// Start runs a single crash-recovery pass: every fill whose journal
// entry was never posted gets posted, then the process exits.
func (r *Recovery) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to main database")
		return err
	}

	if err := scheduler.RunRecoveryOnce(ctx); err != nil {
		logrus.WithError(err).Error("Recovery pass failed")
		return err
	}

	return nil
}
