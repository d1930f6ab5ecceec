package pipeline

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"investpipeline/src/database"
	"investpipeline/src/scheduler"
)

type Pipeline struct{}

func (p *Pipeline) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to main database")
		return err
	}

	logrus.Info("Starting investment pipeline scheduler")

	if err := scheduler.StartLoop(ctx); err != nil {
		logrus.WithError(err).Error("Failed to start scheduler loop")
		return err
	}

	return nil
}
