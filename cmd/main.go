package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"investpipeline/cmd/pipeline"
	"investpipeline/cmd/recovery"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "InvestPipeline CMD"
	app.Usage = "The investment pipeline command line interface"

	app.Commands = []cli.Command{
		pipelineCMD,
		recoveryCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	pipelineCMD = cli.Command{
		Name:        "pipeline",
		Usage:       "run Pipeline scheduler",
		Action:      pipelineAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the classification and investment pipeline loop`,
	}
	recoveryCMD = cli.Command{
		Name:        "recover",
		Usage:       "run one crash-recovery pass",
		Action:      recoveryAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Post any purchase fills left without a journal entry, then exit`,
	}
)

func pipelineAction(_ *cli.Context) error {

	logrus.Info("Starting pipeline CMD")
	logrus.WithField("cmd", "pipeline")

	p := &pipeline.Pipeline{}
	err := p.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func recoveryAction(_ *cli.Context) error {

	logrus.Info("Starting recovery CMD")
	logrus.WithField("cmd", "recover")

	rec := &recovery.Recovery{}
	err := rec.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}
