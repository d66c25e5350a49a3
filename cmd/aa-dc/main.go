package main

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	logging "github.com/idea404/aa-dc/chains/log"
	"github.com/idea404/aa-dc/chains/zksync/metrics"
	"github.com/idea404/aa-dc/config"
)

func main() {
	env, err := config.ParseEnv()
	if err != nil {
		panic(errors.Wrap(err, "failed to parse environment"))
	}

	logger, _ := logging.DefaultLogger(env.DevLogging)
	defer logging.CloseLogFile()

	ctx := config.WithEnv(context.Background(), env)
	ctx = logging.WithLogger(ctx, logger)

	if env.MetricsAddr != "" {
		srv := metrics.StartServer(env.MetricsAddr, logger)
		defer srv.Close()
	}

	if err := newApp(env).RunContext(ctx, os.Args); err != nil {
		logger.Fatal("Failure", zap.Error(err))
	}
}

func newApp(env config.Env) *cli.App {
	return &cli.App{
		Name:  "aa-dc",
		Usage: "deploy and operate zkSync smart accounts",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML configuration",
				Value:   env.ConfigPath,
			},
			&cli.StringFlag{
				Name:  "network",
				Usage: "network to use instead of the configured one",
			},
			&cli.IntFlag{
				Name:  "wallet",
				Usage: "index of the configured wallet that pays for transactions",
			},
		},
		Commands: []*cli.Command{
			deriveAddressCmd,
			deployFactoryCmd,
			deployAccountCmd,
			fundCmd,
			sendCmd,
			balanceCmd,
			fastForwardCmd,
		},
	}
}
