package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/activecm/rita-pdns/api"
	"github.com/activecm/rita-pdns/parser"
	"github.com/activecm/rita-pdns/pkg/search"
	"github.com/activecm/rita-pdns/resources"
	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"
)

func init() {
	command := cli.Command{
		Name:      "watch",
		Usage:     "Ingest and delete dns logs matching a pattern as they are rotated",
		ArgsUsage: "<pattern>",
		Flags: []cli.Flag{
			configFlag,
			threadFlag,
			cli.BoolFlag{
				Name:  "serve, s",
				Usage: "Also serve the search API and metrics while watching",
			},
		},
		Action: doWatch,
	}

	bootstrapCommands(command)
}

// doWatch polls the pattern until interrupted
func doWatch(c *cli.Context) error {
	pattern := c.Args().First()
	if pattern == "" {
		return cli.NewExitError("Specify a glob pattern, such as '/opt/zeek/logs/**/dns*.log.gz'", -1)
	}

	res := resources.InitResources(c.String("config"))
	defer res.Close()
	applyThreadFlag(c, res)

	ingester, err := parser.NewIngester(res)
	if err != nil {
		return cli.NewExitError(err.Error(), -1)
	}
	watcher := parser.NewWatcher(pattern, ingester, &res.Config.S.Ingest, res.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return watcher.Run(gctx)
	})

	if c.Bool("serve") {
		reg, err := newRegistry(res)
		if err != nil {
			return cli.NewExitError(err.Error(), -1)
		}
		svc := search.NewService(res.Store, res.Log, res.Metrics)
		server := api.NewServer(res.Config.S.HTTP.Listen, svc, reg, res.Log)
		g.Go(func() error {
			return server.ListenAndServe(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return cli.NewExitError(err.Error(), -1)
	}
	return nil
}
