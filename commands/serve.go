package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/activecm/rita-pdns/api"
	"github.com/activecm/rita-pdns/pkg/search"
	"github.com/activecm/rita-pdns/resources"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli"
)

func init() {
	command := cli.Command{
		Name:  "serve",
		Usage: "Serve the passive dns search API",
		Flags: []cli.Flag{
			configFlag,
			cli.StringFlag{
				Name:  "listen, l",
				Usage: "Listen on `ADDRESS` (overrides HTTP.Listen)",
			},
		},
		Action: doServe,
	}

	bootstrapCommands(command)
}

func doServe(c *cli.Context) error {
	res := resources.InitResources(c.String("config"))
	defer res.Close()

	listen := res.Config.S.HTTP.Listen
	if c.String("listen") != "" {
		listen = c.String("listen")
	}

	reg, err := newRegistry(res)
	if err != nil {
		return cli.NewExitError(err.Error(), -1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := search.NewService(res.Store, res.Log, res.Metrics)
	if err := api.NewServer(listen, svc, reg, res.Log).ListenAndServe(ctx); err != nil {
		return cli.NewExitError(err.Error(), -1)
	}
	return nil
}

// newRegistry collects the application and Go runtime metrics
func newRegistry(res *resources.Resources) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	if err := res.Metrics.Register(reg); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}
	return reg, nil
}
