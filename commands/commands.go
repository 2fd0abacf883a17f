package commands

import (
	"github.com/activecm/rita-pdns/resources"
	"github.com/urfave/cli"
)

var (
	allCommands []cli.Command

	configFlag = cli.StringFlag{
		Name:  "config, c",
		Usage: "Use a given `CONFIG_FILE` when running this command",
		Value: "",
	}

	threadFlag = cli.IntFlag{
		Name:  "threads, t",
		Usage: "Write to the store with `N` workers (overrides Ingest.Threads)",
		Value: 0,
	}

	humanFlag = cli.BoolFlag{
		Name:  "human-readable, H",
		Usage: "Print a table instead of delimited output",
	}

	delimFlag = cli.StringFlag{
		Name:  "delimiter, d",
		Usage: "Use `DELIM` to separate fields in delimited output",
		Value: ",",
	}
)

// bootstrapCommands simply adds a given command to the allCommands array
func bootstrapCommands(commands ...cli.Command) {
	allCommands = append(allCommands, commands...)
}

// Commands provides all of the defined commands to the front end
func Commands() []cli.Command {
	return allCommands
}

// applyThreadFlag overrides the configured worker count when --threads is given
func applyThreadFlag(c *cli.Context, res *resources.Resources) {
	if threads := c.Int("threads"); threads > 0 {
		res.Config.S.Ingest.Threads = threads
	}
}
