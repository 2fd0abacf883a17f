package commands

import (
	"fmt"

	"github.com/activecm/rita-pdns/config"
	"github.com/urfave/cli"
)

func init() {
	command := cli.Command{
		Name:   "version",
		Usage:  "Show rita-pdns version",
		Action: showVersion,
	}

	bootstrapCommands(command)
}

func showVersion(c *cli.Context) error {
	fmt.Println(config.ExactVersion)
	return nil
}
