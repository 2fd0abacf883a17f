package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/activecm/rita-pdns/commands"
	"github.com/activecm/rita-pdns/config"
	"github.com/urfave/cli"
)

// Entry point of rita-pdns
func main() {
	app := cli.NewApp()
	app.Name = "rita-pdns"
	app.Usage = "Passive DNS aggregation for Zeek dns logs"

	// Change the version string with updates so that a quick help command will
	// let the testers know what version they're on
	app.Version = config.Version

	// Define commands used with this application
	app.Commands = commands.Commands()

	runtime.GOMAXPROCS(runtime.NumCPU())
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
