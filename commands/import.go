package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/activecm/rita-pdns/parser"
	"github.com/activecm/rita-pdns/parser/files"
	"github.com/activecm/rita-pdns/resources"
	"github.com/activecm/rita-pdns/util"
	"github.com/urfave/cli"
)

func init() {
	importCommand := cli.Command{
		Name:      "import",
		Usage:     "Aggregate zeek dns logs into the passive dns store",
		ArgsUsage: "<files or directories>",
		Flags: []cli.Flag{
			configFlag,
			threadFlag,
			cli.BoolFlag{
				Name:  "quiet, q",
				Usage: "Do not show progress bars",
			},
			cli.BoolFlag{
				Name:  "force, f",
				Usage: "Import files even if they were already indexed",
			},
		},
		Action: doImport,
	}

	bootstrapCommands(importCommand)
}

// doImport ingests every file named on the command line which was not
// indexed before. Files are never deleted by import.
func doImport(c *cli.Context) error {
	if !c.Args().Present() {
		return cli.NewExitError("Specify at least one log file or directory", -1)
	}

	res := resources.InitResources(c.String("config"))
	defer res.Close()
	applyThreadFlag(c, res)

	ingester, err := parser.NewIngester(res)
	if err != nil {
		return cli.NewExitError(err.Error(), -1)
	}
	ingester.ShowProgress(!c.Bool("quiet"))

	logFiles := files.GatherLogFiles(c.Args(), res.Log)
	if len(logFiles) == 0 {
		return cli.NewExitError("No dns logs were found", -1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary := importFiles(ctx, ingester, logFiles, c.Bool("force"), os.Stdout, os.Stderr)

	fmt.Printf("Processed %d records\n", summary.processed)
	if summary.failed > 0 {
		return cli.NewExitError(fmt.Sprintf("%d of %d files could not be imported", summary.failed, len(logFiles)), -1)
	}
	return nil
}

type importSummary struct {
	processed uint64
	imported  int
	indexed   int
	failed    int
}

// importFiles ingests each path in turn. Files already indexed are skipped
// unless force is set.
func importFiles(ctx context.Context, ingester *parser.Ingester, logFiles []string, force bool, out, errOut io.Writer) importSummary {
	var summary importSummary
	for _, path := range logFiles {
		if ctx.Err() != nil {
			break
		}

		if !force {
			indexed, err := ingester.IsIndexed(ctx, path)
			if err != nil {
				summary.failed++
				fmt.Fprintf(errOut, "\t[!] %s: %s\n", path, err.Error())
				continue
			}
			if indexed {
				summary.indexed++
				fmt.Fprintf(out, "\t[-] %s: Already indexed\n", path)
				continue
			}
		}

		fmt.Fprintf(out, "\t[-] Importing %s\n", path)
		result, err := ingester.ProcessFile(ctx, path)
		summary.processed += result.Store.Processed()
		if err != nil {
			summary.failed++
			fmt.Fprintf(errOut, "\t[!] %s: %s\n", path, err.Error())
			continue
		}
		summary.imported++
		fmt.Fprintf(out, "\t[+] %d records read, %d skipped, %d inserted, %d updated in %s\n",
			result.TotalRecords, result.SkippedRecords, result.Store.Inserted, result.Store.Updated,
			util.FormatDuration(result.Duration))
	}
	return summary
}
