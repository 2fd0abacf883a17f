package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/activecm/rita-pdns/pkg/record"
	"github.com/activecm/rita-pdns/pkg/search"
	"github.com/activecm/rita-pdns/resources"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

var searchHeader = []string{"Query", "Type", "Answer", "Count", "TTL", "First Seen", "Last Seen"}

func init() {
	command := cli.Command{
		Name:      "search",
		Usage:     "Print the passive dns records matching each term",
		ArgsUsage: "<term> [term...]",
		Flags: []cli.Flag{
			configFlag,
			humanFlag,
			delimFlag,
			cli.BoolFlag{
				Name:  "like, l",
				Usage: "Match records containing the term instead of trying an exact match first",
			},
		},
		Action: doSearch,
	}

	bootstrapCommands(command)
}

func doSearch(c *cli.Context) error {
	if !c.Args().Present() {
		return cli.NewExitError("Specify at least one search term", -1)
	}

	res := resources.InitResources(c.String("config"))
	defer res.Close()

	svc := search.NewService(res.Store, res.Log, res.Metrics)
	lookup := svc.Search
	if c.Bool("like") {
		lookup = svc.Like
	}

	var found []record.Record
	for _, term := range c.Args() {
		records, err := lookup(context.Background(), term)
		if err != nil {
			res.Log.Error(err)
			return cli.NewExitError(err.Error(), -1)
		}
		found = append(found, records...)
	}

	if len(found) == 0 {
		return cli.NewExitError("No results were found", -1)
	}

	if c.Bool("human-readable") {
		showRecordsHuman(os.Stdout, found)
		return nil
	}
	showRecordsDelim(os.Stdout, found, c.String("delimiter"))
	return nil
}

func recordRow(rec record.Record) []string {
	ttl := record.UnsetField
	if rec.TTL != nil {
		ttl = strconv.FormatInt(*rec.TTL, 10)
	}
	return []string{
		rec.Query,
		rec.Type,
		rec.Answer,
		strconv.FormatUint(rec.Count, 10),
		ttl,
		rec.FirstSeen.UTC().Format(time.RFC3339),
		rec.LastSeen.UTC().Format(time.RFC3339),
	}
}

func showRecordsHuman(w io.Writer, records []record.Record) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(searchHeader)
	for _, rec := range records {
		table.Append(recordRow(rec))
	}
	table.Render()
}

func showRecordsDelim(w io.Writer, records []record.Record, delim string) {
	// Print the headers and values, separated by a delimiter
	fmt.Fprintln(w, strings.Join(searchHeader, delim))
	for _, rec := range records {
		fmt.Fprintln(w, strings.Join(recordRow(rec), delim))
	}
}
