package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	gojson "github.com/goccy/go-json"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/poiesic/docloader/core"
	"github.com/poiesic/docloader/ingestion"
)

// writeJSON prints the summary as indented JSON.
func writeJSON(w io.Writer, summary *ingestion.RunSummary) error {
	data, err := gojson.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// renderSummary prints one table row per destination followed by totals and
// any errors recorded during the run.
func renderSummary(w io.Writer, summary *ingestion.RunSummary) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Destination", "State", "Observed", "Loaded", "Rejected", "Discarded", "Batches", "Retries", "Docs/s", "Indexes"})

	for _, d := range summary.Destinations {
		tbl.AppendRow(table.Row{
			d.Destination,
			stateLabel(d),
			humanize.Comma(int64(d.Observed)),
			humanize.Comma(int64(d.Loaded)),
			humanize.Comma(int64(d.Rejected)),
			humanize.Comma(int64(d.Discarded)),
			d.Batches,
			d.Retries,
			humanize.CommafWithDigits(d.Throughput, 1),
			fmt.Sprintf("%d/%d", len(d.IndexesBuilt), len(d.IndexesBuilt)+len(d.IndexFailures)),
		})
	}

	tbl.AppendFooter(table.Row{
		fmt.Sprintf("Total: %d", len(summary.Destinations)),
		"",
		"",
		humanize.Comma(int64(summary.TotalLoaded())),
		humanize.Comma(int64(summary.TotalRejected())),
	})
	tbl.Render()

	fmt.Fprintf(w, "Elapsed: %.1fs, decode errors: %s, entries skipped: %s\n",
		summary.ElapsedSeconds,
		humanize.Comma(int64(summary.DecodeErrors)),
		humanize.Comma(int64(summary.EntriesSkipped)))
	if summary.Interrupted {
		color.New(color.FgYellow).Fprintln(w, "Run interrupted: destinations without indexes can be indexed with the index command")
	}

	for _, d := range summary.Destinations {
		if d.Error != "" {
			color.New(color.FgRed).Fprintf(w, "  - %s: %s\n", d.Destination, d.Error)
		}
		for _, failure := range d.IndexFailures {
			color.New(color.FgYellow).Fprintf(w, "  - %s: %s\n", d.Destination, failure)
		}
	}
}

func stateLabel(d *ingestion.DestinationSummary) string {
	label := d.State.String()
	switch {
	case d.State == core.StateFailed:
		return color.RedString(label)
	case d.Interrupted:
		return color.YellowString(strings.ToLower(label) + " (interrupted)")
	case len(d.IndexFailures) > 0:
		return color.YellowString(label)
	case d.State == core.StateDone:
		return color.GreenString(label)
	default:
		return label
	}
}
