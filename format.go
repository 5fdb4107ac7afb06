package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/treesync/treesync/internal/sync"
	"github.com/treesync/treesync/internal/target"
)

// printReport renders a run report to stdout: machine-readable JSON when
// asked, otherwise the action list and a summary. Quiet mode keeps only
// errors.
func printReport(report *sync.Report, asJSON, quiet bool) {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if err := enc.Encode(report); err != nil {
			fmt.Fprintf(os.Stderr, "encoding report: %v\n", err)
		}

		return
	}

	if !quiet {
		for _, a := range report.Actions {
			if a.Reason != "" {
				fmt.Printf("%-16s %s (%s)\n", a.Kind, a.Path, a.Reason)
			} else {
				fmt.Printf("%-16s %s\n", a.Kind, a.Path)
			}
		}

		for _, w := range report.Warnings {
			fmt.Printf("warning: %s\n", w)
		}
	}

	for _, e := range report.Errors {
		fmt.Fprintf(os.Stderr, "error: %s: %s: %s\n", e.Path, e.Op, e.Err)
	}

	if !quiet {
		fmt.Println(report.Summary())
	}
}

// printEntries renders a scanned tree as an aligned listing, ls style.
func printEntries(entries []scannedEntry, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(entries)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	for _, e := range entries {
		if e.Kind == target.KindDir.String() {
			fmt.Fprintf(w, "%s\t%s\t%s/\n", "-", "", e.Path)
			continue
		}

		fmt.Fprintf(w, "%s\t%s\t%s\n",
			humanize.Bytes(uint64(max(e.Size, 0))),
			formatTime(e.ModTime),
			e.Path,
		)
	}

	return w.Flush()
}

// formatTime returns a compact timestamp for display.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	now := time.Now()

	// Same calendar year: "Jan  2 15:04". Different year: "Jan  2  2006".
	if t.Year() == now.Year() {
		return t.Format("Jan _2 15:04")
	}

	return t.Format("Jan _2  2006")
}
