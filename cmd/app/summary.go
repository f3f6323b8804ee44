package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/starford/waypoint/internal/indexer"
)

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// printSummary writes one line per source and a total line.
func printSummary(w io.Writer, sum indexer.Summary, noColor bool) {
	var (
		name  = color.New(color.Bold)
		good  = color.New(color.FgGreen)
		warn  = color.New(color.FgYellow)
		fail  = color.New(color.FgRed, color.Bold)
		faint = color.New(color.Faint)
	)
	if noColor || !isTTY(w) {
		for _, c := range []*color.Color{name, good, warn, fail, faint} {
			c.DisableColor()
		}
	}

	for _, s := range sum.Sources {
		fmt.Fprintf(w, "%-8s ", name.Sprint(s.Source))
		if s.Err != nil {
			fmt.Fprintf(w, "%s %s\n", fail.Sprint("failed"), s.Err)
			continue
		}
		fmt.Fprintf(w, "%s visits", good.Sprintf("%6d", s.Visits))
		if s.Errors > 0 {
			fmt.Fprintf(w, "  %s errors", warn.Sprintf("%d", s.Errors))
		}
		fmt.Fprintf(w, "  %s\n", faint.Sprint(s.Duration.Round(time.Millisecond)))
	}

	total := good
	if sum.Errors > 0 {
		total = warn
	}
	fmt.Fprintln(w, total.Sprintf("%d visits, %d errors from %d sources", sum.Visits, sum.Errors, len(sum.Sources)))
}
