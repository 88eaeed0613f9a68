package builder

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

// Failure reasons.
const (
	ReasonNoImage    = "no-image"
	ReasonFetch      = "fetch"
	ReasonTimeout    = "timeout"
	ReasonDecode     = "decode"
	ReasonSetListing = "set-listing"
)

// Failure is one card (or set) the run had to skip.
type Failure struct {
	CardID string
	SetID  string
	Reason string
	Err    error
}

// Progress is a point-in-time view of the run counters.
type Progress struct {
	Processed int64
	Added     int64
	Skipped   int64
	Failed    int64
	Pending   int64
}

// Report summarizes a builder run.
type Report struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration

	TotalSets    int
	SetsVisited  int
	NextSetIndex int // pass as StartFrom to resume

	Processed int64
	Added     int64
	Skipped   int64
	Failed    int64
	Failures  []Failure

	CatalogSize int
	ExportPath  string
	Interrupted bool
}

// maxRenderedFailures bounds the failure table.
const maxRenderedFailures = 20

// Render writes the summary as a table. Rounded borders and colors are used
// only when w is a terminal.
func (r *Report) Render(w io.Writer) {
	styled := isTerminal(w)

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	if styled {
		tw.SetStyle(table.StyleRounded)
	} else {
		tw.SetStyle(table.StyleLight)
	}
	tw.SetTitle("Catalog build " + r.RunID)
	tw.AppendHeader(table.Row{"Metric", "Value"})

	status := "completed"
	if r.Interrupted {
		status = "interrupted"
	}
	if styled {
		color := text.FgGreen
		if r.Interrupted {
			color = text.FgYellow
		}
		status = color.Sprint(status)
	}

	tw.AppendRows([]table.Row{
		{"Status", status},
		{"Processed", r.Processed},
		{"Added", r.Added},
		{"Skipped", r.Skipped},
		{"Failed", r.Failed},
		{"Sets visited", fmt.Sprintf("%d of %d", r.SetsVisited, r.TotalSets)},
		{"Resume from set", r.NextSetIndex},
		{"Catalog size", r.CatalogSize},
		{"Duration", r.Duration.Round(time.Millisecond).String()},
	})
	if r.ExportPath != "" {
		tw.AppendRow(table.Row{"Export", r.ExportPath})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	tw.Render()

	if len(r.Failures) == 0 {
		return
	}

	fw := table.NewWriter()
	fw.SetOutputMirror(w)
	fw.SetStyle(*tw.Style())
	fw.AppendHeader(table.Row{"Card", "Set", "Reason", "Error"})
	for i, f := range r.Failures {
		if i == maxRenderedFailures {
			fw.AppendFooter(table.Row{"", "", "", strconv.Itoa(len(r.Failures)-i) + " more"})
			break
		}
		msg := ""
		if f.Err != nil {
			msg = text.Trim(f.Err.Error(), 80)
		}
		fw.AppendRow(table.Row{f.CardID, f.SetID, f.Reason, msg})
	}
	fw.Render()
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
