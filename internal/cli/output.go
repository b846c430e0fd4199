package cli

import (
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/semmidev/backuppilot/internal/domain"
	"github.com/semmidev/backuppilot/internal/usecase"
)

func renderTable(w io.Writer, headers table.Row, rows []table.Row) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(headers)
	t.AppendRows(rows)
	t.Render()
}

func mark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func resultRows(results []usecase.JobResult) []table.Row {
	rows := make([]table.Row, 0, len(results))
	for _, r := range results {
		rows = append(rows, table.Row{
			mark(r.Success),
			r.JobID,
			r.TargetName,
			humanize.Bytes(uint64(r.Size)),
			r.Duration.Round(time.Millisecond),
			r.Location,
			errText(r.Err),
		})
	}
	return rows
}

func renderResults(w io.Writer, results []usecase.JobResult) {
	renderTable(w, table.Row{"", "Job", "Database", "Size", "Duration", "Location", "Error"}, resultRows(results))
}

func renderJobs(w io.Writer, jobs []domain.Job) {
	rows := make([]table.Row, 0, len(jobs))
	for _, j := range jobs {
		rows = append(rows, table.Row{
			j.ID,
			j.DatabaseID,
			j.DestinationID,
			j.Status,
			humanize.Time(j.StartedAt),
			j.Duration().Round(time.Millisecond),
			humanize.Bytes(uint64(j.Size)),
			j.Location,
		})
	}
	renderTable(w, table.Row{"Job", "Database", "Destination", "Status", "Started", "Duration", "Size", "Location"}, rows)
}
