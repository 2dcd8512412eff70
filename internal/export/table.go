package export

import (
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
)

// RunSummary labels a Summary with its run name.
type RunSummary struct {
	Run     string
	Summary Summary
}

// WriteSummaryTable prints one aligned row per run: lap counts, fastest and
// ideal lap. Missing values are shown as "-".
func WriteSummaryTable(w io.Writer, runs []RunSummary) {
	t := tablewriter.NewWriter(w)
	t.SetHeader([]string{"Run", "Laps", "Complete", "Fastest Lap", "Fastest", "Ideal", "Mean"})
	t.SetAutoFormatHeaders(false)
	t.SetAlignment(tablewriter.ALIGN_RIGHT)

	for _, r := range runs {
		s := r.Summary
		fastestLap, fastest := "-", "-"
		if s.Fastest != nil {
			fastestLap = strconv.Itoa(s.Fastest.Lap)
			fastest = seconds(s.Fastest.Total)
		}
		ideal, mean := "-", "-"
		if len(s.IdealSectors) > 0 {
			ideal = seconds(s.Ideal)
		}
		if s.CompleteLaps > 0 {
			mean = seconds(s.MeanLap)
		}
		t.Append([]string{r.Run, strconv.Itoa(s.Laps), strconv.Itoa(s.CompleteLaps), fastestLap, fastest, ideal, mean})
	}
	t.Render()
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
