package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/laptime/internal/fsutil"
	"github.com/banshee-data/laptime/internal/laps"
	"github.com/banshee-data/laptime/internal/security"
)

// Output formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// CSVOptions controls the lap table CSV layout.
type CSVOptions struct {
	Delimiter    rune
	DecimalComma bool
	// Precision is the number of decimals for seconds; 0 selects 3.
	Precision int
}

// WriteCSV writes the table as one header row of reporting columns followed
// by one row per lap. Lap is written as an integer.
func WriteCSV(w io.Writer, table *laps.LapTable, opts CSVOptions) error {
	if opts.Delimiter == 0 {
		opts.Delimiter = ';'
	}
	if opts.Precision <= 0 {
		opts.Precision = 3
	}
	if opts.DecimalComma && opts.Delimiter == ',' {
		return fmt.Errorf("decimal comma needs a delimiter other than ','")
	}

	cw := csv.NewWriter(w)
	cw.Comma = opts.Delimiter

	columns := table.Columns()
	if err := cw.Write(columns); err != nil {
		return err
	}
	row := make([]string, len(columns))
	for _, rec := range table.All() {
		for i, col := range columns {
			if col == laps.ColumnLap {
				row[i] = strconv.Itoa(rec.Lap)
				continue
			}
			v, _ := rec.Value(col)
			row[i] = formatSeconds(v, opts)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatSeconds(v float64, opts CSVOptions) string {
	s := strconv.FormatFloat(v, 'f', opts.Precision, 64)
	if opts.DecimalComma {
		s = strings.Replace(s, ".", ",", 1)
	}
	return s
}

type lapJSON struct {
	Lap     int       `json:"lap"`
	Partial bool      `json:"partial"`
	Start   int       `json:"start_sample"`
	End     int       `json:"end_sample"`
	Values  []float64 `json:"values"`
}

type tableJSON struct {
	Run     string    `json:"run,omitempty"`
	Columns []string  `json:"columns"`
	Laps    []lapJSON `json:"laps"`
	Summary Summary   `json:"summary"`
}

// WriteJSON writes the table and its summary. Each lap's values follow the
// column order.
func WriteJSON(w io.Writer, run string, table *laps.LapTable) error {
	out := tableJSON{
		Run:     run,
		Columns: table.Columns(),
		Laps:    make([]lapJSON, 0, table.Len()),
		Summary: Summarize(table),
	}
	for _, rec := range table.All() {
		out.Laps = append(out.Laps, lapJSON{
			Lap:     rec.Lap,
			Partial: rec.Partial,
			Start:   rec.Span.Start,
			End:     rec.Span.End,
			Values:  rec.Row(),
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// WriteFile writes the table for run into dir on fsys and returns the path.
func WriteFile(fsys fsutil.FileSystem, dir, run, format string, table *laps.LapTable, opts CSVOptions) (path string, err error) {
	if format != FormatCSV && format != FormatJSON {
		return "", fmt.Errorf("unsupported export format %q", format)
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path = filepath.Join(dir, security.SanitizeFilename(run)+"_laps."+format)
	f, err := fsys.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	if format == FormatJSON {
		err = WriteJSON(f, run, table)
	} else {
		err = WriteCSV(f, table, opts)
	}
	if err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
