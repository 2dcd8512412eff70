package laps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/laptime/internal/testutil"
)

func buildTable(t *testing.T, laps []map[string]float64, partialLast bool) *LapTable {
	t.Helper()
	reg := testutil.Registry(t, testutil.StripTrack("SF", "T1", "T2"))
	agg, err := NewAggregator(reg, Plan{}, nil)
	require.NoError(t, err)

	table := NewLapTable(agg.Columns())
	for i, credits := range laps {
		acc := agg.NewAccumulator()
		for name, v := range credits {
			acc.Credit(name, v)
		}
		table.Append(agg.Finalize(i, acc, Span{}, partialLast && i == len(laps)-1))
	}
	return table
}

func TestLapTable_MinNonZero(t *testing.T) {
	table := buildTable(t, []map[string]float64{
		{"SF": 0, "T1": 10.2, "T2": 0},
		{"SF": 1.1, "T1": 9.8, "T2": 0},
		{"SF": 0.9, "T1": 0, "T2": 0},
	}, false)

	mins := table.MinNonZero()
	assert.Equal(t, map[string]float64{"SF": 0.9, "T1": 9.8}, mins)
	assert.NotContains(t, mins, ColumnLap)
	assert.NotContains(t, mins, ColumnTotal)
	assert.NotContains(t, mins, "T2", "all-zero columns are not recorded")
}

func TestLapTable_CompleteAndFastest(t *testing.T) {
	table := buildTable(t, []map[string]float64{
		{"SF": 1, "T1": 50, "T2": 40},
		{"SF": 1, "T1": 45, "T2": 40},
		{"SF": 1, "T1": 3},
	}, true)

	require.Equal(t, 3, table.Len())
	complete := table.Complete()
	assert.Equal(t, 2, complete.Len())
	assert.Equal(t, 3, table.Len(), "Complete does not modify the table")

	fastest, ok := table.Fastest()
	require.True(t, ok)
	assert.Equal(t, 1, fastest.Lap, "the partial trailing lap is never fastest")

	_, ok = NewLapTable(table.Columns()).Fastest()
	assert.False(t, ok)
}

func TestLapTable_IterationOrderAndCopies(t *testing.T) {
	table := buildTable(t, []map[string]float64{{"T1": 1}, {"T1": 2}, {"T1": 3}}, false)

	var seen []int
	for _, r := range table.All() {
		seen = append(seen, r.Lap)
		if r.Lap == 1 {
			break
		}
	}
	assert.Equal(t, []int{0, 1}, seen)

	recs := table.Records()
	recs[0].Total = 99
	assert.NotEqual(t, 99.0, table.At(0).Total)

	cols := table.Columns()
	cols[0] = "changed"
	assert.Equal(t, ColumnLap, table.Columns()[0])
	assert.Equal(t, []string{"SF", "T1", "T2"}, table.SectorColumns())
}
