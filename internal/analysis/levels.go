package analysis

import (
	"math"

	"github.com/san-kum/rolltune/internal/dynamo"
)

// levelSlot maps a percentage error to its table slot. Percentages are
// rounded half-up and clamped into [-100, 100]; NaN has no slot.
func levelSlot(percent float64) (int, bool) {
	if math.IsNaN(percent) {
		return 0, false
	}
	r := math.Floor(percent + 0.5)
	switch {
	case r <= -100:
		return 0, true
	case r >= 100:
		return dynamo.LevelCount - 1, true
	}
	return dynamo.LevelIndex(int(r)), true
}

// levelTable records, for every whole-percent error level, the time since
// start at which the trace first passed through it.
func levelTable(times, percents []float64, start float64) dynamo.LevelTable {
	var table dynamo.LevelTable
	prev := -1

	for i, p := range percents {
		idx, ok := levelSlot(p)
		if !ok {
			continue
		}
		if !table[idx].Reached {
			at := times[i] - start
			table[idx] = dynamo.Level{Seconds: at, Reached: true}
			propagate(&table, idx, prev, at)
		}
		prev = idx
	}

	return table
}

// propagate back-fills the levels a single step jumped over on its way up
// from the previous slot, stopping at the first slot already reached.
// Filling all the way down to -100% would only differ for traces whose
// first sample sits above -100%; a flight starting at zero roll never does.
func propagate(table *dynamo.LevelTable, idx, prev int, at float64) {
	if prev < 0 || prev >= idx {
		return
	}
	for j := idx - 1; j > prev; j-- {
		if table[j].Reached {
			return
		}
		table[j] = dynamo.Level{Seconds: at, Reached: true}
	}
}
