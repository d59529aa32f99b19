// Package metrics holds per-sample observers summarizing a flight.
package metrics

import "github.com/san-kum/rolltune/internal/dynamo"

// Default returns the observers recorded for every tuning run.
func Default(startTime, maxFinAngle float64) []dynamo.Metric {
	return []dynamo.Metric{
		NewControlEffort(),
		NewPeakRollRate(),
		NewRollRateStdDev(startTime),
		NewSaturationFraction(maxFinAngle),
	}
}

// Collect reads every metric into a name-keyed map.
func Collect(ms []dynamo.Metric) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name()] = m.Value()
	}
	return out
}
