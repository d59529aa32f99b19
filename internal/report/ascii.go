package report

import (
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/rolltune/internal/dynamo"
)

const (
	chartHeight = 10
	chartWidth  = 60
)

// GainsASCII plots each gain against iteration, one chart per gain since
// their magnitudes differ by orders.
func GainsASCII(history []dynamo.GainVector) string {
	if len(history) == 0 {
		return ""
	}
	kp := make([]float64, len(history))
	ki := make([]float64, len(history))
	kd := make([]float64, len(history))
	for i, g := range history {
		kp[i], ki[i], kd[i] = g.Kp, g.Ki, g.Kd
	}
	return plotASCII(kp, "Kp") + "\n\n" + plotASCII(ki, "Ki") + "\n\n" + plotASCII(kd, "Kd")
}

// TraceASCII plots the estimated roll and the fin deflection of a flight,
// both in degrees.
func TraceASCII(trace *dynamo.FlightTrace) string {
	if trace.Len() == 0 {
		return ""
	}
	roll := make([]float64, trace.Len())
	fin := make([]float64, trace.Len())
	for i := range roll {
		s := trace.At(i)
		roll[i] = deg(s.Roll)
		fin[i] = deg(s.Canard1)
	}
	return plotASCII(roll, "Roll (deg)") + "\n\n" + plotASCII(fin, "Fin (deg)")
}

func plotASCII(series []float64, caption string) string {
	return asciigraph.Plot(series,
		asciigraph.Height(chartHeight),
		asciigraph.Width(chartWidth),
		asciigraph.Caption(caption))
}
