package report

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/san-kum/rolltune/internal/dynamo"
)

var (
	kpColor  = color.RGBA{R: 0, G: 160, B: 220, A: 255}
	kiColor  = color.RGBA{R: 220, G: 120, B: 0, A: 255}
	kdColor  = color.RGBA{R: 40, G: 170, B: 60, A: 255}
	finColor = color.RGBA{R: 200, G: 40, B: 40, A: 255}
)

// SaveGainsPNG writes the gain history as a line chart.
func SaveGainsPNG(path string, history []dynamo.GainVector) error {
	if len(history) == 0 {
		return fmt.Errorf("no gain history to plot")
	}

	p := plot.New()
	p.Title.Text = "Gain history"
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "gain"

	series := []struct {
		name string
		c    color.Color
		get  func(dynamo.GainVector) float64
	}{
		{"Kp", kpColor, func(g dynamo.GainVector) float64 { return g.Kp }},
		{"Ki", kiColor, func(g dynamo.GainVector) float64 { return g.Ki }},
		{"Kd", kdColor, func(g dynamo.GainVector) float64 { return g.Kd }},
	}
	for _, s := range series {
		pts := make(plotter.XYs, len(history))
		for i, g := range history {
			pts[i] = plotter.XY{X: float64(i), Y: s.get(g)}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("%s line: %w", s.name, err)
		}
		line.Color = s.c
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(s.name, line)
	}

	return p.Save(10*vg.Inch, 5*vg.Inch, path)
}

// SaveTracePNG writes estimated roll and fin deflection, in degrees, against
// time.
func SaveTracePNG(path string, trace *dynamo.FlightTrace) error {
	if trace.Len() == 0 {
		return dynamo.ErrEmptyTrace
	}

	p := plot.New()
	p.Title.Text = "Flight trace"
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = "deg"

	roll := make(plotter.XYs, trace.Len())
	fin := make(plotter.XYs, trace.Len())
	for i := 0; i < trace.Len(); i++ {
		s := trace.At(i)
		roll[i] = plotter.XY{X: s.Time, Y: deg(s.Roll)}
		fin[i] = plotter.XY{X: s.Time, Y: deg(s.Canard1)}
	}

	rollLine, err := plotter.NewLine(roll)
	if err != nil {
		return err
	}
	rollLine.Color = kpColor
	finLine, err := plotter.NewLine(fin)
	if err != nil {
		return err
	}
	finLine.Color = finColor

	p.Add(rollLine, finLine, plotter.NewGrid())
	p.Legend.Add("roll", rollLine)
	p.Legend.Add("fin", finLine)

	return p.Save(10*vg.Inch, 5*vg.Inch, path)
}

func deg(rad float64) float64 { return rad * 180 / math.Pi }
