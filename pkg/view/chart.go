package view

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/homedash/homedash/pkg/types"
)

// chart geometry in SVG user units
const (
	chartWidth  = 640
	chartHeight = 320

	plotLeft   = 64
	plotRight  = chartWidth - 16
	plotTop    = 36
	plotBottom = chartHeight - 56

	yTickCount    = 5
	maxXTickCount = 6

	chartTickLayout = "Jan 2 15:04"
)

// ChartPoint is one sample placed in the plot area.
type ChartPoint struct {
	X, Y  float64
	Label string
	Value string
}

// ChartTick is an axis label at a position along the axis.
type ChartTick struct {
	Pos   float64
	Label string
}

// Chart is a line chart of energy samples.
type Chart struct {
	Width, Height            int
	Left, Right, Top, Bottom float64

	Series string
	XAxis  string
	YAxis  string

	Points []ChartPoint
	Path   string
	XTicks []ChartTick
	YTicks []ChartTick
}

// Empty returns true if there is nothing to plot.
func (c Chart) Empty() bool {
	return len(c.Points) == 0
}

// CenterX is the horizontal middle of the plot area.
func (c Chart) CenterX() float64 {
	return (c.Left + c.Right) / 2
}

// BuildChart lays the samples out on a time axis in ascending timestamp
// order. The input slice is not modified.
func BuildChart(data []types.EnergyData, loc *time.Location) Chart {
	if loc == nil {
		loc = time.Local
	}
	c := Chart{
		Width:  chartWidth,
		Height: chartHeight,
		Left:   plotLeft,
		Right:  plotRight,
		Top:    plotTop,
		Bottom: plotBottom,
		Series: "Energy Usage (kWh)",
		XAxis:  "Timestamp",
		YAxis:  "Energy (kWh)",
	}
	if len(data) == 0 {
		return c
	}

	samples := slices.Clone(data)
	slices.SortStableFunc(samples, func(a, b types.EnergyData) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	minY, maxY := 0.0, 0.0
	for _, s := range samples {
		minY = math.Min(minY, s.Energy)
		maxY = math.Max(maxY, s.Energy)
	}
	if maxY == minY {
		maxY = minY + 1
	}

	first := samples[0].Timestamp
	span := samples[len(samples)-1].Timestamp.Sub(first)

	xFor := func(t time.Time) float64 {
		if span <= 0 {
			return (plotLeft + plotRight) / 2
		}
		return plotLeft + float64(t.Sub(first))/float64(span)*(plotRight-plotLeft)
	}
	yFor := func(v float64) float64 {
		return plotBottom - (v-minY)/(maxY-minY)*(plotBottom-plotTop)
	}

	var path strings.Builder
	c.Points = make([]ChartPoint, 0, len(samples))
	for i, s := range samples {
		p := ChartPoint{
			X:     round2(xFor(s.Timestamp)),
			Y:     round2(yFor(s.Energy)),
			Label: s.Timestamp.In(loc).Format(chartTickLayout),
			Value: fmt.Sprintf("%.2f", s.Energy),
		}
		c.Points = append(c.Points, p)
		if i == 0 {
			fmt.Fprintf(&path, "M%g,%g", p.X, p.Y)
		} else {
			fmt.Fprintf(&path, " L%g,%g", p.X, p.Y)
		}
	}
	c.Path = path.String()

	for i := 0; i < yTickCount; i++ {
		v := minY + (maxY-minY)*float64(i)/float64(yTickCount-1)
		c.YTicks = append(c.YTicks, ChartTick{Pos: round2(yFor(v)), Label: fmt.Sprintf("%.1f", v)})
	}

	if span <= 0 {
		c.XTicks = []ChartTick{{Pos: c.Points[0].X, Label: c.Points[0].Label}}
		return c
	}
	n := min(maxXTickCount, len(samples))
	if n < 2 {
		n = 2
	}
	for i := 0; i < n; i++ {
		t := first.Add(time.Duration(float64(span) * float64(i) / float64(n-1)))
		c.XTicks = append(c.XTicks, ChartTick{Pos: round2(xFor(t)), Label: t.In(loc).Format(chartTickLayout)})
	}
	return c
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
