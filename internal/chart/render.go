package chart

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	// png and svg canvases for draw.NewFormattedCanvas.
	_ "gonum.org/v1/plot/vg/vgimg"
	_ "gonum.org/v1/plot/vg/vgsvg"
)

// ErrNoData is returned when a chart has nothing to draw.
var ErrNoData = errors.New("no data to plot")

// Image is an encoded chart.
type Image struct {
	Kind   string `json:"kind"`
	Format string `json:"format"`
	Data   []byte `json:"-"`
}

// ContentType returns the MIME type of the encoded image.
func (im *Image) ContentType() string {
	if im.Format == "svg" {
		return "image/svg+xml"
	}
	return "image/png"
}

// Renderer draws specs at a fixed size and format.
type Renderer struct {
	Width  vg.Length
	Height vg.Length
	Format string // png or svg
	Bins   int
}

// DefaultRenderer returns an 8x5 inch PNG renderer.
func DefaultRenderer() Renderer {
	return Renderer{Width: 8 * vg.Inch, Height: 5 * vg.Inch, Format: "png", Bins: 20}
}

// Plot renders spec into an encoded image.
func (r Renderer) Plot(spec Spec) (*Image, error) {
	var (
		grid [][]*plot.Plot
		err  error
	)
	switch s := spec.(type) {
	case HistBox:
		grid, err = r.histBox(s)
	case CountHist:
		grid, err = single(countHist(s))
	case ScatterTrend:
		grid, err = single(scatterTrend(s))
	case PairedCount:
		grid, err = pairedCount(s)
	case SplitBox:
		grid, err = single(splitBox(s))
	case Heatmap:
		grid, err = single(heatmap(s))
	case StackedBar:
		grid, err = single(stackedBar(s))
	case GroupedScatter:
		grid, err = single(groupedScatter(s))
	case GroupedBox:
		grid, err = single(groupedBox(s))
	default:
		return nil, fmt.Errorf("unsupported chart %T", spec)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", spec.Kind(), err)
	}
	data, err := r.encode(grid)
	if err != nil {
		return nil, fmt.Errorf("%s: encode: %w", spec.Kind(), err)
	}
	return &Image{Kind: spec.Kind(), Format: r.format(), Data: data}, nil
}

func (r Renderer) format() string {
	if r.Format == "" {
		return "png"
	}
	return r.Format
}

func single(p *plot.Plot, err error) ([][]*plot.Plot, error) {
	if err != nil {
		return nil, err
	}
	return [][]*plot.Plot{{p}}, nil
}

// encode draws one plot directly, or a grid of plots aligned on a shared canvas.
func (r Renderer) encode(grid [][]*plot.Plot) ([]byte, error) {
	w, h := r.Width, r.Height
	if w <= 0 || h <= 0 {
		d := DefaultRenderer()
		w, h = d.Width, d.Height
	}
	var buf bytes.Buffer
	if len(grid) == 1 && len(grid[0]) == 1 {
		wt, err := grid[0][0].WriterTo(w, h, r.format())
		if err != nil {
			return nil, err
		}
		if _, err := wt.WriteTo(&buf); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	c, err := draw.NewFormattedCanvas(w, h, r.format())
	if err != nil {
		return nil, err
	}
	tiles := draw.Tiles{
		Rows: len(grid), Cols: len(grid[0]),
		PadX: vg.Millimeter, PadY: vg.Millimeter,
		PadTop: vg.Points(2), PadBottom: vg.Points(2),
		PadLeft: vg.Points(2), PadRight: vg.Points(2),
	}
	canvases := plot.Align(grid, tiles, draw.New(c))
	for j := range grid {
		for i := range grid[j] {
			grid[j][i].Draw(canvases[j][i])
		}
	}
	if _, err := c.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func finite(vals []float64) plotter.Values {
	out := make(plotter.Values, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

func (r Renderer) histBox(s HistBox) ([][]*plot.Plot, error) {
	vals := finite(s.Values)
	if len(vals) == 0 {
		return nil, ErrNoData
	}
	bins := r.Bins
	if bins <= 0 {
		bins = 20
	}
	hp := plot.New()
	hp.Title.Text = s.Title
	hp.Y.Label.Text = "Count"
	hist, err := plotter.NewHist(vals, bins)
	if err != nil {
		return nil, err
	}
	hist.FillColor = plotutil.Color(0)
	hp.Add(hist)

	bp := plot.New()
	bp.X.Label.Text = s.Variable
	box, err := plotter.NewBoxPlot(vg.Points(20), 0, vals)
	if err != nil {
		return nil, err
	}
	box.Horizontal = true
	box.FillColor = plotutil.Color(0)
	bp.Add(box)
	bp.HideY()
	return [][]*plot.Plot{{hp}, {bp}}, nil
}

func countHist(s CountHist) (*plot.Plot, error) {
	if len(s.Levels) == 0 {
		return nil, ErrNoData
	}
	p := plot.New()
	p.Title.Text = s.Title
	p.X.Label.Text = s.Variable
	p.Y.Label.Text = "Count"
	bars, err := plotter.NewBarChart(plotter.Values(s.Counts), vg.Points(20))
	if err != nil {
		return nil, err
	}
	bars.Color = plotutil.Color(0)
	p.Add(bars)
	p.NominalX(s.Levels...)
	return p, nil
}

func points(xs, ys []float64) plotter.XYs {
	out := make(plotter.XYs, 0, len(xs))
	for i := range xs {
		if math.IsNaN(xs[i]) || math.IsNaN(ys[i]) {
			continue
		}
		out = append(out, plotter.XY{X: xs[i], Y: ys[i]})
	}
	return out
}

func scatterTrend(s ScatterTrend) (*plot.Plot, error) {
	pts := points(s.XS, s.YS)
	if len(pts) == 0 {
		return nil, ErrNoData
	}
	p := plot.New()
	p.Title.Text = s.Title
	p.X.Label.Text = s.X
	p.Y.Label.Text = s.Y
	p.Add(plotter.NewGrid())
	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, err
	}
	sc.GlyphStyle.Color = plotutil.Color(0)
	sc.GlyphStyle.Radius = vg.Points(2)
	p.Add(sc)

	lo, hi := pts[0].X, pts[0].X
	for _, pt := range pts {
		lo, hi = math.Min(lo, pt.X), math.Max(hi, pt.X)
	}
	if !math.IsNaN(s.Slope) && !math.IsNaN(s.Intercept) {
		line, err := plotter.NewLine(plotter.XYs{
			{X: lo, Y: s.Intercept + s.Slope*lo},
			{X: hi, Y: s.Intercept + s.Slope*hi},
		})
		if err != nil {
			return nil, err
		}
		line.LineStyle.Width = vg.Points(2)
		line.LineStyle.Color = plotutil.Color(1)
		p.Add(line)
		p.Legend.Add("trend", line)
	}
	return p, nil
}

// groupedBars draws one bar series per column level, side by side on each row level.
func groupedBars(t Crosstab, title string) (*plot.Plot, error) {
	if len(t.Rows) == 0 || len(t.Cols) == 0 {
		return nil, ErrNoData
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = t.RowVar
	p.Y.Label.Text = "Count"
	w := vg.Points(40 / float64(len(t.Cols)))
	for j, col := range t.Cols {
		vals := make(plotter.Values, len(t.Rows))
		for i := range t.Rows {
			vals[i] = t.Counts[i][j]
		}
		bars, err := plotter.NewBarChart(vals, w)
		if err != nil {
			return nil, err
		}
		bars.Color = plotutil.Color(j)
		bars.LineStyle.Width = 0
		bars.Offset = vg.Length(float64(j)-float64(len(t.Cols)-1)/2) * w
		p.Add(bars)
		p.Legend.Add(col, bars)
	}
	p.Legend.Top = true
	p.NominalX(t.Rows...)
	return p, nil
}

func pairedCount(s PairedCount) ([][]*plot.Plot, error) {
	left, err := groupedBars(s.Table, s.Title)
	if err != nil {
		return nil, err
	}
	right, err := groupedBars(s.Table.Transpose(), "")
	if err != nil {
		return nil, err
	}
	return [][]*plot.Plot{{left, right}}, nil
}

func splitBox(s SplitBox) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = s.Title
	p.X.Label.Text = s.Value
	p.Y.Label.Text = s.Category
	var names []string
	for _, g := range s.Groups {
		vals := finite(g.Values)
		if len(vals) == 0 {
			continue
		}
		box, err := plotter.NewBoxPlot(vg.Points(16), float64(len(names)), vals)
		if err != nil {
			return nil, err
		}
		box.Horizontal = true
		box.FillColor = plotutil.Color(len(names))
		p.Add(box)
		names = append(names, g.Name)
	}
	if len(names) == 0 {
		return nil, ErrNoData
	}
	p.NominalY(names...)
	return p, nil
}

// corrGrid adapts a correlation matrix to plotter.GridXYZ. Rows are flipped so the first
// column reads top-left; undefined correlations draw as zero.
type corrGrid struct{ v [][]float64 }

func (g corrGrid) Dims() (c, r int) { return len(g.v), len(g.v) }
func (g corrGrid) X(c int) float64  { return float64(c) }
func (g corrGrid) Y(r int) float64  { return float64(r) }
func (g corrGrid) Z(c, r int) float64 {
	z := g.v[len(g.v)-1-r][c]
	if math.IsNaN(z) {
		return 0
	}
	return z
}

func heatmap(s Heatmap) (*plot.Plot, error) {
	if len(s.Columns) < 2 {
		return nil, ErrNoData
	}
	p := plot.New()
	p.Title.Text = s.Title
	hm := plotter.NewHeatMap(corrGrid{v: s.Values}, palette.Heat(12, 1))
	hm.Min, hm.Max = -1, 1
	p.Add(hm)

	labels := make([]plotter.XY, 0, len(s.Columns)*len(s.Columns))
	cells := make([]string, 0, cap(labels))
	n := len(s.Columns)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			labels = append(labels, plotter.XY{X: float64(c), Y: float64(n - 1 - r)})
			z := s.Values[r][c]
			if math.IsNaN(z) {
				cells = append(cells, "n/a")
			} else {
				cells = append(cells, fmt.Sprintf("%.2f", z))
			}
		}
	}
	lab, err := plotter.NewLabels(plotter.XYLabels{XYs: labels, Labels: cells})
	if err != nil {
		return nil, err
	}
	for i := range lab.TextStyle {
		lab.TextStyle[i].Color = color.Black
		lab.TextStyle[i].XAlign = text.XCenter
		lab.TextStyle[i].YAlign = text.YCenter
	}
	p.Add(lab)

	reversed := make([]string, n)
	for i, c := range s.Columns {
		reversed[n-1-i] = c
	}
	p.NominalX(s.Columns...)
	p.NominalY(reversed...)
	return p, nil
}

func stackedBar(s StackedBar) (*plot.Plot, error) {
	t := s.Table
	if len(t.Rows) == 0 || len(t.Cols) == 0 {
		return nil, ErrNoData
	}
	p := plot.New()
	p.Title.Text = s.Title
	p.X.Label.Text = t.RowVar
	p.Y.Label.Text = "Count"
	var prev *plotter.BarChart
	for j, col := range t.Cols {
		vals := make(plotter.Values, len(t.Rows))
		for i := range t.Rows {
			vals[i] = t.Counts[i][j]
		}
		bars, err := plotter.NewBarChart(vals, vg.Points(30))
		if err != nil {
			return nil, err
		}
		bars.Color = plotutil.Color(j)
		bars.LineStyle.Width = 0
		if prev != nil {
			bars.StackOn(prev)
		}
		prev = bars
		p.Add(bars)
		p.Legend.Add(col, bars)
	}
	p.Legend.Top = true
	p.NominalX(t.Rows...)
	return p, nil
}

func groupedScatter(s GroupedScatter) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = s.Title
	p.X.Label.Text = s.X
	p.Y.Label.Text = s.Y
	p.Add(plotter.NewGrid())
	drawn := 0
	for i, g := range s.Groups {
		pts := points(g.X, g.Y)
		if len(pts) == 0 {
			continue
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Color = plotutil.Color(i)
		sc.GlyphStyle.Shape = plotutil.Shape(i)
		sc.GlyphStyle.Radius = vg.Points(2)
		p.Add(sc)
		p.Legend.Add(g.Name, sc)
		drawn++
	}
	if drawn == 0 {
		return nil, ErrNoData
	}
	p.Legend.Top = true
	return p, nil
}

// swatch is a legend entry drawn as a filled square; box plots have no thumbnail.
type swatch struct{ fill color.Color }

func (s swatch) Thumbnail(c *draw.Canvas) {
	pts := []vg.Point{
		{X: c.Min.X, Y: c.Min.Y}, {X: c.Max.X, Y: c.Min.Y},
		{X: c.Max.X, Y: c.Max.Y}, {X: c.Min.X, Y: c.Max.Y},
	}
	c.FillPolygon(s.fill, c.ClipPolygonXY(pts))
}

func groupedBox(s GroupedBox) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = s.Title
	p.X.Label.Text = s.Outer
	p.Y.Label.Text = s.Value
	outer := make(map[string]int, len(s.Levels))
	for i, l := range s.Levels {
		outer[l] = i
	}
	hue := make(map[string]int, len(s.Hues))
	for i, h := range s.Hues {
		hue[h] = i
	}
	w := vg.Points(60 / float64(max(len(s.Hues), 1)))
	legend := map[string]bool{}
	drawn := 0
	for _, g := range s.Groups {
		vals := finite(g.Values)
		if len(vals) == 0 {
			continue
		}
		j := hue[g.Hue]
		box, err := plotter.NewBoxPlot(w, float64(outer[g.Name]), vals)
		if err != nil {
			return nil, err
		}
		box.Offset = vg.Length(float64(j)-float64(len(s.Hues)-1)/2) * w
		box.FillColor = plotutil.Color(j)
		p.Add(box)
		if !legend[g.Hue] {
			legend[g.Hue] = true
			p.Legend.Add(g.Hue, swatch{plotutil.Color(j)})
		}
		drawn++
	}
	if drawn == 0 {
		return nil, ErrNoData
	}
	p.Legend.Top = true
	p.NominalX(s.Levels...)
	return p, nil
}
