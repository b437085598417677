// Package render draws the chart views as PNG images.
package render

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"sort"

	"dietinsights/pkg/domain"
)

const (
	width   = 640
	height  = 360
	margin  = 24
	pieSize = 320
)

// ErrNoData is returned when a chart has nothing to draw.
var ErrNoData = errors.New("render: no data")

var (
	background = color.White
	axis       = color.RGBA{96, 96, 96, 255}
	// protein, carbs, fat
	palette = []color.RGBA{
		{0, 102, 204, 255},
		{240, 160, 32, 255},
		{204, 51, 51, 255},
	}
)

// Slice is one labelled pie segment.
type Slice struct {
	Label string
	Value float64
}

// MacroSlices returns the pie segments for one diet in protein, carbs, fat order.
func MacroSlices(m domain.MacroMeans) []Slice {
	return []Slice{
		{Label: domain.ColumnProtein, Value: m.Protein},
		{Label: domain.ColumnCarbs, Value: m.Carbs},
		{Label: domain.ColumnFat, Value: m.Fat},
	}
}

// RenderBar draws one bar per diet, ordered by diet name.
func RenderBar(data map[string]float64) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrNoData
	}
	names := sortedKeys(data)
	maxV := 0.0
	for _, v := range data {
		maxV = math.Max(maxV, v)
	}
	img := canvas(width, height)
	drawAxes(img)

	plotW := width - 2*margin
	plotH := height - 2*margin
	slot := plotW / len(names)
	for i, name := range names {
		h := scale(data[name], maxV, plotH)
		x0 := margin + i*slot + slot/6
		x1 := margin + (i+1)*slot - slot/6
		rect := image.Rect(x0, height-margin-h, x1, height-margin)
		draw.Draw(img, rect, &image.Uniform{palette[0]}, image.Point{}, draw.Src)
	}
	return encode(img)
}

// RenderLine draws a protein, carbs and fat series across diets ordered by name.
func RenderLine(data map[string]domain.MacroMeans) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrNoData
	}
	names := sortedKeys(data)
	maxV := 0.0
	for _, m := range data {
		maxV = math.Max(maxV, math.Max(m.Protein, math.Max(m.Carbs, m.Fat)))
	}
	img := canvas(width, height)
	drawAxes(img)

	plotW := width - 2*margin
	plotH := height - 2*margin
	step := plotW / len(names)
	xAt := func(i int) int { return margin + i*step + step/2 }
	yAt := func(v float64) int { return height - margin - scale(v, maxV, plotH) }
	for series, c := range palette {
		value := func(m domain.MacroMeans) float64 {
			return [...]float64{m.Protein, m.Carbs, m.Fat}[series]
		}
		for i, name := range names {
			x, y := xAt(i), yAt(value(data[name]))
			marker := image.Rect(x-3, y-3, x+4, y+4)
			draw.Draw(img, marker, &image.Uniform{c}, image.Point{}, draw.Src)
			if i > 0 {
				px, py := xAt(i-1), yAt(value(data[names[i-1]]))
				line(img, px, py, x, y, c)
			}
		}
	}
	return encode(img)
}

// RenderPie draws the slices clockwise from twelve o'clock. Zero and negative
// values are skipped; an all-zero pie is ErrNoData.
func RenderPie(slices []Slice) ([]byte, error) {
	total := 0.0
	for _, s := range slices {
		if s.Value > 0 {
			total += s.Value
		}
	}
	if total == 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return nil, ErrNoData
	}
	// cumulative end angle per slice, radians from twelve o'clock
	bounds := make([]float64, len(slices))
	acc := 0.0
	for i, s := range slices {
		if s.Value > 0 {
			acc += s.Value / total * 2 * math.Pi
		}
		bounds[i] = acc
	}

	img := canvas(pieSize, pieSize)
	r := float64(pieSize/2 - margin)
	cx, cy := float64(pieSize)/2, float64(pieSize)/2
	for y := 0; y < pieSize; y++ {
		for x := 0; x < pieSize; x++ {
			dx, dy := float64(x)+0.5-cx, float64(y)+0.5-cy
			if dx*dx+dy*dy > r*r {
				continue
			}
			theta := math.Atan2(dx, -dy)
			if theta < 0 {
				theta += 2 * math.Pi
			}
			for i, end := range bounds {
				if theta < end {
					img.Set(x, y, palette[i%len(palette)])
					break
				}
			}
		}
	}
	return encode(img)
}

func canvas(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{background}, image.Point{}, draw.Src)
	return img
}

func drawAxes(img *image.RGBA) {
	line(img, margin, height-margin, width-margin, height-margin, axis)
	line(img, margin, margin, margin, height-margin, axis)
}

func scale(v, maxV float64, span int) int {
	if maxV <= 0 || v <= 0 || math.IsNaN(v) {
		return 0
	}
	return int(math.Round(v / maxV * float64(span)))
}

// line draws a Bresenham segment.
func line(img *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		img.Set(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func encode(img image.Image) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
