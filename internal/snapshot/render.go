package snapshot

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/plotgarden/plotgarden/internal/models"
)

const (
	cellSize    = 24 // pixels per grid cell
	gridMargin  = 8
	labelHeight = 24
)

var (
	colorBackground = color.RGBA{R: 245, G: 245, B: 240, A: 255}
	colorGridLine   = color.RGBA{R: 210, G: 210, B: 205, A: 255}
	colorLabel      = color.RGBA{R: 60, G: 60, B: 60, A: 255}
	colorUnassigned = color.RGBA{R: 230, G: 228, B: 222, A: 255}
	colorPlant      = color.RGBA{R: 27, G: 94, B: 32, A: 255}

	cellColors = map[models.CellKind]color.RGBA{
		models.CellSoil:     {R: 161, G: 123, B: 94, A: 255},
		models.CellWater:    {R: 100, G: 181, B: 246, A: 255},
		models.CellPath:     {R: 189, G: 189, B: 189, A: 255},
		models.CellBuilding: {R: 120, G: 113, B: 108, A: 255},
		models.CellBlocked:  {R: 66, G: 66, B: 66, A: 255},
	}
)

// Render draws the plan grid as a PNG: one square per cell colored by kind,
// a dot on every cell holding a plant, and the plan name along the top.
func Render(plan *models.Plan, cells []models.Cell, plants []models.PlantPlacement) ([]byte, error) {
	if plan.Width <= 0 || plan.Height <= 0 {
		return nil, fmt.Errorf("plan %s has degenerate grid %dx%d", plan.ID, plan.Width, plan.Height)
	}

	width := plan.Width*cellSize + 2*gridMargin
	height := plan.Height*cellSize + 2*gridMargin + labelHeight
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(colorBackground), image.Point{}, draw.Src)

	kinds := make(map[[2]int]models.CellKind, len(cells))
	for _, c := range cells {
		kinds[[2]int{c.X, c.Y}] = c.Kind
	}

	for y := 0; y < plan.Height; y++ {
		for x := 0; x < plan.Width; x++ {
			fill := colorUnassigned
			if kind, ok := kinds[[2]int{x, y}]; ok {
				if c, ok := cellColors[kind]; ok {
					fill = c
				}
			}
			drawCell(img, x, y, fill)
		}
	}

	for _, p := range plants {
		if p.X >= 0 && p.X < plan.Width && p.Y >= 0 && p.Y < plan.Height {
			drawPlantMarker(img, p.X, p.Y)
		}
	}

	drawLabel(img, plan.Name)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

func cellOrigin(x, y int) (int, int) {
	return gridMargin + x*cellSize, labelHeight + gridMargin + y*cellSize
}

func drawCell(img *image.RGBA, x, y int, fill color.RGBA) {
	ox, oy := cellOrigin(x, y)
	rect := image.Rect(ox, oy, ox+cellSize, oy+cellSize)
	draw.Draw(img, rect, image.NewUniform(fill), image.Point{}, draw.Src)

	// Thin border so adjacent same-kind cells stay readable.
	for px := rect.Min.X; px < rect.Max.X; px++ {
		img.SetRGBA(px, rect.Min.Y, colorGridLine)
		img.SetRGBA(px, rect.Max.Y-1, colorGridLine)
	}
	for py := rect.Min.Y; py < rect.Max.Y; py++ {
		img.SetRGBA(rect.Min.X, py, colorGridLine)
		img.SetRGBA(rect.Max.X-1, py, colorGridLine)
	}
}

func drawPlantMarker(img *image.RGBA, x, y int) {
	ox, oy := cellOrigin(x, y)
	cx := ox + cellSize/2
	cy := oy + cellSize/2
	r := cellSize / 4
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				img.SetRGBA(cx+dx, cy+dy, colorPlant)
			}
		}
	}
}

func drawLabel(img *image.RGBA, name string) {
	if name == "" {
		return
	}
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(colorLabel),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(gridMargin, labelHeight-8),
	}
	d.DrawString(name)
}
