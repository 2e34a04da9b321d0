package snapshot

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/plotgarden/plotgarden/internal/models"
)

func testPlan(width, height int) *models.Plan {
	return &models.Plan{ID: "p1", Name: "Back Garden", Width: width, Height: height}
}

func TestRenderDimensions(t *testing.T) {
	t.Parallel()

	data, err := Render(testPlan(10, 6), nil, nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	bounds := img.Bounds()
	wantW := 10*cellSize + 2*gridMargin
	wantH := 6*cellSize + 2*gridMargin + labelHeight
	if bounds.Dx() != wantW || bounds.Dy() != wantH {
		t.Errorf("expected %dx%d, got %dx%d", wantW, wantH, bounds.Dx(), bounds.Dy())
	}
}

func TestRenderCellColors(t *testing.T) {
	t.Parallel()

	cells := []models.Cell{
		{X: 0, Y: 0, Kind: models.CellSoil},
		{X: 1, Y: 0, Kind: models.CellWater},
	}
	data, err := Render(testPlan(3, 2), cells, nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	// Sample each cell's centre, clear of the border pixels.
	checks := []struct {
		x, y int
		want [3]uint32
	}{
		{0, 0, [3]uint32{uint32(cellColors[models.CellSoil].R), uint32(cellColors[models.CellSoil].G), uint32(cellColors[models.CellSoil].B)}},
		{1, 0, [3]uint32{uint32(cellColors[models.CellWater].R), uint32(cellColors[models.CellWater].G), uint32(cellColors[models.CellWater].B)}},
		{2, 0, [3]uint32{uint32(colorUnassigned.R), uint32(colorUnassigned.G), uint32(colorUnassigned.B)}},
	}
	for _, c := range checks {
		ox, oy := cellOrigin(c.x, c.y)
		r, g, b, _ := img.At(ox+cellSize/2, oy+cellSize/2).RGBA()
		got := [3]uint32{r >> 8, g >> 8, b >> 8}
		if got != c.want {
			t.Errorf("cell (%d,%d): expected color %v, got %v", c.x, c.y, c.want, got)
		}
	}
}

func TestRenderPlantMarker(t *testing.T) {
	t.Parallel()

	cells := []models.Cell{{X: 1, Y: 1, Kind: models.CellSoil}}
	plants := []models.PlantPlacement{{X: 1, Y: 1, Name: "Tomato"}}
	data, err := Render(testPlan(3, 3), cells, plants)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	ox, oy := cellOrigin(1, 1)
	r, g, b, _ := img.At(ox+cellSize/2, oy+cellSize/2).RGBA()
	got := [3]uint32{r >> 8, g >> 8, b >> 8}
	want := [3]uint32{uint32(colorPlant.R), uint32(colorPlant.G), uint32(colorPlant.B)}
	if got != want {
		t.Errorf("expected plant marker color %v at cell centre, got %v", want, got)
	}
}

func TestRenderDegenerateGrid(t *testing.T) {
	t.Parallel()

	if _, err := Render(testPlan(0, 5), nil, nil); err == nil {
		t.Error("expected error for zero-width grid")
	}
}

func TestCacheRoundTrip(t *testing.T) {
	t.Parallel()

	c := NewCache(t.TempDir())
	if _, ok := c.Get("p1", 1); ok {
		t.Fatal("expected miss on empty cache")
	}

	if err := c.Set("p1", 1, []byte("png-bytes")); err != nil {
		t.Fatalf("set: %v", err)
	}
	data, ok := c.Get("p1", 1)
	if !ok || string(data) != "png-bytes" {
		t.Fatalf("expected hit, got ok=%v data=%q", ok, data)
	}
}

func TestCacheVersionEviction(t *testing.T) {
	t.Parallel()

	c := NewCache(t.TempDir())
	if err := c.Set("p1", 1, []byte("v1")); err != nil {
		t.Fatalf("set v1: %v", err)
	}
	if err := c.Set("p1", 2, []byte("v2")); err != nil {
		t.Fatalf("set v2: %v", err)
	}

	if _, ok := c.Get("p1", 1); ok {
		t.Error("old version should have been evicted")
	}
	if data, ok := c.Get("p1", 2); !ok || string(data) != "v2" {
		t.Errorf("expected current version hit, got ok=%v data=%q", ok, data)
	}
}

func TestCacheInvalidate(t *testing.T) {
	t.Parallel()

	c := NewCache(t.TempDir())
	c.Set("p1", 3, []byte("v3"))
	c.Set("p2", 1, []byte("other"))

	c.Invalidate("p1")
	if _, ok := c.Get("p1", 3); ok {
		t.Error("invalidated plan should miss")
	}
	if _, ok := c.Get("p2", 1); !ok {
		t.Error("other plans must be untouched")
	}
}
