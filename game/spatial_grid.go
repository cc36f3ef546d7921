package game

import (
	"math"
	"sort"
)

// SpatialGrid provides O(1) average case lookup for nearby bots using a
// grid-based spatial hash, so bullet hit detection does not have to test
// every bullet against every bot.
type SpatialGrid struct {
	cellSize float64
	cols     int
	rows     int
	cells    [][]int // Each cell contains bot IDs
}

// GridCellSize is the size of each grid cell in arena units.
// It must cover a bot's bounding circle plus the longest bullet step
// (slowest power gives BulletSpeed(MinFirepower) = 19.7).
const GridCellSize = 100.0

// NewSpatialGrid creates a new spatial grid for the arena
func NewSpatialGrid(arena Arena) *SpatialGrid {
	cols := max(int(math.Ceil(float64(arena.Width)/GridCellSize)), 1)
	rows := max(int(math.Ceil(float64(arena.Height)/GridCellSize)), 1)

	cells := make([][]int, cols*rows)
	for i := range cells {
		cells[i] = make([]int, 0, 4)
	}

	return &SpatialGrid{
		cellSize: GridCellSize,
		cols:     cols,
		rows:     rows,
		cells:    cells,
	}
}

// Clear resets the grid for a new turn
func (g *SpatialGrid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0] // Reuse underlying array
	}
}

// cellCoords returns the clamped column and row for a position
func (g *SpatialGrid) cellCoords(x, y float64) (int, int) {
	col := int(x / g.cellSize)
	row := int(y / g.cellSize)

	if col < 0 {
		col = 0
	} else if col >= g.cols {
		col = g.cols - 1
	}
	if row < 0 {
		row = 0
	} else if row >= g.rows {
		row = g.rows - 1
	}
	return col, row
}

// Insert adds a bot to the grid
func (g *SpatialGrid) Insert(botID int, x, y float64) {
	col, row := g.cellCoords(x, y)
	idx := row*g.cols + col
	g.cells[idx] = append(g.cells[idx], botID)
}

// GetNearby returns bot IDs that might be within range of the given position,
// in ascending order. The caller must still perform exact hit tests.
func (g *SpatialGrid) GetNearby(x, y float64) []int {
	col, row := g.cellCoords(x, y)

	var result []int
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			c := col + dc
			r := row + dr
			if c < 0 || c >= g.cols || r < 0 || r >= g.rows {
				continue
			}
			result = append(result, g.cells[r*g.cols+c]...)
		}
	}
	sort.Ints(result)
	return result
}

// indexBots populates the grid with the live bots
func (g *SpatialGrid) indexBots(bots map[int]*bot) {
	g.Clear()
	for id, b := range bots {
		g.Insert(id, b.x, b.y)
	}
}
