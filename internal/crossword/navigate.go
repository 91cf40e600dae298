package crossword

// AdvanceMode selects how the cursor moves after a letter is typed.
type AdvanceMode int

const (
	// AdvanceAdjacent moves to the next cell of the clue run while an
	// unfilled cell remains ahead in that run.
	AdvanceAdjacent AdvanceMode = iota
	// AdvanceSkipFilled moves past filled cells to the first unfilled cell
	// ahead in the run.
	AdvanceSkipFilled
)

// Arrow is an arrow key.
type Arrow string

const (
	ArrowLeft  Arrow = "left"
	ArrowRight Arrow = "right"
	ArrowUp    Arrow = "up"
	ArrowDown  Arrow = "down"
)

// Valid reports whether a is one of the four arrows.
func (a Arrow) Valid() bool {
	switch a {
	case ArrowLeft, ArrowRight, ArrowUp, ArrowDown:
		return true
	}
	return false
}

// axis returns the direction an arrow forces and whether it moves forward.
func (a Arrow) axis() (Direction, bool) {
	switch a {
	case ArrowLeft:
		return Across, false
	case ArrowUp:
		return Down, false
	case ArrowDown:
		return Down, true
	default:
		return Across, true
	}
}

// stepFrom walks the grid one playable cell at a time from (row, col).
// Across walks row-major and Down column-major; both wrap from the last
// cell back to the first. It reports false when no other playable cell
// exists.
func (g *Grid) stepFrom(row, col int, dir Direction, forward bool) (int, int, bool) {
	n := g.size
	total := n * n
	pos := row*n + col
	if dir == Down {
		pos = col*n + row
	}
	delta := 1
	if !forward {
		delta = total - 1
	}
	for range total - 1 {
		pos = (pos + delta) % total
		r, c := pos/n, pos%n
		if dir == Down {
			r, c = c, r
		}
		if !g.blocks[r][c] {
			return r, c, true
		}
	}
	return row, col, false
}

// advanceInRun returns where the cursor goes after writing at (row, col) on
// cl. The scan is bounded by the run length and never leaves the run.
func advanceInRun(cl Clue, overlay [][]string, row, col int, mode AdvanceMode) (int, int) {
	k := cl.offset(row, col)
	for j := k + 1; j < cl.Length; j++ {
		r, c := cl.Cell(j)
		if overlay[r][c] != "" {
			continue
		}
		if mode == AdvanceSkipFilled {
			return r, c
		}
		return cl.Cell(k + 1)
	}
	return row, col
}

// firstEmpty returns the offset of the first empty cell of cl, or -1.
func firstEmpty(cl Clue, overlay [][]string) int {
	for i := range cl.Length {
		r, c := cl.Cell(i)
		if overlay[r][c] == "" {
			return i
		}
	}
	return -1
}

// lastFilled returns the offset of the last non-empty cell of cl, or -1.
func lastFilled(cl Clue, overlay [][]string) int {
	for i := cl.Length - 1; i >= 0; i-- {
		r, c := cl.Cell(i)
		if overlay[r][c] != "" {
			return i
		}
	}
	return -1
}
