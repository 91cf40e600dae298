package crossword

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Cell is the marker of one grid square.
type Cell int

const (
	Letter Cell = iota
	Block
)

func (c Cell) String() string {
	if c == Block {
		return "block"
	}
	return "letter"
}

// Grid is the validated, read-only geometry of a puzzle.
type Grid struct {
	size     int
	blocks   [][]bool
	clues    []Clue // across then down
	expected [][]string
	across   [][]int // clue index per cell, -1 when uncovered
	down     [][]int
	byID     map[ClueID]int
	solution [][]string
}

// normalize upper-cases s for comparison. Unicode aware: "ß" becomes "SS".
func normalize(s string) string {
	return cases.Upper(language.Und).String(s)
}

// NewGrid validates p and indexes its clue runs. Any structural problem is
// reported as an error wrapping ErrInvalidPuzzle.
func NewGrid(p *Puzzle) (*Grid, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil puzzle", ErrInvalidPuzzle)
	}
	n := p.Size
	if n <= 0 {
		return nil, fmt.Errorf("%w: size %d", ErrInvalidPuzzle, n)
	}
	if len(p.Grid) != n {
		return nil, fmt.Errorf("%w: size %d but grid has %d rows", ErrInvalidPuzzle, n, len(p.Grid))
	}
	if p.Solution != nil && len(p.Solution) != n {
		return nil, fmt.Errorf("%w: size %d but solution has %d rows", ErrInvalidPuzzle, n, len(p.Solution))
	}

	g := &Grid{
		size:     n,
		blocks:   make([][]bool, n),
		expected: make([][]string, n),
		across:   make([][]int, n),
		down:     make([][]int, n),
		byID:     make(map[ClueID]int),
	}
	for r := range n {
		if len(p.Grid[r]) != n {
			return nil, fmt.Errorf("%w: row %d has %d cells, want %d", ErrInvalidPuzzle, r, len(p.Grid[r]), n)
		}
		if p.Solution != nil && len(p.Solution[r]) != n {
			return nil, fmt.Errorf("%w: solution row %d has %d cells, want %d", ErrInvalidPuzzle, r, len(p.Solution[r]), n)
		}
		g.blocks[r] = make([]bool, n)
		g.expected[r] = make([]string, n)
		g.across[r] = make([]int, n)
		g.down[r] = make([]int, n)
		for c := range n {
			g.blocks[r][c] = IsBlockMarker(p.Grid[r][c])
			g.across[r][c] = -1
			g.down[r][c] = -1
		}
	}

	for _, group := range []struct {
		dir   Direction
		clues []Clue
	}{{Across, p.Clues.Across}, {Down, p.Clues.Down}} {
		for _, cl := range group.clues {
			if cl.Direction == "" {
				cl.Direction = group.dir
			}
			if cl.Direction != group.dir {
				return nil, fmt.Errorf("%w: clue %d listed under %s has direction %q", ErrInvalidPuzzle, cl.Number, group.dir, cl.Direction)
			}
			if err := g.addClue(cl); err != nil {
				return nil, err
			}
		}
	}
	if len(g.clues) == 0 {
		return nil, fmt.Errorf("%w: no clues", ErrInvalidPuzzle)
	}

	if p.Solution != nil {
		for r := range n {
			for c := range n {
				if g.blocks[r][c] {
					continue
				}
				want := g.expected[r][c]
				got := normalize(p.Solution[r][c])
				if want != "" && got != want {
					return nil, fmt.Errorf("%w: solution %q at (%d,%d) disagrees with answer letter %q", ErrInvalidPuzzle, got, r, c, want)
				}
			}
		}
	}
	g.solution = g.buildSolution(p.Solution)
	return g, nil
}

func (g *Grid) addClue(cl Clue) error {
	id := cl.ID()
	if _, dup := g.byID[id]; dup {
		return fmt.Errorf("%w: duplicate clue %s", ErrInvalidPuzzle, id)
	}
	if cl.Length <= 0 {
		return fmt.Errorf("%w: clue %s has length %d", ErrInvalidPuzzle, id, cl.Length)
	}
	if got := utf8.RuneCountInString(cl.Answer); got != cl.Length {
		return fmt.Errorf("%w: clue %s answer has %d letters, length is %d", ErrInvalidPuzzle, id, got, cl.Length)
	}

	idx := len(g.clues)
	owner := g.across
	if cl.Direction == Down {
		owner = g.down
	}
	letters := []rune(cl.Answer)
	for i := range cl.Length {
		r, c := cl.Cell(i)
		if !g.inBounds(r, c) {
			return fmt.Errorf("%w: clue %s runs off the grid at (%d,%d)", ErrInvalidPuzzle, id, r, c)
		}
		if g.blocks[r][c] {
			return fmt.Errorf("%w: clue %s crosses block at (%d,%d)", ErrInvalidPuzzle, id, r, c)
		}
		if other := owner[r][c]; other >= 0 {
			return fmt.Errorf("%w: clues %s and %s overlap at (%d,%d)", ErrInvalidPuzzle, g.clues[other].ID(), id, r, c)
		}
		letter := normalize(string(letters[i]))
		if prev := g.expected[r][c]; prev != "" && prev != letter {
			return fmt.Errorf("%w: clue %s letter %q at (%d,%d) conflicts with crossing letter %q", ErrInvalidPuzzle, id, letter, r, c, prev)
		}
		g.expected[r][c] = letter
		owner[r][c] = idx
	}
	g.clues = append(g.clues, cl)
	g.byID[id] = idx
	return nil
}

func (g *Grid) buildSolution(given [][]string) [][]string {
	sol := make([][]string, g.size)
	for r := range g.size {
		sol[r] = make([]string, g.size)
		for c := range g.size {
			switch {
			case g.blocks[r][c]:
				sol[r][c] = BlockHash
			case g.expected[r][c] != "":
				sol[r][c] = g.expected[r][c]
			case given != nil:
				sol[r][c] = normalize(given[r][c])
			}
		}
	}
	return sol
}

// Size returns the grid dimension N of an N×N puzzle.
func (g *Grid) Size() int { return g.size }

func (g *Grid) inBounds(row, col int) bool {
	return row >= 0 && row < g.size && col >= 0 && col < g.size
}

func (g *Grid) isBlock(row, col int) bool {
	return g.blocks[row][col]
}

// CellAt returns the marker at (row, col).
func (g *Grid) CellAt(row, col int) (Cell, error) {
	if !g.inBounds(row, col) {
		return Letter, fmt.Errorf("%w: (%d,%d) in %dx%d grid", ErrOutOfBounds, row, col, g.size, g.size)
	}
	if g.blocks[row][col] {
		return Block, nil
	}
	return Letter, nil
}

// ClueCovering returns the clue whose run in dir includes (row, col), or nil
// for a block cell or a cell no clue in that direction covers.
func (g *Grid) ClueCovering(row, col int, dir Direction) (*Clue, error) {
	if !g.inBounds(row, col) {
		return nil, fmt.Errorf("%w: (%d,%d) in %dx%d grid", ErrOutOfBounds, row, col, g.size, g.size)
	}
	idx := g.clueIndex(row, col, dir)
	if idx < 0 {
		return nil, nil
	}
	cl := g.clues[idx]
	return &cl, nil
}

func (g *Grid) clueIndex(row, col int, dir Direction) int {
	if dir == Down {
		return g.down[row][col]
	}
	return g.across[row][col]
}

// Clues returns every clue, across then down.
func (g *Grid) Clues() []Clue {
	out := make([]Clue, len(g.clues))
	copy(out, g.clues)
	return out
}

// Clue looks a clue up by identifier.
func (g *Grid) Clue(id ClueID) (Clue, bool) {
	idx, ok := g.byID[id]
	if !ok {
		return Clue{}, false
	}
	return g.clues[idx], true
}

// TotalClues returns the number of across plus down clues.
func (g *Grid) TotalClues() int { return len(g.clues) }

// emptyOverlay returns an all-empty overlay for the grid.
func (g *Grid) emptyOverlay() [][]string {
	ov := make([][]string, g.size)
	for r := range ov {
		ov[r] = make([]string, g.size)
	}
	return ov
}

// firstPlayable returns the first non-block cell in reading order.
func (g *Grid) firstPlayable() (int, int, bool) {
	for r := range g.size {
		for c := range g.size {
			if !g.blocks[r][c] {
				return r, c, true
			}
		}
	}
	return 0, 0, false
}
