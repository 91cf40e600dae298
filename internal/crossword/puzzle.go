// Package crossword holds the daily crossword engine: the puzzle grid model,
// cursor navigation, clue completion and solution disclosure.
//
// An Engine is owned by a single viewing session and is not safe for
// concurrent use; callers serialize access to it.
package crossword

import (
	"fmt"
	"strconv"
	"strings"
)

// Direction is the orientation of a clue run.
type Direction string

const (
	Across Direction = "across"
	Down   Direction = "down"
)

// Valid reports whether d is Across or Down.
func (d Direction) Valid() bool {
	return d == Across || d == Down
}

// Toggle returns the other direction.
func (d Direction) Toggle() Direction {
	if d == Across {
		return Down
	}
	return Across
}

// step returns the row/col delta of one cell along d.
func (d Direction) step() (int, int) {
	if d == Down {
		return 1, 0
	}
	return 0, 1
}

// Block markers used by the content API.
const (
	BlockHash  = "#"
	BlockSolid = "█"
)

// IsBlockMarker reports whether a raw grid value marks a block cell.
func IsBlockMarker(s string) bool {
	return s == BlockHash || s == BlockSolid
}

// Clue is one numbered entry of the puzzle.
type Clue struct {
	Number    int       `json:"number" yaml:"number"`
	Direction Direction `json:"direction" yaml:"direction"`
	StartRow  int       `json:"startRow" yaml:"startRow"`
	StartCol  int       `json:"startCol" yaml:"startCol"`
	Length    int       `json:"length" yaml:"length"`
	Answer    string    `json:"answer,omitempty" yaml:"answer"`
	Text      string    `json:"clue" yaml:"clue"`
}

// ID returns the clue's identifier.
func (c Clue) ID() ClueID {
	return ClueID{Direction: c.Direction, Number: c.Number}
}

// Cell returns the coordinates of the i-th cell of the run.
func (c Clue) Cell(i int) (int, int) {
	dr, dc := c.Direction.step()
	return c.StartRow + dr*i, c.StartCol + dc*i
}

// Covers reports whether (row, col) lies on the clue's run.
func (c Clue) Covers(row, col int) bool {
	if c.Direction == Across {
		return row == c.StartRow && col >= c.StartCol && col < c.StartCol+c.Length
	}
	return col == c.StartCol && row >= c.StartRow && row < c.StartRow+c.Length
}

// offset returns the index of (row, col) within the run.
func (c Clue) offset(row, col int) int {
	if c.Direction == Across {
		return col - c.StartCol
	}
	return row - c.StartRow
}

// ClueID identifies a clue by direction and number. Its text form is the
// number followed by A or D, e.g. "12A".
type ClueID struct {
	Direction Direction
	Number    int
}

func (id ClueID) String() string {
	suffix := "A"
	if id.Direction == Down {
		suffix = "D"
	}
	return strconv.Itoa(id.Number) + suffix
}

// MarshalText implements encoding.TextMarshaler.
func (id ClueID) MarshalText() ([]byte, error) {
	if !id.Direction.Valid() {
		return nil, fmt.Errorf("clue id: unknown direction %q", id.Direction)
	}
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ClueID) UnmarshalText(b []byte) error {
	parsed, err := ParseClueID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseClueID parses the "12A" / "7D" form.
func ParseClueID(s string) (ClueID, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return ClueID{}, fmt.Errorf("clue id %q: too short", s)
	}
	var dir Direction
	switch s[len(s)-1] {
	case 'A', 'a':
		dir = Across
	case 'D', 'd':
		dir = Down
	default:
		return ClueID{}, fmt.Errorf("clue id %q: missing A/D suffix", s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 0 {
		return ClueID{}, fmt.Errorf("clue id %q: bad number", s)
	}
	return ClueID{Direction: dir, Number: n}, nil
}

// Clues groups a puzzle's clues by direction, each in display order.
type Clues struct {
	Across []Clue `json:"across" yaml:"across"`
	Down   []Clue `json:"down" yaml:"down"`
}

// All returns across clues followed by down clues.
func (c Clues) All() []Clue {
	all := make([]Clue, 0, len(c.Across)+len(c.Down))
	all = append(all, c.Across...)
	return append(all, c.Down...)
}

// Puzzle is the immutable definition of one daily crossword as supplied by
// the content source. Difficulty is carried for selection only.
type Puzzle struct {
	ID         string     `json:"id" yaml:"id"`
	Date       string     `json:"date" yaml:"date"`
	Title      string     `json:"title,omitempty" yaml:"title"`
	Difficulty string     `json:"difficulty,omitempty" yaml:"difficulty"`
	Size       int        `json:"size" yaml:"size"`
	Grid       [][]string `json:"grid" yaml:"grid"`
	Solution   [][]string `json:"solution,omitempty" yaml:"solution,omitempty"`
	Clues      Clues      `json:"clues" yaml:"clues"`
}

// Public returns a copy of p with answers and the solution removed, safe to
// hand to a client before the solution is released. Letter placeholders in
// the grid are blanked so they cannot leak the answer either.
func (p *Puzzle) Public() *Puzzle {
	cp := &Puzzle{
		ID:         p.ID,
		Date:       p.Date,
		Title:      p.Title,
		Difficulty: p.Difficulty,
		Size:       p.Size,
		Grid:       make([][]string, len(p.Grid)),
	}
	for r, row := range p.Grid {
		cp.Grid[r] = make([]string, len(row))
		for c, v := range row {
			if IsBlockMarker(v) {
				cp.Grid[r][c] = BlockHash
			}
		}
	}
	strip := func(in []Clue) []Clue {
		out := make([]Clue, len(in))
		for i, c := range in {
			c.Answer = ""
			out[i] = c
		}
		return out
	}
	cp.Clues = Clues{Across: strip(p.Clues.Across), Down: strip(p.Clues.Down)}
	return cp
}
