package crossword

// Completion is the derived solved-state of an overlay.
type Completion struct {
	Completed      []ClueID `json:"completed"`
	Total          int      `json:"total"`
	PuzzleComplete bool     `json:"puzzleComplete"`
}

// Has reports whether id is in the completion set.
func (c Completion) Has(id ClueID) bool {
	for _, done := range c.Completed {
		if done == id {
			return true
		}
	}
	return false
}

// Percent returns the share of completed clues, rounded to the nearest
// whole percent.
func (c Completion) Percent() int {
	if c.Total == 0 {
		return 0
	}
	return (len(c.Completed)*100 + c.Total/2) / c.Total
}

// Detector recomputes clue completion after overlay mutations and remembers
// the previous result so it can report which clues became complete.
type Detector struct {
	grid *Grid
	done map[ClueID]bool
}

// NewDetector returns a detector for g with an empty completion set.
func NewDetector(g *Grid) *Detector {
	return &Detector{grid: g, done: make(map[ClueID]bool)}
}

// Recompute compares every clue run, across then down, against its answer.
// A clue is complete only when every cell matches; an empty cell never
// matches. The second result lists clues that were not complete on the
// previous call.
func (d *Detector) Recompute(overlay [][]string) (Completion, []ClueID) {
	state := Completion{Total: d.grid.TotalClues()}
	var newly []ClueID
	next := make(map[ClueID]bool, len(d.done))
	for _, cl := range d.grid.clues {
		if !d.runMatches(cl, overlay) {
			continue
		}
		id := cl.ID()
		next[id] = true
		state.Completed = append(state.Completed, id)
		if !d.done[id] {
			newly = append(newly, id)
		}
	}
	d.done = next
	state.PuzzleComplete = len(state.Completed) == state.Total
	return state, newly
}

// Clear forgets the previous completion set.
func (d *Detector) Clear() {
	d.done = make(map[ClueID]bool)
}

func (d *Detector) runMatches(cl Clue, overlay [][]string) bool {
	for i := range cl.Length {
		r, c := cl.Cell(i)
		if r >= len(overlay) || c >= len(overlay[r]) {
			return false
		}
		v := overlay[r][c]
		if v == "" || normalize(v) != d.grid.expected[r][c] {
			return false
		}
	}
	return true
}
