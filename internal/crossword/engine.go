package crossword

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Cursor is the selected cell and the typing direction.
type Cursor struct {
	Row       int       `json:"row"`
	Col       int       `json:"col"`
	Direction Direction `json:"direction"`
}

// CellChange is one overlay write.
type CellChange struct {
	Row   int    `json:"row"`
	Col   int    `json:"col"`
	Value string `json:"value"`
}

// Change describes the effect of one mutating input event.
type Change struct {
	Cells     []CellChange `json:"cells,omitempty"`
	Completed []ClueID     `json:"completed,omitempty"` // newly completed clues
	Themed    []ClueID     `json:"themed,omitempty"`    // subset of Completed with themed answers
	Solved    bool         `json:"solved,omitempty"`    // this event completed the puzzle
}

// Snapshot is a copy of the persisted part of the engine state.
type Snapshot struct {
	Answers     [][]string
	Completed   []ClueID
	StartedAt   *time.Time
	CompletedAt *time.Time
	Generation  uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithAdvanceMode sets how Type moves the cursor. The default is
// AdvanceAdjacent.
func WithAdvanceMode(m AdvanceMode) Option {
	return func(e *Engine) { e.mode = m }
}

// WithHints enables Hint.
func WithHints(enabled bool) Option {
	return func(e *Engine) { e.hintsEnabled = enabled }
}

// WithThemes marks answers whose completion is reported in Change.Themed.
// Spaces are ignored and matching is case-insensitive.
func WithThemes(answers ...string) Option {
	return func(e *Engine) {
		for _, a := range answers {
			e.themes[themeKey(a)] = true
		}
	}
}

// WithClock overrides the clock used for completion timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func themeKey(s string) string {
	return normalize(strings.ReplaceAll(s, " ", ""))
}

// Engine owns one mounted puzzle, its overlay, cursor and completion state.
type Engine struct {
	puzzle     *Puzzle
	grid       *Grid
	detector   *Detector
	overlay    [][]string
	cursor     *Cursor
	completion Completion

	startedAt         time.Time // first letter entered
	completedAt       time.Time
	hints             map[ClueID]bool
	generation        uint64
	solutionAvailable bool

	mode         AdvanceMode
	hintsEnabled bool
	themes       map[string]bool
	now          func() time.Time
}

// New mounts p in a fresh engine.
func New(p *Puzzle, opts ...Option) (*Engine, error) {
	e := &Engine{
		themes: make(map[string]bool),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.Load(p); err != nil {
		return nil, err
	}
	return e, nil
}

// Load validates and mounts p, replacing any previous puzzle. The overlay
// starts empty and the cursor unset. On error the engine is unchanged.
func (e *Engine) Load(p *Puzzle) error {
	g, err := NewGrid(p)
	if err != nil {
		return err
	}
	e.puzzle = p
	e.grid = g
	e.detector = NewDetector(g)
	e.overlay = g.emptyOverlay()
	e.cursor = nil
	e.completion = Completion{Total: g.TotalClues()}
	e.startedAt = time.Time{}
	e.completedAt = time.Time{}
	e.hints = make(map[ClueID]bool)
	e.solutionAvailable = false
	e.generation++
	return nil
}

// Restore replaces the overlay with saved answers. Block cells and values
// that are not a single letter are ignored. Completion is recomputed from
// the overlay; completedAt is kept only if the restored overlay is complete.
// startedAt is kept when any letter was restored; a missing one restarts
// the timer now, or at completedAt for a finished puzzle.
func (e *Engine) Restore(answers [][]string, startedAt, completedAt *time.Time) error {
	n := e.grid.size
	if len(answers) != n {
		return fmt.Errorf("restore: %d rows for %dx%d grid: %w", len(answers), n, n, ErrOutOfBounds)
	}
	ov := e.grid.emptyOverlay()
	for r := range n {
		if len(answers[r]) != n {
			return fmt.Errorf("restore: row %d has %d cells: %w", r, len(answers[r]), ErrOutOfBounds)
		}
		for c := range n {
			if e.grid.isBlock(r, c) {
				continue
			}
			if v, err := normalizeLetter(answers[r][c]); err == nil {
				ov[r][c] = v
			}
		}
	}
	e.overlay = ov
	e.detector.Clear()
	e.completion, _ = e.detector.Recompute(ov)
	e.completedAt = time.Time{}
	if e.completion.PuzzleComplete {
		if completedAt != nil {
			e.completedAt = *completedAt
		} else {
			e.completedAt = e.now()
		}
	}
	e.startedAt = time.Time{}
	switch {
	case !hasLetters(ov):
	case startedAt != nil:
		e.startedAt = *startedAt
	case !e.completedAt.IsZero():
		e.startedAt = e.completedAt
	default:
		e.startedAt = e.now()
	}
	if !e.completedAt.IsZero() && e.completedAt.Before(e.startedAt) {
		e.startedAt = e.completedAt
	}
	return nil
}

func hasLetters(ov [][]string) bool {
	for _, row := range ov {
		for _, v := range row {
			if v != "" {
				return true
			}
		}
	}
	return false
}

func normalizeLetter(s string) (string, error) {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) != 1 {
		return "", ErrInvalidLetter
	}
	r, _ := utf8.DecodeRuneInString(s)
	if !unicode.IsLetter(r) {
		return "", ErrInvalidLetter
	}
	return normalize(s), nil
}

// Grid returns the mounted grid geometry.
func (e *Engine) Grid() *Grid { return e.grid }

// Puzzle returns the mounted puzzle with answers and solution removed.
func (e *Engine) Puzzle() *Puzzle { return e.puzzle.Public() }

// Date returns the mounted puzzle's date key.
func (e *Engine) Date() string { return e.puzzle.Date }

// Generation increases on every Load and Reset. Saves captured under an
// older generation are stale.
func (e *Engine) Generation() uint64 { return e.generation }

// Cursor returns the cursor and whether one is set.
func (e *Engine) Cursor() (Cursor, bool) {
	if e.cursor == nil {
		return Cursor{}, false
	}
	return *e.cursor, true
}

// CurrentClue returns the clue under the cursor in the cursor's direction.
func (e *Engine) CurrentClue() *Clue {
	idx := e.currentIndex()
	if idx < 0 {
		return nil
	}
	cl := e.grid.clues[idx]
	return &cl
}

func (e *Engine) currentIndex() int {
	if e.cursor == nil {
		return -1
	}
	return e.grid.clueIndex(e.cursor.Row, e.cursor.Col, e.cursor.Direction)
}

// Completion returns the current completion state.
func (e *Engine) Completion() Completion {
	c := e.completion
	c.Completed = append([]ClueID(nil), c.Completed...)
	return c
}

// StartedAt returns when the first letter was entered, if one has been.
func (e *Engine) StartedAt() (time.Time, bool) {
	return e.startedAt, !e.startedAt.IsZero()
}

// Elapsed is the solving time: from the first letter to completion, or to
// now while unfinished. It is zero before the first letter.
func (e *Engine) Elapsed() time.Duration {
	if e.startedAt.IsZero() {
		return 0
	}
	end := e.completedAt
	if end.IsZero() {
		end = e.now()
	}
	return max(end.Sub(e.startedAt), 0)
}

// CompletedAt returns when the puzzle was completed, if it is.
func (e *Engine) CompletedAt() (time.Time, bool) {
	return e.completedAt, !e.completedAt.IsZero()
}

// Overlay returns a copy of the user entries.
func (e *Engine) Overlay() [][]string {
	return copyOverlay(e.overlay)
}

func copyOverlay(ov [][]string) [][]string {
	cp := make([][]string, len(ov))
	for i, row := range ov {
		cp[i] = make([]string, len(row))
		copy(cp[i], row)
	}
	return cp
}

// Snapshot captures the state that is persisted between visits.
func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		Answers:    e.Overlay(),
		Completed:  append([]ClueID(nil), e.completion.Completed...),
		Generation: e.generation,
	}
	if !e.startedAt.IsZero() {
		t := e.startedAt
		s.StartedAt = &t
	}
	if !e.completedAt.IsZero() {
		t := e.completedAt
		s.CompletedAt = &t
	}
	return s
}

// mutate applies writes and recomputes completion.
func (e *Engine) mutate(cells []CellChange) Change {
	wasComplete := e.completion.PuzzleComplete
	for _, cc := range cells {
		e.overlay[cc.Row][cc.Col] = cc.Value
		if cc.Value != "" && e.startedAt.IsZero() {
			e.startedAt = e.now()
		}
	}
	state, newly := e.detector.Recompute(e.overlay)
	e.completion = state

	ch := Change{Cells: cells, Completed: newly}
	for _, id := range newly {
		cl, _ := e.grid.Clue(id)
		if e.themes[themeKey(cl.Answer)] {
			ch.Themed = append(ch.Themed, id)
		}
	}
	switch {
	case state.PuzzleComplete && !wasComplete:
		ch.Solved = true
		e.completedAt = e.now()
	case !state.PuzzleComplete:
		e.completedAt = time.Time{}
	}
	return ch
}

// Type writes letter at the cursor and advances within the current clue
// run according to the engine's AdvanceMode. The cursor never leaves the
// run; at the end of a word it stays put.
func (e *Engine) Type(letter string) (Change, error) {
	if e.cursor == nil {
		return Change{}, ErrNoCursor
	}
	v, err := normalizeLetter(letter)
	if err != nil {
		return Change{}, err
	}
	r, c := e.cursor.Row, e.cursor.Col
	ch := e.mutate([]CellChange{{Row: r, Col: c, Value: v}})
	if idx := e.currentIndex(); idx >= 0 {
		e.cursor.Row, e.cursor.Col = advanceInRun(e.grid.clues[idx], e.overlay, r, c, e.mode)
	}
	return ch, nil
}

// KeyboardType is the on-screen keyboard path: it writes letter into the
// first empty cell of the current clue and moves the cursor there.
func (e *Engine) KeyboardType(letter string) (Change, error) {
	if e.cursor == nil {
		return Change{}, ErrNoCursor
	}
	v, err := normalizeLetter(letter)
	if err != nil {
		return Change{}, err
	}
	idx := e.currentIndex()
	if idx < 0 {
		return Change{}, nil
	}
	cl := e.grid.clues[idx]
	i := firstEmpty(cl, e.overlay)
	if i < 0 {
		return Change{}, nil
	}
	r, c := cl.Cell(i)
	e.cursor.Row, e.cursor.Col = r, c
	return e.mutate([]CellChange{{Row: r, Col: c, Value: v}}), nil
}

// Backspace clears the cell under the cursor without moving.
func (e *Engine) Backspace() (Change, error) {
	if e.cursor == nil {
		return Change{}, ErrNoCursor
	}
	return e.mutate([]CellChange{{Row: e.cursor.Row, Col: e.cursor.Col}}), nil
}

// KeyboardBackspace moves the cursor to the last filled cell of the current
// clue and clears it.
func (e *Engine) KeyboardBackspace() (Change, error) {
	if e.cursor == nil {
		return Change{}, ErrNoCursor
	}
	idx := e.currentIndex()
	if idx < 0 {
		return Change{}, nil
	}
	cl := e.grid.clues[idx]
	i := lastFilled(cl, e.overlay)
	if i < 0 {
		return Change{}, nil
	}
	r, c := cl.Cell(i)
	e.cursor.Row, e.cursor.Col = r, c
	return e.mutate([]CellChange{{Row: r, Col: c}}), nil
}

// Arrow forces the arrow's axis as the direction and moves one playable
// cell along it, wrapping across rows (or columns) and from the end of the
// grid to the start. Without a cursor it selects the first playable cell.
func (e *Engine) Arrow(a Arrow) error {
	if !a.Valid() {
		return fmt.Errorf("unknown arrow %q", a)
	}
	dir, forward := a.axis()
	if e.cursor == nil {
		r, c, ok := e.grid.firstPlayable()
		if !ok {
			return nil
		}
		e.cursor = &Cursor{Row: r, Col: c, Direction: dir}
		return nil
	}
	e.cursor.Direction = dir
	if r, c, ok := e.grid.stepFrom(e.cursor.Row, e.cursor.Col, dir, forward); ok {
		e.cursor.Row, e.cursor.Col = r, c
	}
	return nil
}

// Space flips the direction in place.
func (e *Engine) Space() error {
	if e.cursor == nil {
		return ErrNoCursor
	}
	e.cursor.Direction = e.cursor.Direction.Toggle()
	return nil
}

// Click selects (row, col). Clicking the selected cell toggles direction;
// otherwise the direction is kept when a clue covers the cell in it and
// switched when only the other direction does.
func (e *Engine) Click(row, col int) error {
	cell, err := e.grid.CellAt(row, col)
	if err != nil {
		return err
	}
	if cell == Block {
		return fmt.Errorf("(%d,%d): %w", row, col, ErrBlockCell)
	}
	dir := Across
	if e.cursor != nil {
		dir = e.cursor.Direction
		if e.cursor.Row == row && e.cursor.Col == col {
			dir = dir.Toggle()
			if e.grid.clueIndex(row, col, dir) < 0 {
				dir = dir.Toggle()
			}
			e.cursor.Direction = dir
			return nil
		}
	}
	if e.grid.clueIndex(row, col, dir) < 0 && e.grid.clueIndex(row, col, dir.Toggle()) >= 0 {
		dir = dir.Toggle()
	}
	e.cursor = &Cursor{Row: row, Col: col, Direction: dir}
	return nil
}

// SkipClue moves to the start of the next clue in across-then-down order,
// wrapping after the last.
func (e *Engine) SkipClue() {
	e.jumpClue(1)
}

// PrevClue moves to the start of the previous clue, wrapping before the
// first.
func (e *Engine) PrevClue() {
	e.jumpClue(-1)
}

func (e *Engine) jumpClue(delta int) {
	n := len(e.grid.clues)
	idx := e.currentIndex()
	var next int
	switch {
	case idx < 0 && delta > 0:
		next = 0
	case idx < 0:
		next = n - 1
	default:
		next = (idx + delta + n) % n
	}
	cl := e.grid.clues[next]
	e.cursor = &Cursor{Row: cl.StartRow, Col: cl.StartCol, Direction: cl.Direction}
}

// Reset clears every entry, the completion set and used hints, and starts
// a new generation so pending saves of the old state are dropped.
func (e *Engine) Reset() Change {
	var cells []CellChange
	for r, row := range e.overlay {
		for c, v := range row {
			if v != "" {
				cells = append(cells, CellChange{Row: r, Col: c})
			}
		}
	}
	e.overlay = e.grid.emptyOverlay()
	e.detector.Clear()
	e.completion = Completion{Total: e.grid.TotalClues()}
	e.startedAt = time.Time{}
	e.completedAt = time.Time{}
	e.hints = make(map[ClueID]bool)
	e.generation++
	return Change{Cells: cells}
}

// Hint fills the first empty cell of the current clue with its answer
// letter. Each clue gets one hint.
func (e *Engine) Hint() (Change, error) {
	if !e.hintsEnabled {
		return Change{}, ErrHintsDisabled
	}
	if e.cursor == nil {
		return Change{}, ErrNoCursor
	}
	idx := e.currentIndex()
	if idx < 0 {
		return Change{}, ErrNoHint
	}
	cl := e.grid.clues[idx]
	if e.hints[cl.ID()] {
		return Change{}, ErrHintUsed
	}
	i := firstEmpty(cl, e.overlay)
	if i < 0 {
		return Change{}, ErrNoHint
	}
	r, c := cl.Cell(i)
	e.hints[cl.ID()] = true
	return e.mutate([]CellChange{{Row: r, Col: c, Value: e.grid.expected[r][c]}}), nil
}

// HintsUsed returns the clues that have received a hint.
func (e *Engine) HintsUsed() []ClueID {
	var out []ClueID
	for _, cl := range e.grid.clues {
		if e.hints[cl.ID()] {
			out = append(out, cl.ID())
		}
	}
	return out
}

// ClearClue empties every cell of the current clue.
func (e *Engine) ClearClue() (Change, error) {
	if e.cursor == nil {
		return Change{}, ErrNoCursor
	}
	idx := e.currentIndex()
	if idx < 0 {
		return Change{}, nil
	}
	cl := e.grid.clues[idx]
	var cells []CellChange
	for i := range cl.Length {
		r, c := cl.Cell(i)
		if e.overlay[r][c] != "" {
			cells = append(cells, CellChange{Row: r, Col: c})
		}
	}
	if len(cells) == 0 {
		return Change{}, nil
	}
	return e.mutate(cells), nil
}

// SetSolutionAvailable records whether the solution may be disclosed.
func (e *Engine) SetSolutionAvailable(ok bool) { e.solutionAvailable = ok }

// SolutionAvailable reports whether the solution may be disclosed.
func (e *Engine) SolutionAvailable() bool { return e.solutionAvailable }

// Solution returns the solution grid with block cells marked "#".
func (e *Engine) Solution() ([][]string, error) {
	if !e.solutionAvailable {
		return nil, ErrSolutionNotAvailable
	}
	return copyOverlay(e.grid.solution), nil
}

// SolutionAt returns the solution letter at (row, col).
func (e *Engine) SolutionAt(row, col int) (string, error) {
	if !e.solutionAvailable {
		return "", ErrSolutionNotAvailable
	}
	if _, err := e.grid.CellAt(row, col); err != nil {
		return "", err
	}
	return e.grid.solution[row][col], nil
}
