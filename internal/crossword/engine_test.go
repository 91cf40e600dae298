package crossword

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, p *Puzzle, opts ...Option) *Engine {
	t.Helper()
	e, err := New(p, opts...)
	require.NoError(t, err)
	return e
}

func typeAll(t *testing.T, e *Engine, letters ...string) Change {
	t.Helper()
	var last Change
	for _, l := range letters {
		ch, err := e.Type(l)
		require.NoError(t, err)
		last = ch
	}
	return last
}

func requireCursor(t *testing.T, e *Engine, row, col int, dir Direction) {
	t.Helper()
	cur, ok := e.Cursor()
	require.True(t, ok, "cursor unset")
	assert.Equal(t, Cursor{Row: row, Col: col, Direction: dir}, cur)
}

func TestTypeCatScenario(t *testing.T) {
	e := newEngine(t, catPuzzle())
	require.NoError(t, e.Click(0, 0))
	requireCursor(t, e, 0, 0, Across)

	ch := typeAll(t, e, "C")
	assert.Empty(t, ch.Completed)
	requireCursor(t, e, 0, 1, Across)

	typeAll(t, e, "A")
	requireCursor(t, e, 0, 2, Across)

	ch = typeAll(t, e, "t")
	requireCursor(t, e, 0, 2, Across)

	cat := ClueID{Direction: Across, Number: 1}
	assert.Equal(t, []ClueID{cat}, ch.Completed)
	assert.True(t, ch.Solved)
	assert.True(t, e.Completion().Has(cat))
	assert.True(t, e.Completion().PuzzleComplete)

	want := []string{"C", "A", "T", "", ""}
	if diff := cmp.Diff(want, e.Overlay()[0]); diff != "" {
		t.Fatalf("row 0 mismatch (-want +got):\n%s", diff)
	}
}

func TestTypeStopsAtRunEnd(t *testing.T) {
	// Two across clues share row 0; typing the last letter of the first
	// must not jump into the second.
	p := catPuzzle()
	p.Grid[0][3] = ""
	p.Clues.Across = []Clue{
		{Number: 1, StartRow: 0, StartCol: 0, Length: 2, Answer: "CA"},
		{Number: 2, StartRow: 0, StartCol: 2, Length: 2, Answer: "TS"},
	}
	e := newEngine(t, p)
	require.NoError(t, e.Click(0, 0))
	typeAll(t, e, "C", "A")
	requireCursor(t, e, 0, 1, Across)
}

func TestTypeAdvanceModes(t *testing.T) {
	fill := func(t *testing.T, e *Engine) {
		require.NoError(t, e.Click(0, 1))
		typeAll(t, e, "A", "T")
		require.NoError(t, e.Click(0, 0))
	}

	t.Run("adjacent", func(t *testing.T) {
		e := newEngine(t, testPuzzle(t))
		fill(t, e)
		typeAll(t, e, "C")
		requireCursor(t, e, 0, 1, Across)
	})

	t.Run("skip filled", func(t *testing.T) {
		e := newEngine(t, testPuzzle(t), WithAdvanceMode(AdvanceSkipFilled))
		fill(t, e)
		typeAll(t, e, "C")
		requireCursor(t, e, 0, 3, Across)
	})

	t.Run("nothing unfilled ahead", func(t *testing.T) {
		for _, mode := range []AdvanceMode{AdvanceAdjacent, AdvanceSkipFilled} {
			e := newEngine(t, testPuzzle(t), WithAdvanceMode(mode))
			fill(t, e)
			require.NoError(t, e.Click(0, 3))
			typeAll(t, e, "S")
			require.NoError(t, e.Click(0, 0))
			typeAll(t, e, "C")
			requireCursor(t, e, 0, 0, Across)
		}
	})
}

func TestTypeRejectsBadInput(t *testing.T) {
	e := newEngine(t, testPuzzle(t))

	_, err := e.Type("A")
	require.ErrorIs(t, err, ErrNoCursor)

	require.NoError(t, e.Click(0, 0))
	for _, bad := range []string{"", "AB", "5", "!"} {
		_, err := e.Type(bad)
		assert.ErrorIs(t, err, ErrInvalidLetter, bad)
	}
	assert.Equal(t, "", e.Overlay()[0][0])
}

func TestBackspace(t *testing.T) {
	e := newEngine(t, testPuzzle(t))
	require.NoError(t, e.Click(0, 0))
	typeAll(t, e, "C", "A")
	requireCursor(t, e, 0, 2, Across)

	ch, err := e.Backspace()
	require.NoError(t, err)
	assert.Equal(t, []CellChange{{Row: 0, Col: 2}}, ch.Cells)
	requireCursor(t, e, 0, 2, Across)
	assert.Equal(t, "A", e.Overlay()[0][1])
}

func TestKeyboardPaths(t *testing.T) {
	e := newEngine(t, testPuzzle(t))
	require.NoError(t, e.Click(0, 2))

	_, err := e.KeyboardType("c")
	require.NoError(t, err)
	requireCursor(t, e, 0, 0, Across)
	_, err = e.KeyboardType("a")
	require.NoError(t, err)
	requireCursor(t, e, 0, 1, Across)
	assert.Equal(t, []string{"C", "A", "", "", ""}, e.Overlay()[0])

	ch, err := e.KeyboardBackspace()
	require.NoError(t, err)
	assert.Equal(t, []CellChange{{Row: 0, Col: 1}}, ch.Cells)
	requireCursor(t, e, 0, 1, Across)

	_, err = e.KeyboardBackspace()
	require.NoError(t, err)
	requireCursor(t, e, 0, 0, Across)

	ch, err = e.KeyboardBackspace()
	require.NoError(t, err)
	assert.Empty(t, ch.Cells)
}

func TestArrowNavigation(t *testing.T) {
	tests := []struct {
		name    string
		from    [2]int
		arrow   Arrow
		want    [2]int
		wantDir Direction
	}{
		{"right within row", [2]int{0, 0}, ArrowRight, [2]int{0, 1}, Across},
		{"right wraps to next row over block", [2]int{0, 3}, ArrowRight, [2]int{1, 0}, Across},
		{"right skips block", [2]int{1, 0}, ArrowRight, [2]int{1, 2}, Across},
		{"left wraps grid start to end", [2]int{0, 0}, ArrowLeft, [2]int{4, 4}, Across},
		{"down within column", [2]int{0, 0}, ArrowDown, [2]int{1, 0}, Down},
		{"down skips block", [2]int{2, 0}, ArrowDown, [2]int{4, 0}, Down},
		{"down wraps to next column", [2]int{4, 0}, ArrowDown, [2]int{0, 1}, Down},
		{"up wraps grid start to end", [2]int{0, 0}, ArrowUp, [2]int{4, 4}, Down},
		{"up wraps to previous column", [2]int{0, 1}, ArrowUp, [2]int{4, 0}, Down},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t, testPuzzle(t))
			require.NoError(t, e.Click(tt.from[0], tt.from[1]))
			require.NoError(t, e.Arrow(tt.arrow))
			requireCursor(t, e, tt.want[0], tt.want[1], tt.wantDir)
		})
	}
}

func TestArrowWithoutCursorSelectsFirstCell(t *testing.T) {
	p, err := FromRows("d", []string{"#AB", "CDE", "FG#"})
	require.NoError(t, err)
	e := newEngine(t, p)
	require.NoError(t, e.Arrow(ArrowDown))
	requireCursor(t, e, 0, 1, Down)
	require.Error(t, e.Arrow(Arrow("sideways")))
}

func TestArrowSinglePlayableCellStays(t *testing.T) {
	p := &Puzzle{
		Size: 2,
		Grid: [][]string{{"A", "#"}, {"#", "#"}},
		Clues: Clues{Across: []Clue{
			{Number: 1, StartRow: 0, StartCol: 0, Length: 1, Answer: "A"},
		}},
	}
	e := newEngine(t, p)
	require.NoError(t, e.Click(0, 0))
	for _, a := range []Arrow{ArrowLeft, ArrowRight, ArrowUp, ArrowDown} {
		require.NoError(t, e.Arrow(a))
		cur, _ := e.Cursor()
		assert.Equal(t, [2]int{0, 0}, [2]int{cur.Row, cur.Col})
	}
}

func TestArrowNeverLandsOnBlock(t *testing.T) {
	rows := []string{
		"AB#CDEF",
		"G#HIJ#K",
		"LMN#OPQ",
		"##RST##",
		"UVW#XYZ",
		"A#BCD#E",
		"FGH#IJK",
	}
	p, err := FromRows("d", rows)
	require.NoError(t, err)
	e := newEngine(t, p)
	require.NoError(t, e.Click(0, 0))

	arrows := []Arrow{ArrowLeft, ArrowRight, ArrowUp, ArrowDown}
	rng := rand.New(rand.NewPCG(1, 2))
	for i := range 2000 {
		require.NoError(t, e.Arrow(arrows[rng.IntN(len(arrows))]))
		cur, ok := e.Cursor()
		require.True(t, ok)
		cell, err := e.Grid().CellAt(cur.Row, cur.Col)
		require.NoError(t, err, "step %d", i)
		require.Equal(t, Letter, cell, "step %d landed on block at (%d,%d)", i, cur.Row, cur.Col)
	}
}

func TestSpaceTogglesDirection(t *testing.T) {
	e := newEngine(t, testPuzzle(t))
	require.ErrorIs(t, e.Space(), ErrNoCursor)

	require.NoError(t, e.Click(2, 2))
	require.NoError(t, e.Space())
	requireCursor(t, e, 2, 2, Down)
	assert.Equal(t, "THTEG", e.CurrentClue().Answer)
	require.NoError(t, e.Space())
	requireCursor(t, e, 2, 2, Across)
	assert.Equal(t, "RAT", e.CurrentClue().Answer)
}

func TestClick(t *testing.T) {
	e := newEngine(t, testPuzzle(t))

	require.ErrorIs(t, e.Click(0, 4), ErrBlockCell)
	require.ErrorIs(t, e.Click(7, 0), ErrOutOfBounds)
	_, ok := e.Cursor()
	assert.False(t, ok, "failed clicks leave the cursor unset")

	// (1,0) only has a down run.
	require.NoError(t, e.Click(1, 0))
	requireCursor(t, e, 1, 0, Down)
	assert.Equal(t, "CAR", e.CurrentClue().Answer)

	// Keeps down where a down clue exists.
	require.NoError(t, e.Click(2, 2))
	requireCursor(t, e, 2, 2, Down)

	// Clicking the selected cell toggles.
	require.NoError(t, e.Click(2, 2))
	requireCursor(t, e, 2, 2, Across)

	// Toggle is refused when the other direction has no clue.
	require.NoError(t, e.Click(1, 0))
	require.NoError(t, e.Click(1, 0))
	requireCursor(t, e, 1, 0, Down)
}

func TestSkipAndPrevClue(t *testing.T) {
	e := newEngine(t, testPuzzle(t))

	e.SkipClue()
	requireCursor(t, e, 0, 0, Across)
	assert.Equal(t, "CATS", e.CurrentClue().Answer)

	require.NoError(t, e.Click(4, 0)) // 9A, last across
	e.SkipClue()
	requireCursor(t, e, 0, 0, Down)
	assert.Equal(t, "CAR", e.CurrentClue().Answer)

	require.NoError(t, e.Click(2, 1)) // 7D, last overall
	requireCursor(t, e, 2, 1, Down)
	e.PrevClue()
	e.SkipClue()
	e.SkipClue()
	requireCursor(t, e, 0, 0, Across)

	e.PrevClue()
	requireCursor(t, e, 2, 1, Down)
	assert.Equal(t, "ANO", e.CurrentClue().Answer)
}

func TestCompletionIsCaseInsensitive(t *testing.T) {
	e := newEngine(t, testPuzzle(t))
	e.SkipClue()
	ch := typeAll(t, e, "c", "a", "t", "s")
	assert.Equal(t, []ClueID{{Direction: Across, Number: 1}}, ch.Completed)
	assert.Equal(t, []string{"C", "A", "T", "S", ""}, e.Overlay()[0])
}

func TestPartialAndWrongAnswersAreIncomplete(t *testing.T) {
	e := newEngine(t, testPuzzle(t))
	e.SkipClue()
	typeAll(t, e, "C", "A", "T")
	assert.Empty(t, e.Completion().Completed)

	typeAll(t, e, "X")
	assert.Empty(t, e.Completion().Completed)

	_, err := e.Backspace()
	require.NoError(t, err)
	ch := typeAll(t, e, "S")
	assert.Len(t, ch.Completed, 1)
}

func TestWholePuzzleCompletion(t *testing.T) {
	now := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
	e := newEngine(t, testPuzzle(t), WithClock(func() time.Time { return now }))

	var solved int
	for r, row := range testRows {
		for c, ch := range row {
			if ch == '#' {
				continue
			}
			require.NoError(t, e.Click(r, c))
			change, err := e.Type(string(ch))
			require.NoError(t, err)
			if change.Solved {
				solved++
			}
		}
	}
	state := e.Completion()
	assert.Equal(t, 1, solved)
	assert.True(t, state.PuzzleComplete)
	assert.Equal(t, 10, state.Total)
	assert.Len(t, state.Completed, 10)
	assert.Equal(t, 100, state.Percent())
	at, ok := e.CompletedAt()
	require.True(t, ok)
	assert.Equal(t, now, at)

	// Breaking one letter un-completes the puzzle.
	require.NoError(t, e.Click(4, 4))
	_, err := e.Backspace()
	require.NoError(t, err)
	assert.False(t, e.Completion().PuzzleComplete)
	_, ok = e.CompletedAt()
	assert.False(t, ok)
}

func TestThemedAnswers(t *testing.T) {
	e := newEngine(t, testPuzzle(t), WithThemes("ca ts", "DOG"))
	e.SkipClue()
	ch := typeAll(t, e, "C", "A", "T", "S")
	assert.Equal(t, []ClueID{{Direction: Across, Number: 1}}, ch.Themed)

	require.NoError(t, e.Click(2, 0))
	ch = typeAll(t, e, "R", "A", "T")
	assert.Len(t, ch.Completed, 1)
	assert.Empty(t, ch.Themed)
}

func TestHints(t *testing.T) {
	e := newEngine(t, testPuzzle(t))
	require.NoError(t, e.Click(1, 2))
	_, err := e.Hint()
	require.ErrorIs(t, err, ErrHintsDisabled)

	e = newEngine(t, testPuzzle(t), WithHints(true))
	_, err = e.Hint()
	require.ErrorIs(t, err, ErrNoCursor)

	require.NoError(t, e.Click(1, 2)) // 4A HOP
	typeAll(t, e, "H")
	ch, err := e.Hint()
	require.NoError(t, err)
	assert.Equal(t, []CellChange{{Row: 1, Col: 3, Value: "O"}}, ch.Cells)

	_, err = e.Hint()
	require.ErrorIs(t, err, ErrHintUsed)
	assert.Equal(t, []ClueID{{Direction: Across, Number: 4}}, e.HintsUsed())

	require.NoError(t, e.Click(0, 0)) // 1A CATS
	typeAll(t, e, "C", "A", "T", "S")
	_, err = e.Hint()
	require.ErrorIs(t, err, ErrNoHint)
}

func TestClearClue(t *testing.T) {
	e := newEngine(t, testPuzzle(t))
	require.NoError(t, e.Click(0, 0))
	typeAll(t, e, "C", "A", "T", "S")
	require.Len(t, e.Completion().Completed, 1)

	ch, err := e.ClearClue()
	require.NoError(t, err)
	assert.Len(t, ch.Cells, 4)
	assert.Empty(t, e.Completion().Completed)
	assert.Equal(t, []string{"", "", "", "", ""}, e.Overlay()[0])
}

func TestResetClearsState(t *testing.T) {
	e := newEngine(t, testPuzzle(t), WithHints(true))
	gen := e.Generation()
	require.NoError(t, e.Click(0, 0))
	typeAll(t, e, "C", "A", "T", "S")
	_, err := e.Hint()
	require.ErrorIs(t, err, ErrNoHint)

	ch := e.Reset()
	assert.Len(t, ch.Cells, 4)
	assert.Greater(t, e.Generation(), gen)
	assert.Empty(t, e.Completion().Completed)
	for _, row := range e.Overlay() {
		for _, v := range row {
			assert.Empty(t, v)
		}
	}
}

func TestLoadInvalidKeepsState(t *testing.T) {
	e := newEngine(t, testPuzzle(t))
	require.NoError(t, e.Click(0, 0))
	typeAll(t, e, "C")
	gen := e.Generation()

	bad := catPuzzle()
	bad.Size = 3
	require.ErrorIs(t, e.Load(bad), ErrInvalidPuzzle)

	assert.Equal(t, gen, e.Generation())
	assert.Equal(t, "C", e.Overlay()[0][0])
	requireCursor(t, e, 0, 1, Across)

	require.NoError(t, e.Load(catPuzzle()))
	_, ok := e.Cursor()
	assert.False(t, ok)
	assert.Greater(t, e.Generation(), gen)
}

func TestRestore(t *testing.T) {
	e := newEngine(t, catPuzzle())
	saved := [][]string{
		{"c", "a", "t", "X", "zz"},
		{"", "", "", "", ""},
		{"", "", "", "", ""},
		{"", "", "", "", ""},
		{"", "", "", "", ""},
	}
	at := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	require.NoError(t, e.Restore(saved, nil, &at))

	assert.Equal(t, []string{"C", "A", "T", "", ""}, e.Overlay()[0])
	assert.True(t, e.Completion().PuzzleComplete)
	got, ok := e.CompletedAt()
	require.True(t, ok)
	assert.Equal(t, at, got)

	started, ok := e.StartedAt()
	require.True(t, ok)
	assert.Equal(t, at, started, "unknown start of a finished puzzle")

	require.ErrorIs(t, e.Restore(saved[:2], nil, nil), ErrOutOfBounds)
}

func TestSolutionDisclosure(t *testing.T) {
	e := newEngine(t, testPuzzle(t))

	_, err := e.Solution()
	require.ErrorIs(t, err, ErrSolutionNotAvailable)
	_, err = e.SolutionAt(0, 0)
	require.ErrorIs(t, err, ErrSolutionNotAvailable)

	e.SetSolutionAvailable(true)
	sol, err := e.Solution()
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A", "T", "S", "#"}, sol[0])
	assert.Equal(t, []string{"A", "#", "H", "O", "P"}, sol[1])

	letter, err := e.SolutionAt(3, 3)
	require.NoError(t, err)
	assert.Equal(t, "S", letter)
	_, err = e.SolutionAt(5, 5)
	require.ErrorIs(t, err, ErrOutOfBounds)
}

func TestSnapshot(t *testing.T) {
	e := newEngine(t, catPuzzle())
	require.NoError(t, e.Click(0, 0))
	typeAll(t, e, "C", "A", "T")

	snap := e.Snapshot()
	assert.Equal(t, e.Generation(), snap.Generation)
	assert.Equal(t, []ClueID{{Direction: Across, Number: 1}}, snap.Completed)
	require.NotNil(t, snap.CompletedAt)

	snap.Answers[0][0] = "Z"
	assert.Equal(t, "C", e.Overlay()[0][0], "snapshot is a copy")
}

func TestSolveTimer(t *testing.T) {
	t0 := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	now := t0
	e := newEngine(t, testPuzzle(t), WithClock(func() time.Time { return now }))

	_, ok := e.StartedAt()
	assert.False(t, ok)
	assert.Zero(t, e.Elapsed())

	require.NoError(t, e.Click(0, 0))
	_, ok = e.StartedAt()
	assert.False(t, ok, "moving the cursor does not start the timer")

	now = t0.Add(time.Minute)
	typeAll(t, e, "C")
	started, ok := e.StartedAt()
	require.True(t, ok)
	assert.Equal(t, t0.Add(time.Minute), started)

	now = t0.Add(3 * time.Minute)
	assert.Equal(t, 2*time.Minute, e.Elapsed())
	_, err := e.Backspace()
	require.NoError(t, err)
	started, _ = e.StartedAt()
	assert.Equal(t, t0.Add(time.Minute), started, "clearing cells keeps the timer running")

	snap := e.Snapshot()
	require.NotNil(t, snap.StartedAt)
	assert.Equal(t, started, *snap.StartedAt)

	e.Reset()
	_, ok = e.StartedAt()
	assert.False(t, ok)
	assert.Zero(t, e.Elapsed())
	assert.Nil(t, e.Snapshot().StartedAt)
}

func TestRestoreSolveTimer(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	e := newEngine(t, catPuzzle(), WithClock(func() time.Time { return now }))
	saved := [][]string{
		{"C", "A", "T", "", ""},
		{"", "", "", "", ""},
		{"", "", "", "", ""},
		{"", "", "", "", ""},
		{"", "", "", "", ""},
	}

	start := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	done := start.Add(90 * time.Second)
	require.NoError(t, e.Restore(saved, &start, &done))
	assert.Equal(t, 90*time.Second, e.Elapsed(), "finished puzzles keep their solve time")

	partial := [][]string{
		{"C", "", "", "", ""},
		{"", "", "", "", ""},
		{"", "", "", "", ""},
		{"", "", "", "", ""},
		{"", "", "", "", ""},
	}
	require.NoError(t, e.Restore(partial, &start, nil))
	assert.Equal(t, now.Sub(start), e.Elapsed())

	require.NoError(t, e.Restore(partial, nil, nil))
	started, ok := e.StartedAt()
	require.True(t, ok)
	assert.Equal(t, now, started)

	empty := make([][]string, 5)
	for r := range empty {
		empty[r] = make([]string, 5)
	}
	require.NoError(t, e.Restore(empty, &start, nil))
	_, ok = e.StartedAt()
	assert.False(t, ok, "an empty grid has no running timer")
}
