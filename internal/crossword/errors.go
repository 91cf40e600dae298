package crossword

import "errors"

var (
	// ErrInvalidPuzzle reports a malformed puzzle definition. The puzzle
	// cannot be mounted.
	ErrInvalidPuzzle = errors.New("invalid puzzle")

	// ErrOutOfBounds reports coordinates outside the grid.
	ErrOutOfBounds = errors.New("position out of bounds")

	// ErrBlockCell reports an attempt to select or write a block cell.
	ErrBlockCell = errors.New("block cell")

	// ErrNoCursor reports an input event that needs a selected cell before
	// one has been selected.
	ErrNoCursor = errors.New("no cell selected")

	// ErrInvalidLetter reports input that is not a single letter.
	ErrInvalidLetter = errors.New("input must be a single letter")

	// ErrSolutionNotAvailable is a policy rejection: the solution has not
	// been released yet.
	ErrSolutionNotAvailable = errors.New("solution not available")

	// ErrHintsDisabled reports a hint request on an engine built without hints.
	ErrHintsDisabled = errors.New("hints are disabled")

	// ErrHintUsed reports a second hint request for the same clue.
	ErrHintUsed = errors.New("hint already used for this clue")

	// ErrNoHint reports a hint request on a clue with no empty cell.
	ErrNoHint = errors.New("clue is already filled")
)
