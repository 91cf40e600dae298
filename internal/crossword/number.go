package crossword

import (
	"fmt"
	"unicode/utf8"
)

// FromRows builds a puzzle from a filled grid written as one string per
// row. '#', '.' and '█' are blocks; every other rune is an answer letter.
// Clues are numbered the conventional way: a cell gets the next number
// when it starts an across or a down run of two or more cells. Clue texts
// are left empty for the caller to fill in.
func FromRows(date string, rows []string) (*Puzzle, error) {
	n := len(rows)
	if n == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrInvalidPuzzle)
	}
	cells := make([][]string, n)
	for r, row := range rows {
		if got := utf8.RuneCountInString(row); got != n {
			return nil, fmt.Errorf("%w: row %d has %d cells, want %d", ErrInvalidPuzzle, r, got, n)
		}
		cells[r] = make([]string, 0, n)
		for _, ch := range row {
			switch ch {
			case '#', '.', '█':
				cells[r] = append(cells[r], BlockHash)
			default:
				cells[r] = append(cells[r], string(ch))
			}
		}
	}

	open := func(r, c int) bool {
		return r >= 0 && r < n && c >= 0 && c < n && cells[r][c] != BlockHash
	}
	runLen := func(r, c, dr, dc int) int {
		l := 0
		for open(r+dr*l, c+dc*l) {
			l++
		}
		return l
	}
	answer := func(r, c, dr, dc, l int) string {
		var b []byte
		for i := range l {
			b = append(b, cells[r+dr*i][c+dc*i]...)
		}
		return string(b)
	}

	var clues Clues
	num := 0
	for r := range n {
		for c := range n {
			if !open(r, c) {
				continue
			}
			startsAcross := !open(r, c-1) && runLen(r, c, 0, 1) > 1
			startsDown := !open(r-1, c) && runLen(r, c, 1, 0) > 1
			if !startsAcross && !startsDown {
				continue
			}
			num++
			if startsAcross {
				l := runLen(r, c, 0, 1)
				clues.Across = append(clues.Across, Clue{
					Number: num, Direction: Across, StartRow: r, StartCol: c,
					Length: l, Answer: answer(r, c, 0, 1, l),
				})
			}
			if startsDown {
				l := runLen(r, c, 1, 0)
				clues.Down = append(clues.Down, Clue{
					Number: num, Direction: Down, StartRow: r, StartCol: c,
					Length: l, Answer: answer(r, c, 1, 0, l),
				})
			}
		}
	}

	p := &Puzzle{Date: date, Size: n, Grid: cells, Clues: clues}
	if _, err := NewGrid(p); err != nil {
		return nil, err
	}
	return p, nil
}
