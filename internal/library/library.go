// Package library keeps the daily puzzles the server can mount, keyed by
// date and difficulty. Puzzles come from a directory of YAML or JSON files
// and from photo imports.
package library

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/bodul/xword/internal/crossword"
)

// DefaultDifficulty is used when a puzzle or request names none.
const DefaultDifficulty = "medium"

const dateLayout = "2006-01-02"

// Difficulties end up in file names, so they are restricted to a safe
// alphabet.
var difficultyPattern = regexp.MustCompile(`^[a-z0-9_-]{1,32}$`)

// Entry summarizes one puzzle for listings.
type Entry struct {
	ID         string `json:"id"`
	Date       string `json:"date"`
	Difficulty string `json:"difficulty"`
	Title      string `json:"title,omitempty"`
	Size       int    `json:"size"`
}

type key struct {
	date       string
	difficulty string
}

type slot struct {
	puzzle   *crossword.Puzzle
	fromFile bool
}

// Library is safe for concurrent use.
type Library struct {
	mu      sync.RWMutex
	puzzles map[key]slot
	log     *zap.Logger
}

// New creates an empty library.
func New(log *zap.Logger) *Library {
	if log == nil {
		log = zap.NewNop()
	}
	return &Library{
		puzzles: make(map[key]slot),
		log:     log,
	}
}

func normDifficulty(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	if d == "" {
		return DefaultDifficulty
	}
	return d
}

// Add validates p and stores it, replacing any puzzle with the same date
// and difficulty.
func (l *Library) Add(p *crossword.Puzzle) error {
	return l.add(p, false)
}

func (l *Library) add(p *crossword.Puzzle, fromFile bool) error {
	if p == nil {
		return fmt.Errorf("%w: nil puzzle", crossword.ErrInvalidPuzzle)
	}
	if strings.TrimSpace(p.Date) == "" {
		return fmt.Errorf("%w: missing date", crossword.ErrInvalidPuzzle)
	}
	if _, err := time.Parse(dateLayout, p.Date); err != nil {
		return fmt.Errorf("%w: date %q is not YYYY-MM-DD", crossword.ErrInvalidPuzzle, p.Date)
	}
	difficulty := normDifficulty(p.Difficulty)
	if !difficultyPattern.MatchString(difficulty) {
		return fmt.Errorf("%w: difficulty %q", crossword.ErrInvalidPuzzle, p.Difficulty)
	}
	if _, err := crossword.NewGrid(p); err != nil {
		return err
	}
	p.Difficulty = difficulty
	if p.ID == "" {
		p.ID = p.Date + "-" + p.Difficulty
	}

	l.mu.Lock()
	l.puzzles[key{p.Date, p.Difficulty}] = slot{puzzle: p, fromFile: fromFile}
	l.mu.Unlock()
	return nil
}

// Import adds p and, when dir is set, writes it there so it survives a
// restart. The file is named after the date and difficulty.
func (l *Library) Import(p *crossword.Puzzle, dir string) error {
	if err := l.Add(p); err != nil {
		return err
	}
	if dir == "" {
		return nil
	}
	data, err := Marshal(p)
	if err != nil {
		return err
	}
	path, err := puzzlePath(dir, p)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write puzzle file: %w", err)
	}
	l.log.Info("puzzle imported", zap.String("id", p.ID), zap.String("file", path))
	return nil
}

// puzzlePath names p's file in dir and refuses any path outside dir.
func puzzlePath(dir string, p *crossword.Puzzle) (string, error) {
	path := filepath.Join(dir, p.Date+"-"+p.Difficulty+".yaml")
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.Dir(rel) != "." {
		return "", fmt.Errorf("%w: puzzle file %q escapes %s", crossword.ErrInvalidPuzzle, path, dir)
	}
	return path, nil
}

// Get returns the puzzle for date and difficulty.
func (l *Library) Get(date, difficulty string) (*crossword.Puzzle, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.puzzles[key{date, normDifficulty(difficulty)}]
	return s.puzzle, ok
}

// List returns every puzzle, newest date first, then by difficulty.
func (l *Library) List() []Entry {
	l.mu.RLock()
	list := make([]Entry, 0, len(l.puzzles))
	for k, s := range l.puzzles {
		list = append(list, Entry{
			ID:         s.puzzle.ID,
			Date:       k.date,
			Difficulty: k.difficulty,
			Title:      s.puzzle.Title,
			Size:       s.puzzle.Size,
		})
	}
	l.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].Date != list[j].Date {
			return list[i].Date > list[j].Date
		}
		return list[i].Difficulty < list[j].Difficulty
	})
	return list
}

// Len returns the number of puzzles.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.puzzles)
}

func isPuzzleFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// LoadDir replaces every file-sourced puzzle with the contents of dir.
// Imported puzzles are kept. Files that fail to parse are skipped and
// reported in the returned error; the valid ones are still loaded.
func (l *Library) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read puzzle dir: %w", err)
	}

	loaded := make([]*crossword.Puzzle, 0, len(entries))
	var errs []error
	for _, e := range entries {
		if e.IsDir() || !isPuzzleFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
			continue
		}
		p, err := Parse(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
			continue
		}
		loaded = append(loaded, p)
	}

	l.mu.Lock()
	for k, s := range l.puzzles {
		if s.fromFile {
			delete(l.puzzles, k)
		}
	}
	l.mu.Unlock()

	n := 0
	for _, p := range loaded {
		if err := l.add(p, true); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.ID, err))
			continue
		}
		n++
	}
	l.log.Info("puzzle library loaded", zap.String("dir", dir), zap.Int("puzzles", n), zap.Int("errors", len(errs)))
	return n, errors.Join(errs...)
}

// file is the on-disk puzzle format: either a full puzzle, or a filled
// grid in rows with clue texts keyed by clue id ("1A", "2D").
type file struct {
	crossword.Puzzle `yaml:",inline"`
	Rows             []string          `yaml:"rows,omitempty"`
	ClueText         map[string]string `yaml:"clueText,omitempty"`
}

// Parse decodes one puzzle file. JSON is accepted as YAML.
func Parse(data []byte) (*crossword.Puzzle, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode puzzle: %w", err)
	}
	if len(f.Rows) > 0 {
		p, err := Build(f.Date, f.Rows, f.ClueText)
		if err != nil {
			return nil, err
		}
		p.ID, p.Title, p.Difficulty = f.ID, f.Title, f.Difficulty
		return p, nil
	}
	p := &f.Puzzle
	if err := applyClueText(p, f.ClueText); err != nil {
		return nil, err
	}
	if _, err := crossword.NewGrid(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Build numbers a filled grid and attaches clue texts keyed by clue id.
func Build(date string, rows []string, clueText map[string]string) (*crossword.Puzzle, error) {
	p, err := crossword.FromRows(date, rows)
	if err != nil {
		return nil, err
	}
	if err := applyClueText(p, clueText); err != nil {
		return nil, err
	}
	return p, nil
}

func applyClueText(p *crossword.Puzzle, texts map[string]string) error {
	for raw, text := range texts {
		id, err := crossword.ParseClueID(raw)
		if err != nil {
			return fmt.Errorf("%w: %v", crossword.ErrInvalidPuzzle, err)
		}
		list := p.Clues.Across
		if id.Direction == crossword.Down {
			list = p.Clues.Down
		}
		found := false
		for i := range list {
			if list[i].Number == id.Number {
				list[i].Text = text
				found = true
			}
		}
		if !found {
			return fmt.Errorf("%w: clue text for unknown clue %s", crossword.ErrInvalidPuzzle, id)
		}
	}
	return nil
}

// Marshal encodes p in the full file format.
func Marshal(p *crossword.Puzzle) ([]byte, error) {
	if _, err := crossword.NewGrid(p); err != nil {
		return nil, err
	}
	return yaml.Marshal(p)
}
