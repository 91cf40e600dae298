package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bodul/xword/internal/crossword"
	"github.com/bodul/xword/internal/progress"
)

// Player is a viewer connected to a session's event stream.
type Player struct {
	Pseudo   string    `json:"pseudo"`
	Color    string    `json:"color"`
	JoinedAt time.Time `json:"joined_at"`
}

// playerColors is the palette assigned to viewers in order.
var playerColors = []string{
	"#2563eb", "#dc2626", "#16a34a", "#9333ea",
	"#ea580c", "#0891b2", "#c026d3", "#ca8a04",
}

// Input actions accepted by Session.Apply.
const (
	actionType              = "type"
	actionKeyboardType      = "keyboard_type"
	actionBackspace         = "backspace"
	actionKeyboardBackspace = "keyboard_backspace"
	actionArrow             = "arrow"
	actionSpace             = "space"
	actionClick             = "click"
	actionSkip              = "skip"
	actionPrev              = "prev"
	actionHint              = "hint"
	actionClearClue         = "clear_clue"
	actionReset             = "reset"
)

var errBadInput = errors.New("invalid input")

// Input is one player event.
type Input struct {
	Action string          `json:"action"`
	Letter string          `json:"letter,omitempty"`
	Arrow  crossword.Arrow `json:"arrow,omitempty"`
	Row    int             `json:"row"`
	Col    int             `json:"col"`
}

// SessionState is the client view of a session.
type SessionState struct {
	ID                string               `json:"id"`
	Owner             string               `json:"owner"`
	Puzzle            *crossword.Puzzle    `json:"puzzle"`
	Overlay           [][]string           `json:"overlay"`
	Cursor            *crossword.Cursor    `json:"cursor,omitempty"`
	CurrentClue       *crossword.ClueID    `json:"currentClue,omitempty"`
	Completion        crossword.Completion `json:"completion"`
	Percent           int                  `json:"percent"`
	StartedAt         *time.Time           `json:"startedAt,omitempty"`
	CompletedAt       *time.Time           `json:"completedAt,omitempty"`
	ElapsedSeconds    int64                `json:"elapsedSeconds"` // frozen once completed
	HintsEnabled      bool                 `json:"hintsEnabled"`
	HintsUsed         []crossword.ClueID   `json:"hintsUsed,omitempty"`
	SolutionAvailable bool                 `json:"solutionAvailable"`
	Viewers           []*Player            `json:"viewers"`
}

// Session is one player's engine for one puzzle, shared by every viewer of
// it. All engine access goes through the session lock.
type Session struct {
	ID        string
	Key       progress.Key
	Member    bool
	CreatedAt time.Time

	mu           sync.Mutex
	engine       *crossword.Engine
	hintsEnabled bool
	saver        *progress.AutoSaver
	viewers      map[string]*Player
	lastActive   time.Time
}

// progressKey addresses saved progress for owner on puzzle p. A date may
// carry several difficulties, each saved separately.
func progressKey(owner string, p *crossword.Puzzle) progress.Key {
	return progress.Key{Owner: owner, Date: p.Date + "/" + p.Difficulty}
}

func newSession(id, owner string, member bool, engine *crossword.Engine, hints bool, saver *progress.AutoSaver) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		Key:          progressKey(owner, engine.Puzzle()),
		Member:       member,
		CreatedAt:    now,
		engine:       engine,
		hintsEnabled: hints,
		saver:        saver,
		viewers:      make(map[string]*Player),
		lastActive:   now,
	}
}

// Restore loads saved answers into the engine.
func (s *Session) Restore(rec *progress.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Restore(rec.Answers, rec.StartedAt, rec.CompletedAt)
}

// AddViewer registers a viewer and returns it. Joining twice with the same
// pseudo returns the existing viewer.
func (s *Session) AddViewer(pseudo string) *Player {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.viewers[pseudo]; ok {
		return p
	}
	p := &Player{
		Pseudo:   pseudo,
		Color:    playerColors[len(s.viewers)%len(playerColors)],
		JoinedAt: time.Now(),
	}
	s.viewers[pseudo] = p
	return p
}

// RemoveViewer unregisters a viewer.
func (s *Session) RemoveViewer(pseudo string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.viewers, pseudo)
}

// idleSince returns the time of the last input.
func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// State returns a snapshot of the session for clients.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() SessionState {
	e := s.engine
	st := SessionState{
		ID:                s.ID,
		Owner:             s.Key.Owner,
		Puzzle:            e.Puzzle(),
		Overlay:           e.Overlay(),
		Completion:        e.Completion(),
		HintsEnabled:      s.hintsEnabled,
		HintsUsed:         e.HintsUsed(),
		SolutionAvailable: e.SolutionAvailable(),
		Viewers:           make([]*Player, 0, len(s.viewers)),
	}
	st.Percent = st.Completion.Percent()
	st.ElapsedSeconds = int64(e.Elapsed() / time.Second)
	if at, ok := e.StartedAt(); ok {
		st.StartedAt = &at
	}
	if c, ok := e.Cursor(); ok {
		st.Cursor = &c
	}
	if cl := e.CurrentClue(); cl != nil {
		id := cl.ID()
		st.CurrentClue = &id
	}
	if at, ok := e.CompletedAt(); ok {
		st.CompletedAt = &at
	}
	for _, p := range s.viewers {
		st.Viewers = append(st.Viewers, p)
	}
	return st
}

// Result is the outcome of one applied input.
type Result struct {
	Change crossword.Change `json:"change"`
	State  SessionState     `json:"state"`
}

// Apply runs one input event against the engine. Mutations schedule a
// save; a reset clears stored progress before returning, so its error is
// a persistence failure with the in-memory reset already applied.
func (s *Session) Apply(ctx context.Context, in Input) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()

	e := s.engine
	var (
		ch  crossword.Change
		err error
	)
	switch in.Action {
	case actionType:
		ch, err = e.Type(in.Letter)
	case actionKeyboardType:
		ch, err = e.KeyboardType(in.Letter)
	case actionBackspace:
		ch, err = e.Backspace()
	case actionKeyboardBackspace:
		ch, err = e.KeyboardBackspace()
	case actionArrow:
		if !in.Arrow.Valid() {
			return Result{}, fmt.Errorf("%w: unknown arrow %q", errBadInput, in.Arrow)
		}
		err = e.Arrow(in.Arrow)
	case actionSpace:
		err = e.Space()
	case actionClick:
		err = e.Click(in.Row, in.Col)
	case actionSkip:
		e.SkipClue()
	case actionPrev:
		e.PrevClue()
	case actionHint:
		ch, err = e.Hint()
	case actionClearClue:
		ch, err = e.ClearClue()
	case actionReset:
		ch = e.Reset()
		if rerr := s.saver.Reset(ctx, s.Key, e.Generation()); rerr != nil {
			return Result{Change: ch, State: s.stateLocked()}, rerr
		}
		return Result{Change: ch, State: s.stateLocked()}, nil
	default:
		return Result{}, fmt.Errorf("%w: unknown action %q", errBadInput, in.Action)
	}
	if err != nil {
		return Result{}, err
	}
	if len(ch.Cells) > 0 {
		s.saver.Schedule(s.Key, progress.FromSnapshot(e.Date(), e.Snapshot()))
	}
	return Result{Change: ch, State: s.stateLocked()}, nil
}

// Solution returns the solution grid once released.
func (s *Session) Solution(released bool) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.SetSolutionAvailable(released)
	return s.engine.Solution()
}

// Date returns the puzzle date.
func (s *Session) Date() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Date()
}
