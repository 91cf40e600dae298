// Package progress persists solver progress per puzzle date.
package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/bodul/xword/internal/crossword"
)

// Key addresses one saved record. Owner is the player or browser identity;
// Date is the puzzle date key.
type Key struct {
	Owner string
	Date  string
}

func (k Key) String() string {
	return k.Owner + "/" + k.Date
}

// Record is the saved progress for one puzzle date.
type Record struct {
	Date           string             `json:"date"`
	Answers        [][]string         `json:"answers"`
	CompletedClues []crossword.ClueID `json:"completedClues"`
	StartedAt      *time.Time         `json:"startedAt,omitempty"`
	CompletedAt    *time.Time         `json:"completedAt,omitempty"`
	SavedAt        time.Time          `json:"savedAt"`

	// Generation is the engine generation the record was captured under.
	// It is not persisted.
	Generation uint64 `json:"-"`
}

// FromSnapshot builds a record from an engine snapshot.
func FromSnapshot(date string, s crossword.Snapshot) Record {
	return Record{
		Date:           date,
		Answers:        s.Answers,
		CompletedClues: s.Completed,
		StartedAt:      s.StartedAt,
		CompletedAt:    s.CompletedAt,
		Generation:     s.Generation,
	}
}

// Store saves and restores progress records. Implementations return
// storage failures as *PersistenceError.
type Store interface {
	// Save writes rec under key, replacing any previous record. A zero
	// SavedAt is set to the current time.
	Save(ctx context.Context, key Key, rec Record) error
	// Load returns the record under key, or nil when there is none or it is
	// older than maxAge. A maxAge <= 0 disables the age check.
	Load(ctx context.Context, key Key, maxAge time.Duration) (*Record, error)
	// Reset deletes the record under key.
	Reset(ctx context.Context, key Key) error
	// Prune deletes records saved before the given time and returns how
	// many were removed.
	Prune(ctx context.Context, before time.Time) (int, error)
	Close() error
}

// PersistenceError reports a failed storage operation. The in-memory engine
// state stays authoritative; callers decide whether to retry or warn.
type PersistenceError struct {
	Op  string
	Key Key
	Err error
}

func (e *PersistenceError) Error() string {
	if e.Key == (Key{}) {
		return fmt.Sprintf("progress %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("progress %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func expired(savedAt, now time.Time, maxAge time.Duration) bool {
	return maxAge > 0 && now.Sub(savedAt) > maxAge
}
