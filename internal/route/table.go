package route

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Entry maps a pattern to the id of the handler that serves it.
type Entry struct {
	Pattern   string `json:"pattern" yaml:"pattern" toml:"pattern" mapstructure:"pattern"`
	HandlerID string `json:"handler" yaml:"handler" toml:"handler" mapstructure:"handler"`
}

// Table is the ordered set of route entries. Order matters: when several
// patterns match a route, the entry added last wins.
//
// A Table is safe for concurrent use. After Freeze it is immutable and reads
// take no lock.
type Table struct {
	mu      sync.RWMutex
	entries []Entry
	index   map[string]int
	trie    *trie
	frozen  atomic.Bool
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		index: make(map[string]int),
		trie:  newTrie(),
	}
}

// Add maps pattern to handlerID. Re-adding a pattern replaces its handler id
// but keeps the position it was first added at.
func (t *Table) Add(pattern, handlerID string) error {
	if err := ValidatePattern(pattern); err != nil {
		return err
	}
	if handlerID == "" {
		return fmt.Errorf("%w: pattern %q", ErrEmptyHandlerID, pattern)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen.Load() {
		return ErrTableFrozen
	}

	if pos, ok := t.index[pattern]; ok {
		t.entries[pos].HandlerID = handlerID
		return nil
	}

	pos := len(t.entries)
	t.entries = append(t.entries, Entry{Pattern: pattern, HandlerID: handlerID})
	t.index[pattern] = pos
	t.trie.insert(pattern, pos)
	return nil
}

// AddEntries adds entries in order, stopping at the first error.
func (t *Table) AddEntries(entries ...Entry) error {
	for _, e := range entries {
		if err := t.Add(e.Pattern, e.HandlerID); err != nil {
			return err
		}
	}
	return nil
}

// Freeze makes the table immutable. It is idempotent.
func (t *Table) Freeze() {
	t.mu.Lock()
	t.frozen.Store(true)
	t.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (t *Table) Frozen() bool {
	return t.frozen.Load()
}

// Len returns the number of entries.
func (t *Table) Len() int {
	var n int
	t.view(func(entries []Entry, _ *trie) {
		n = len(entries)
	})
	return n
}

// Entries returns a copy of the entries in table order.
func (t *Table) Entries() []Entry {
	var out []Entry
	t.view(func(entries []Entry, _ *trie) {
		out = make([]Entry, len(entries))
		copy(out, entries)
	})
	return out
}

// view runs fn with a consistent view of the table. Freeze stores the flag
// while holding the write lock, so a reader that sees it set also sees every
// entry and needs no lock.
func (t *Table) view(fn func(entries []Entry, tr *trie)) {
	if t.frozen.Load() {
		fn(t.entries, t.trie)
		return
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	fn(t.entries, t.trie)
}
