package route

import "sort"

// Match is the outcome of a successful resolution.
type Match struct {
	// Pattern is the winning pattern.
	Pattern string

	// HandlerID is the handler the pattern maps to.
	HandlerID string

	// Position is the pattern's index in the table.
	Position int
}

// Resolver maps concrete routes to handler ids using a Table.
type Resolver struct {
	table *Table
}

// NewResolver creates a resolver over table. The table may still be
// modified afterwards; resolution always sees its current contents.
func NewResolver(table *Table) *Resolver {
	return &Resolver{table: table}
}

// Table returns the underlying table.
func (r *Resolver) Table() *Table {
	return r.table
}

// Resolve returns the handler for route. Every pattern is considered and,
// when several match, the one added to the table last wins:
//
//	/order/create/** -> create
//	/order/**        -> fallback
//
// resolves "/order/create/1" to fallback.
//
// ok is false when no pattern matches. A blank route or one that does not
// start with "/" fails with *InvalidRouteError.
func (r *Resolver) Resolve(route string) (m Match, ok bool, err error) {
	if err := validateRoute(route); err != nil {
		return Match{}, false, err
	}

	r.table.view(func(entries []Entry, tr *trie) {
		best := -1
		tr.match(Segments(route), func(position int) {
			if position > best {
				best = position
			}
		})
		if best < 0 {
			return
		}
		e := entries[best]
		m = Match{Pattern: e.Pattern, HandlerID: e.HandlerID, Position: best}
		ok = true
	})
	return m, ok, nil
}

// ResolveAll returns every matching entry in table order. The last element,
// if any, is what Resolve returns.
func (r *Resolver) ResolveAll(route string) ([]Match, error) {
	if err := validateRoute(route); err != nil {
		return nil, err
	}

	var matches []Match
	r.table.view(func(entries []Entry, tr *trie) {
		var positions []int
		tr.match(Segments(route), func(position int) {
			positions = append(positions, position)
		})
		sort.Ints(positions)
		for _, pos := range positions {
			e := entries[pos]
			matches = append(matches, Match{Pattern: e.Pattern, HandlerID: e.HandlerID, Position: pos})
		}
	})
	return matches, nil
}
