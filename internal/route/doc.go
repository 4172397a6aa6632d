// Package route resolves event routes to handler ids.
//
// Routes and patterns are "/"-separated. A pattern segment is either a
// literal, "*" (exactly one segment, which may be empty), "**" (zero or
// more segments) or a glob within one segment, where "*" matches any run of
// characters, "?" one character and a backslash escapes the next one:
//
//	/order/create/*    matches /order/create/42
//	/order/**          matches /order, /order/create/42
//	/*/*/42            matches /user/delete/42
//	/order/cre*/?      matches /order/create/1
//
// Patterns live in a Table in insertion order and are indexed by a wildcard
// trie. Resolution evaluates every pattern and the entry added last among
// the matches wins, so put broad fallbacks after specific patterns only if
// the fallback is meant to shadow them.
package route
