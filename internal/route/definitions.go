package route

import (
	"bufio"
	"strings"
)

// ParseDefinitions parses route definitions written one per line as
//
//	# comment
//	[main]
//	/order/create/** = orderCreated
//	/order/**        = orderFallback
//
// Blank lines, lines starting with '#' or ';', and section headers are
// skipped. Entries are returned in file order; a later line for the same
// pattern overrides the handler of an earlier one when added to a Table.
func ParseDefinitions(text string) ([]Entry, error) {
	var entries []Entry

	scanner := bufio.NewScanner(strings.NewReader(text))
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Text()
		s := strings.TrimSpace(raw)

		switch {
		case s == "":
			continue
		case strings.HasPrefix(s, "#"), strings.HasPrefix(s, ";"):
			continue
		case strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"):
			continue
		}

		pattern, handlerID, found := strings.Cut(s, "=")
		if !found {
			return nil, &DefinitionError{Line: line, Text: raw, Reason: "expected pattern = handler"}
		}
		pattern = strings.TrimSpace(pattern)
		handlerID = strings.TrimSpace(handlerID)

		if err := ValidatePattern(pattern); err != nil {
			return nil, &DefinitionError{Line: line, Text: raw, Reason: err.Error()}
		}
		if handlerID == "" {
			return nil, &DefinitionError{Line: line, Text: raw, Reason: "missing handler id"}
		}

		entries = append(entries, Entry{Pattern: pattern, HandlerID: handlerID})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
