package search

import (
	"strconv"
	"strings"
)

const DefaultLimit = 10

// Query represents the structured parameters of a discover request.
// It decouples the raw console input from what the index engine needs.
type Query struct {
	RawInput string // The line typed by the user
	Terms    string // The actual text to search in the title and body
	SenderID string // Restricts results to one sender
	Limit    int    // Number of results
}

// ParseQuery parses a raw string to extract command-line style arguments.
// Example: "quarterly invoice --sender 0192... --limit 5"
// Unknown flags are ignored together with their value.
func ParseQuery(input string, defaultLimit int) Query {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	query := Query{
		RawInput: input,
		Limit:    defaultLimit,
	}

	parts := strings.Fields(input)
	var textTerms []string

	for i := 0; i < len(parts); i++ {
		part := parts[i]

		// Handle flags like --limit 5 or --sender <id>
		if strings.HasPrefix(part, "--") && i+1 < len(parts) {
			key := strings.TrimPrefix(part, "--")
			val := parts[i+1]

			switch key {
			case "sender":
				query.SenderID = val
			case "limit":
				if limit, err := strconv.Atoi(val); err == nil && limit > 0 {
					query.Limit = limit
				}
			}
			i++ // Skip the value part in next iteration
			continue
		}

		// A trailing flag without value carries nothing
		if strings.HasPrefix(part, "--") {
			continue
		}
		textTerms = append(textTerms, part)
	}

	query.Terms = strings.Join(textTerms, " ")
	return query
}

// Empty reports whether the query has no terms. A sender filter alone
// does not make a query.
func (q Query) Empty() bool {
	return q.Terms == ""
}
