// Package intent classifies user questions so the pipeline can pick the
// prompt template that fits the data being asked about.
package intent

import (
	"strings"
	"unicode"
)

// QueryType selects a prompt template.
type QueryType string

const (
	General    QueryType = "general"
	Financial  QueryType = "financial"
	Employee   QueryType = "employee"
	Department QueryType = "department"
)

var keywords = map[QueryType][]string{
	Financial: {
		"revenue", "revenues", "expense", "expenses", "profit", "profits", "financial", "financials",
		"quarter", "quarterly", "q1", "q2", "q3", "q4", "earnings", "income", "margin", "loss", "losses",
	},
	Employee: {
		"employee", "employees", "salary", "salaries", "who", "hired", "hire", "position", "positions",
		"manager", "managers", "reports", "staff", "paid", "earns", "engineer", "director",
	},
	Department: {
		"department", "departments", "budget", "budgets", "location", "located", "floor",
		"team", "teams", "headcount", "division",
	},
}

// precedence breaks ties between equally scored types.
var precedence = []QueryType{Financial, Employee, Department}

// Classify scores the question against keyword lists and returns the best
// matching type, or General when nothing matches.
func Classify(question string) QueryType {
	words := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return General
	}
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		seen[w] = true
	}

	best, bestScore := General, 0
	for _, qt := range precedence {
		score := 0
		for _, k := range keywords[qt] {
			if seen[k] {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = qt, score
		}
	}
	return best
}
