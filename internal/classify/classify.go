// Package classify turns a probe outcome plus a row's scope metadata into the
// "Page Exists?" value.
package classify

import (
	"strings"

	"github.com/raysh454/stagecheck/internal/probe"
)

// Classification is one of the three values written to the output column.
type Classification string

const (
	Exists             Classification = "Yes"
	Missing            Classification = "No"
	MissingButExpected Classification = "404"
)

// Input is everything the decision looks at. Outcome is nil when the row had
// no target URL.
type Input struct {
	Outcome    *probe.Outcome
	Scope      string
	Status     string
	URLMatches string
}

var (
	inScopeStatusMarkers = []string{"in scope", "added to initial scope", "needed for launch"}
	urlMatchesTruthy     = map[string]bool{"yes": true, "y": true, "true": true}
)

// Classify is pure and total; the first matching rule wins.
func Classify(in Input) Classification {
	scope := normalize(in.Scope)
	status := normalize(in.Status)

	inScope := strings.Contains(scope, "in scope") || containsAny(status, inScopeStatusMarkers)
	notNeeded := strings.Contains(scope, "not in scope") || strings.Contains(status, "not needed")

	if in.Outcome == nil || !in.Outcome.IsResolved() {
		return fallback(inScope, notNeeded)
	}

	code := in.Outcome.StatusCode
	switch {
	case code >= 200 && code < 400:
		return Exists
	case code == 404:
		if urlMatchesTruthy[normalize(in.URLMatches)] {
			return Missing
		}
		return fallback(inScope, notNeeded)
	default:
		return Missing
	}
}

// "Not in scope" contains "in scope", so notNeeded is checked first.
func fallback(inScope, notNeeded bool) Classification {
	switch {
	case notNeeded:
		return Missing
	case inScope:
		return MissingButExpected
	default:
		return Missing
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
