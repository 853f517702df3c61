// Package similarity flags existing issues whose titles closely resemble a
// candidate title. The result is advisory: it never blocks creation by itself.
package similarity

import (
	"strings"

	"github.com/joescharf/issueboard/internal/models"
)

// DefaultWindow is how many of the newest issues a duplicate check compares against.
const DefaultWindow = 50

// Threshold is the token-set Jaccard similarity that must be exceeded (strictly)
// for two titles to count as similar.
const Threshold = 0.6

// FindSimilar returns every issue in recent whose title is similar to
// candidate, in input order. Titles are similar when either lower-cased title
// contains the other, or their token-set Jaccard similarity exceeds Threshold.
// A blank candidate matches nothing.
func FindSimilar(candidate string, recent []*models.Issue) []models.IssueRef {
	c := normalize(candidate)
	if c == "" {
		return nil
	}
	cTokens := tokenSet(c)

	var matches []models.IssueRef
	for _, issue := range recent {
		if issue == nil {
			continue
		}
		t := normalize(issue.Title)
		// An empty string is a substring of everything.
		if t == "" {
			continue
		}
		if strings.Contains(c, t) || strings.Contains(t, c) || jaccard(cTokens, tokenSet(t)) > Threshold {
			matches = append(matches, issue.Ref())
		}
	}
	return matches
}

// Jaccard returns the token-set Jaccard similarity of two titles after
// lower-casing. Two titles without tokens have similarity 0.
func Jaccard(a, b string) float64 {
	return jaccard(tokenSet(normalize(a)), tokenSet(normalize(b)))
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	intersection := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
