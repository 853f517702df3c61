// Package filter narrows a collection of issues by status and priority.
package filter

import (
	"github.com/joescharf/issueboard/internal/models"
)

// All is the wildcard value for either filter.
const All = "All"

// Criteria selects issues by exact status and priority. A field left empty or
// set to All matches every issue.
type Criteria struct {
	Status   models.IssueStatus
	Priority models.IssuePriority
}

// Wildcard reports whether the criteria match everything.
func (c Criteria) Wildcard() bool {
	return isAll(string(c.Status)) && isAll(string(c.Priority))
}

// Match reports whether issue passes every non-wildcard predicate.
func (c Criteria) Match(issue *models.Issue) bool {
	if !isAll(string(c.Status)) && issue.Status != c.Status {
		return false
	}
	if !isAll(string(c.Priority)) && issue.Priority != c.Priority {
		return false
	}
	return true
}

// Apply returns the issues matching status and priority, preserving order.
// The input slice is never modified.
func Apply(issues []*models.Issue, status models.IssueStatus, priority models.IssuePriority) []*models.Issue {
	return Criteria{Status: status, Priority: priority}.Apply(issues)
}

// Apply returns the issues matching c, preserving order.
func (c Criteria) Apply(issues []*models.Issue) []*models.Issue {
	out := make([]*models.Issue, 0, len(issues))
	for _, issue := range issues {
		if issue != nil && c.Match(issue) {
			out = append(out, issue)
		}
	}
	return out
}

// Parse builds criteria from user input. Empty strings and "All" (any case)
// are wildcards; anything else must name a known status or priority.
func Parse(status, priority string) (Criteria, error) {
	var c Criteria
	if !isAll(status) {
		s, err := models.ParseStatus(status)
		if err != nil {
			return Criteria{}, err
		}
		c.Status = s
	}
	if !isAll(priority) {
		p, err := models.ParsePriority(priority)
		if err != nil {
			return Criteria{}, err
		}
		c.Priority = p
	}
	return c, nil
}

func isAll(v string) bool {
	return v == "" || v == All || v == "all"
}
