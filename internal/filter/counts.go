package filter

import "github.com/joescharf/issueboard/internal/models"

// Counts tallies issues per status and per priority.
type Counts struct {
	Total      int                          `json:"total"`
	ByStatus   map[models.IssueStatus]int   `json:"by_status"`
	ByPriority map[models.IssuePriority]int `json:"by_priority"`
}

// Count tallies the given issues. Every known status and priority is present
// in the result, with zero when unused.
func Count(issues []*models.Issue) Counts {
	c := Counts{
		ByStatus:   make(map[models.IssueStatus]int, len(models.Statuses)),
		ByPriority: make(map[models.IssuePriority]int, len(models.Priorities)),
	}
	for _, s := range models.Statuses {
		c.ByStatus[s] = 0
	}
	for _, p := range models.Priorities {
		c.ByPriority[p] = 0
	}
	for _, issue := range issues {
		if issue == nil {
			continue
		}
		c.Total++
		c.ByStatus[issue.Status]++
		c.ByPriority[issue.Priority]++
	}
	return c
}
