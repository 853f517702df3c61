package models

import "strings"

// Normalize fills in the defaults for an issue payload. It is applied the same
// way on creation and on every edit so stored issues never carry an empty
// assignee, priority or status.
func Normalize(f IssueFields) IssueFields {
	if f.Priority == "" {
		f.Priority = IssuePriorityMedium
	}
	if f.Status == "" {
		f.Status = IssueStatusOpen
	}
	f.AssignedTo = strings.TrimSpace(f.AssignedTo)
	if f.AssignedTo == "" {
		f.AssignedTo = Unassigned
	}
	return f
}

// IssuePatch is a partial edit. Nil fields keep their current value.
type IssuePatch struct {
	Title       *string        `json:"title,omitempty"`
	Description *string        `json:"description,omitempty"`
	Priority    *IssuePriority `json:"priority,omitempty"`
	Status      *IssueStatus   `json:"status,omitempty"`
	AssignedTo  *string        `json:"assigned_to,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p IssuePatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil && p.Status == nil && p.AssignedTo == nil
}

// Apply merges the patch over current and returns the result. The caller is
// expected to Normalize the merged fields.
func (p IssuePatch) Apply(current IssueFields) IssueFields {
	if p.Title != nil {
		current.Title = *p.Title
	}
	if p.Description != nil {
		current.Description = *p.Description
	}
	if p.Priority != nil {
		current.Priority = *p.Priority
	}
	if p.Status != nil {
		current.Status = *p.Status
	}
	if p.AssignedTo != nil {
		current.AssignedTo = *p.AssignedTo
	}
	return current
}
