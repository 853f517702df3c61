package models

import (
	"fmt"
	"strings"
	"time"
)

// IssueStatus represents the workflow state of an issue.
type IssueStatus string

const (
	IssueStatusOpen       IssueStatus = "Open"
	IssueStatusInProgress IssueStatus = "In Progress"
	IssueStatusDone       IssueStatus = "Done"
)

// IssuePriority represents the urgency of an issue.
type IssuePriority string

const (
	IssuePriorityLow    IssuePriority = "Low"
	IssuePriorityMedium IssuePriority = "Medium"
	IssuePriorityHigh   IssuePriority = "High"
)

// Unassigned is stored in AssignedTo when nobody owns an issue.
const Unassigned = "Unassigned"

// Statuses lists every legal status in workflow order.
var Statuses = []IssueStatus{IssueStatusOpen, IssueStatusInProgress, IssueStatusDone}

// Priorities lists every legal priority from lowest to highest.
var Priorities = []IssuePriority{IssuePriorityLow, IssuePriorityMedium, IssuePriorityHigh}

// Valid reports whether s is one of the known statuses.
func (s IssueStatus) Valid() bool {
	switch s {
	case IssueStatusOpen, IssueStatusInProgress, IssueStatusDone:
		return true
	}
	return false
}

// Valid reports whether p is one of the known priorities.
func (p IssuePriority) Valid() bool {
	switch p {
	case IssuePriorityLow, IssuePriorityMedium, IssuePriorityHigh:
		return true
	}
	return false
}

// ParseStatus converts user input such as "in_progress", "in-progress" or
// "In Progress" into an IssueStatus.
func ParseStatus(s string) (IssueStatus, error) {
	key := strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	switch key {
	case "open":
		return IssueStatusOpen, nil
	case "inprogress":
		return IssueStatusInProgress, nil
	case "done":
		return IssueStatusDone, nil
	}
	return "", fmt.Errorf("invalid status %q (want one of: Open, In Progress, Done)", s)
}

// ParsePriority converts case-insensitive user input into an IssuePriority.
func ParsePriority(s string) (IssuePriority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return IssuePriorityLow, nil
	case "medium":
		return IssuePriorityMedium, nil
	case "high":
		return IssuePriorityHigh, nil
	}
	return "", fmt.Errorf("invalid priority %q (want one of: Low, Medium, High)", s)
}

// IssueFields holds the user-editable part of an issue. It is the payload of
// both the creation and the edit path.
type IssueFields struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Priority    IssuePriority `json:"priority"`
	Status      IssueStatus   `json:"status"`
	AssignedTo  string        `json:"assigned_to"`
}

// Issue is a tracked unit of work on the board. ID, CreatedBy, CreatedByUID
// and CreatedAt are set once by the creation path and never change.
type Issue struct {
	ID string `json:"id"`
	IssueFields
	CreatedBy    string    `json:"created_by"`
	CreatedByUID string    `json:"created_by_uid"`
	CreatedAt    time.Time `json:"created_at"`
}

// IssueRef is the short form of an issue reported by duplicate detection.
type IssueRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Ref returns the id/title pair for the issue.
func (i *Issue) Ref() IssueRef {
	return IssueRef{ID: i.ID, Title: i.Title}
}
