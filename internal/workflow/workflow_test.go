package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/issueboard/internal/models"
)

func TestValidateTransition(t *testing.T) {
	open, prog, done := models.IssueStatusOpen, models.IssueStatusInProgress, models.IssueStatusDone

	tests := []struct {
		old, new models.IssueStatus
		reason   string
	}{
		{open, done, ReasonOpenToDone},
		{done, open, ReasonDoneToOpen},
		{open, prog, ""},
		{prog, done, ""},
		{prog, open, ""},
		{done, prog, ""},
		{open, open, ""},
		{prog, prog, ""},
		{done, done, ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.old)+"->"+string(tt.new), func(t *testing.T) {
			err := ValidateTransition(tt.old, tt.new)
			if tt.reason == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.reason, verr.Reason)
			assert.Equal(t, tt.reason, err.Error())
			assert.Equal(t, tt.old, verr.From)
			assert.Equal(t, tt.new, verr.To)
		})
	}
}

func TestValidateTransition_ExactMessages(t *testing.T) {
	err := ValidateTransition(models.IssueStatusOpen, models.IssueStatusDone)
	require.Error(t, err)
	assert.Equal(t, "Cannot move directly from Open to Done. Must go through 'In Progress' first.", err.Error())

	err = ValidateTransition(models.IssueStatusDone, models.IssueStatusOpen)
	require.Error(t, err)
	assert.Equal(t, "Cannot revert from Done back to Open.", err.Error())
}

func TestValidateTransition_UnknownStatus(t *testing.T) {
	var verr *ValidationError

	err := ValidateTransition(models.IssueStatusOpen, "closed")
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Reason, "closed")

	err = ValidateTransition("archived", models.IssueStatusOpen)
	require.True(t, errors.As(err, &verr))

	assert.Error(t, ValidateTransition("closed", "closed"), "unknown states are never legal")
}

func TestValidateTransition_TwoStepReversalAllowed(t *testing.T) {
	assert.NoError(t, ValidateTransition(models.IssueStatusDone, models.IssueStatusInProgress))
	assert.NoError(t, ValidateTransition(models.IssueStatusInProgress, models.IssueStatusOpen))
}
