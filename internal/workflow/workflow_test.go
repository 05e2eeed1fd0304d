package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignmentForwardPath(t *testing.T) {
	status := Assignments.Initial
	for _, next := range []string{"accepted", "in_progress", "completed"} {
		var err error
		status, err = Assignments.Step(status, next)
		require.NoError(t, err)
		assert.Equal(t, next, status)
	}
	assert.True(t, Assignments.Terminal(status))
}

func TestAssignmentNoBackwardTransitions(t *testing.T) {
	for from, to := range map[string]string{
		"accepted":    "pending",
		"in_progress": "accepted",
		"completed":   "in_progress",
		"declined":    "pending",
	} {
		got, err := Assignments.Step(from, to)
		assert.Equal(t, from, got, "status must not move on rejection")
		var te TransitionError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, "assignment", te.Entity)
	}
}

func TestDeclineIsTerminal(t *testing.T) {
	status, err := Assignments.Step("pending", "declined")
	require.NoError(t, err)
	assert.True(t, Assignments.Terminal(status))
	_, err = Assignments.Step("declined", "accepted")
	assert.Error(t, err)
}

func TestCompletedAssignmentRejectsSecondWriter(t *testing.T) {
	// A reviewer approving an already-completed assignment must get a
	// rejection, not a silent overwrite.
	_, err := Assignments.Step("completed", "completed")
	var te TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "completed", te.From)
}

func TestCompletionRevisionLoop(t *testing.T) {
	status, err := Completions.Step("draft", "submitted")
	require.NoError(t, err)
	status, err = Completions.Step(status, "revision_requested")
	require.NoError(t, err)
	status, err = Completions.Step(status, "submitted")
	require.NoError(t, err)
	status, err = Completions.Step(status, "approved")
	require.NoError(t, err)
	assert.True(t, Completions.Terminal(status))
}

func TestCompletionReviewFromUnderReview(t *testing.T) {
	for _, verdict := range []string{"approved", "revision_requested", "rejected"} {
		assert.True(t, Completions.Can("under_review", verdict), verdict)
		assert.True(t, Completions.Can("submitted", verdict), verdict)
	}
	assert.False(t, Completions.Can("draft", "approved"))
	assert.False(t, Completions.Can("rejected", "submitted"))
}

func TestProposalChangesRequestedIsDistinctState(t *testing.T) {
	status, err := Proposals.Step("submitted", "changes_requested")
	require.NoError(t, err)
	assert.True(t, Editable(status))
	// rework goes back to submitted, never straight to approved
	assert.False(t, Proposals.Can(status, "approved"))
	status, err = Proposals.Step(status, "submitted")
	require.NoError(t, err)
	assert.False(t, Editable(status))
}

func TestProposalRejectTerminal(t *testing.T) {
	status, err := Proposals.Step("submitted", "rejected")
	require.NoError(t, err)
	assert.True(t, Proposals.Terminal(status))
}

func TestSubtaskTransitions(t *testing.T) {
	assert.True(t, Subtasks.Can("pending", "completed"))
	assert.True(t, Subtasks.Can("pending", "in_progress"))
	assert.False(t, Subtasks.Can("completed", "pending"))
}
