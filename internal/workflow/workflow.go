// Package workflow holds the status machines for every stateful entity.
// Each mutation path, whether assignee-driven or reviewer-driven, must go
// through the same Machine so the two cannot disagree about what a legal
// transition is.
package workflow

import (
	"fmt"
)

// TransitionError reports a rejected status transition.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("invalid %s status transition %s -> %s", e.Entity, e.From, e.To)
}

// Machine is a finite set of allowed forward transitions over string statuses.
type Machine struct {
	Entity      string
	Initial     string
	Transitions map[string][]string
}

// Step validates from -> to and returns the new status, or a TransitionError.
func (m Machine) Step(from, to string) (string, error) {
	for _, next := range m.Transitions[from] {
		if next == to {
			return to, nil
		}
	}
	return from, TransitionError{Entity: m.Entity, From: from, To: to}
}

// Can reports whether from -> to is a legal transition.
func (m Machine) Can(from, to string) bool {
	_, err := m.Step(from, to)
	return err == nil
}

// Terminal reports whether no transition leads out of the status.
func (m Machine) Terminal(status string) bool {
	return len(m.Transitions[status]) == 0
}

// Assignments: the assignee accepts or declines, then starts; completion is
// reached either by submitting a fully-complete report or by reviewer
// approval, both stepping the same machine.
var Assignments = Machine{
	Entity:  "assignment",
	Initial: "pending",
	Transitions: map[string][]string{
		"pending":     {"accepted", "declined"},
		"accepted":    {"in_progress"},
		"in_progress": {"completed"},
	},
}

// Completions: draft loops back through revision_requested until a reviewer
// approves or rejects.
var Completions = Machine{
	Entity:  "completion",
	Initial: "draft",
	Transitions: map[string][]string{
		"draft":              {"submitted"},
		"submitted":          {"under_review", "approved", "revision_requested", "rejected"},
		"under_review":       {"approved", "revision_requested", "rejected"},
		"revision_requested": {"submitted"},
	},
}

// Proposals: changes_requested is its own state rather than a reuse of
// submitted, so "awaiting first review" and "returned for rework" stay
// distinguishable.
var Proposals = Machine{
	Entity:  "proposal",
	Initial: "draft",
	Transitions: map[string][]string{
		"draft":             {"submitted"},
		"submitted":         {"under_review", "approved", "rejected", "changes_requested"},
		"under_review":      {"approved", "rejected", "changes_requested"},
		"changes_requested": {"submitted"},
	},
}

var Subtasks = Machine{
	Entity:  "subtask",
	Initial: "pending",
	Transitions: map[string][]string{
		"pending":     {"in_progress", "completed"},
		"in_progress": {"completed"},
	},
}

// Editable reports whether a completion or proposal in this status may still
// be modified by its owner.
func Editable(status string) bool {
	return status == "draft" || status == "revision_requested" || status == "changes_requested"
}
