// Package core defines the provider-agnostic data model shared by every
// subsystem of the runtime: messages and content blocks, tool definitions,
// permission and approval types, model/thinking selection, and the
// lightweight identifiers used to correlate a submission across its turns.
package core

import "github.com/google/uuid"

// SubmissionID correlates a UserCommand to every event it produces.
type SubmissionID string

// TurnID identifies one user->model->(tools->model)* cycle within a
// submission.
type TurnID string

// NewSubmissionID mints a fresh, globally unique SubmissionID.
func NewSubmissionID() SubmissionID {
	return SubmissionID(uuid.NewString())
}

// NewTurnID mints a fresh, globally unique TurnID.
func NewTurnID() TurnID {
	return TurnID(uuid.NewString())
}
