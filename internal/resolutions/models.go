package resolutions

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a resolution.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusProposed Status = "PROPOSED"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// transitions is the whole state machine. APPROVED and REJECTED have no exits.
var transitions = map[Status][]Status{
	StatusDraft:    {StatusProposed},
	StatusProposed: {StatusApproved, StatusRejected},
}

func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusProposed, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// CanTransitionTo reports whether s -> to is a legal edge.
func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// sourcesFor lists the states from which to is reachable in one step.
func sourcesFor(to Status) []string {
	var out []string
	for from, nexts := range transitions {
		for _, next := range nexts {
			if next == to {
				out = append(out, string(from))
			}
		}
	}
	return out
}

// Outcome maps a decision onto its terminal status.
func Outcome(approved bool) Status {
	if approved {
		return StatusApproved
	}
	return StatusRejected
}

type Visibility string

const (
	VisibilityPublic   Visibility = "PUBLIC"
	VisibilityMembers  Visibility = "MEMBERS"
	VisibilityInternal Visibility = "INTERNAL"
)

func (v Visibility) IsValid() bool {
	switch v {
	case VisibilityPublic, VisibilityMembers, VisibilityInternal:
		return true
	}
	return false
}

// Resolution is a single governance proposal.
type Resolution struct {
	ID              uuid.UUID      `json:"id"`
	OrgID           uuid.UUID      `json:"org_id"`
	MeetingID       *uuid.UUID     `json:"meeting_id,omitempty"`
	Title           string         `json:"title"`
	Content         string         `json:"content"`
	Status          Status         `json:"status"`
	Visibility      Visibility     `json:"visibility"`
	Metadata        map[string]any `json:"metadata"`
	CreatedByUserID uuid.UUID      `json:"created_by_user_id"`
	DecidedAt       *time.Time     `json:"decided_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// NewResolution is the input to Insert.
type NewResolution struct {
	OrgID           uuid.UUID
	MeetingID       *uuid.UUID
	Title           string
	Content         string
	Status          Status
	Visibility      Visibility
	CreatedByUserID uuid.UUID
}
