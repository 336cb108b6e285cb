package activation

import (
	"fmt"
	"strings"
)

const (
	ItemGovernanceAnswers = "governance_answers"
	ItemBoardMembers      = "board_members"
	consentItemPrefix     = "consent:"

	// AnswerBoardEnabled is the proposed answer that makes a board mandatory.
	AnswerBoardEnabled = "board_enabled"
)

// RequiredAnswers must all be present in governance.proposed before activation.
var RequiredAnswers = []string{
	"legal_form",
	"purpose",
	"membership_fee",
	"ga_notice_days",
	AnswerBoardEnabled,
}

// RequiredConsents must all be accepted before activation.
var RequiredConsents = []string{
	"terms_of_service",
	"data_processing",
	"statutes_truthful",
}

// ChecklistItem is one line of the readiness report.
type ChecklistItem struct {
	Key        string   `json:"key"`
	Applicable bool     `json:"applicable"`
	Passed     bool     `json:"passed"`
	Missing    []string `json:"missing,omitempty"`
	Message    string   `json:"message"`
}

// Readiness is the read-only activation checklist of an organization.
type Readiness struct {
	AllReady  bool            `json:"all_ready"`
	Checklist []ChecklistItem `json:"checklist"`
}

// Failing returns the keys of applicable items that did not pass.
func (r Readiness) Failing() []string {
	var out []string
	for _, it := range r.Checklist {
		if it.Applicable && !it.Passed {
			out = append(out, it.Key)
		}
	}
	return out
}

// ReadinessInput is everything the checklist is derived from.
type ReadinessInput struct {
	Proposed       map[string]any
	Consents       map[string]bool
	BoardPositions int
}

// EvaluateReadiness derives the checklist. It has no side effects.
func EvaluateReadiness(in ReadinessInput) Readiness {
	var items []ChecklistItem

	var missing []string
	for _, key := range RequiredAnswers {
		if !answered(in.Proposed, key) {
			missing = append(missing, key)
		}
	}
	answers := ChecklistItem{Key: ItemGovernanceAnswers, Applicable: true, Passed: len(missing) == 0, Missing: missing}
	if answers.Passed {
		answers.Message = "All governance questions are answered."
	} else {
		answers.Message = fmt.Sprintf("Unanswered governance questions: %s.", strings.Join(missing, ", "))
	}
	items = append(items, answers)

	for _, key := range RequiredConsents {
		item := ChecklistItem{Key: consentItemPrefix + key, Applicable: true, Passed: in.Consents[key]}
		if item.Passed {
			item.Message = "Accepted."
		} else {
			item.Message = "Not accepted yet."
		}
		items = append(items, item)
	}

	board := ChecklistItem{Key: ItemBoardMembers, Applicable: boardEnabled(in.Proposed)}
	switch {
	case !board.Applicable:
		board.Passed = true
		board.Message = "No board is planned."
	case in.BoardPositions > 0:
		board.Passed = true
		board.Message = fmt.Sprintf("%d board member(s) listed.", in.BoardPositions)
	default:
		board.Message = "A board is planned but no board members are listed."
	}
	items = append(items, board)

	r := Readiness{Checklist: items, AllReady: true}
	for _, it := range items {
		if it.Applicable && !it.Passed {
			r.AllReady = false
		}
	}
	return r
}

func answered(proposed map[string]any, key string) bool {
	v, ok := proposed[key]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s) != ""
	}
	return true
}

func boardEnabled(proposed map[string]any) bool {
	switch v := proposed[AnswerBoardEnabled].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "taip":
			return true
		}
	}
	return false
}

func isRequiredConsent(key string) bool {
	for _, k := range RequiredConsents {
		if k == key {
			return true
		}
	}
	return false
}
