package meetings

import (
	"time"

	"github.com/aliuyar1234/govern/internal/quorum"
	"github.com/aliuyar1234/govern/internal/resolutions"
	"github.com/google/uuid"
)

type MeetingType string

const (
	TypeGA    MeetingType = "GA"
	TypeBoard MeetingType = "BOARD"
	TypeOther MeetingType = "OTHER"
)

func (t MeetingType) IsValid() bool {
	switch t {
	case TypeGA, TypeBoard, TypeOther:
		return true
	}
	return false
}

type MeetingStatus string

const (
	StatusDraft     MeetingStatus = "DRAFT"
	StatusPublished MeetingStatus = "PUBLISHED"
	StatusCompleted MeetingStatus = "COMPLETED"
)

type Meeting struct {
	ID              uuid.UUID     `json:"id"`
	OrgID           uuid.UUID     `json:"org_id"`
	Title           string        `json:"title"`
	Type            MeetingType   `json:"meeting_type"`
	Status          MeetingStatus `json:"status"`
	ScheduledAt     time.Time     `json:"scheduled_at"`
	ProtocolURL     *string       `json:"protocol_url,omitempty"`
	CreatedByUserID uuid.UUID     `json:"created_by_user_id"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// HasProceduralSequence reports whether the meeting carries the three
// mandatory procedural items. Only general assemblies do.
func (m *Meeting) HasProceduralSequence() bool {
	return m.Type == TypeGA
}

// IsProceduralItem reports whether itemNo is one of m's procedural items.
func (m *Meeting) IsProceduralItem(itemNo int) bool {
	return m.HasProceduralSequence() && itemNo >= 1 && itemNo <= len(proceduralTemplates)
}

// firstSubstantiveItemNo is where business items start for m.
func (m *Meeting) firstSubstantiveItemNo() int {
	if m.HasProceduralSequence() {
		return len(proceduralTemplates) + 1
	}
	return 1
}

type AgendaItem struct {
	ID               uuid.UUID          `json:"id"`
	MeetingID        uuid.UUID          `json:"meeting_id"`
	ItemNo           int                `json:"item_no"`
	Title            string             `json:"title"`
	ResolutionID     *uuid.UUID         `json:"resolution_id,omitempty"`
	ResolutionStatus resolutions.Status `json:"resolution_status,omitempty"`
	Procedural       bool               `json:"procedural"`
}

// View is a meeting with its agenda and the advisory quorum report.
type View struct {
	Meeting *Meeting      `json:"meeting"`
	Agenda  []AgendaItem  `json:"agenda"`
	Quorum  quorum.Result `json:"quorum"`
}

type proceduralTemplate struct {
	ItemNo  int
	Title   string
	Content string
}

// proceduralTemplates are the fixed opening decisions of a general assembly.
var proceduralTemplates = []proceduralTemplate{
	{
		ItemNo:  1,
		Title:   "Approval of the meeting agenda",
		Content: "The general assembly approves the agenda of this meeting as published.",
	},
	{
		ItemNo:  2,
		Title:   "Election of the meeting chair",
		Content: "The general assembly elects the chair of this meeting.",
	},
	{
		ItemNo:  3,
		Title:   "Election of the meeting secretary",
		Content: "The general assembly elects the secretary of this meeting.",
	},
}

// ProceduralItem is the state of one procedural agenda item.
type ProceduralItem struct {
	ItemNo       int                `json:"item_no"`
	ResolutionID uuid.UUID          `json:"resolution_id"`
	Status       resolutions.Status `json:"status"`
	Approved     bool               `json:"approved"`
	Repaired     bool               `json:"repaired,omitempty"`
}

// GateStatus reports whether substantive items of a meeting may take effect.
type GateStatus struct {
	Completed bool             `json:"completed"`
	Items     []ProceduralItem `json:"items"`
	Missing   []int            `json:"missing_items"`
}

// EvaluateGate derives the gate status from the procedural items. Missing lists
// every item number, in order, whose resolution is not APPROVED.
func EvaluateGate(items []ProceduralItem) GateStatus {
	byNo := make(map[int]ProceduralItem, len(items))
	for _, it := range items {
		byNo[it.ItemNo] = it
	}

	status := GateStatus{Missing: []int{}}
	for _, t := range proceduralTemplates {
		it, ok := byNo[t.ItemNo]
		if !ok {
			it = ProceduralItem{ItemNo: t.ItemNo}
		}
		it.Approved = it.Status == resolutions.StatusApproved
		if !it.Approved {
			status.Missing = append(status.Missing, t.ItemNo)
		}
		status.Items = append(status.Items, it)
	}
	status.Completed = len(status.Missing) == 0
	return status
}
