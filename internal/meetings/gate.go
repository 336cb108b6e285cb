package meetings

import (
	"context"
	"fmt"

	"github.com/aliuyar1234/govern/internal/audit"
	"github.com/aliuyar1234/govern/internal/db"
	"github.com/aliuyar1234/govern/internal/metrics"
	"github.com/aliuyar1234/govern/internal/resolutions"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Gate checks that the procedural items of a general assembly are approved
// before any substantive item takes effect.
type Gate struct {
	auditor *audit.Writer
	metrics *metrics.Governance
}

func NewGate(auditor *audit.Writer, m *metrics.Governance) *Gate {
	return &Gate{auditor: auditor, metrics: m}
}

// Status reads the procedural items of m through q. A procedural item whose
// resolution is missing gets a fresh resolution from its template and is
// re-linked, so q should be a transaction.
func (g *Gate) Status(ctx context.Context, q db.Querier, m *Meeting) (GateStatus, error) {
	if !m.HasProceduralSequence() {
		return GateStatus{Completed: true, Missing: []int{}}, nil
	}

	rows, err := q.Query(ctx, `
		SELECT a.item_no, a.resolution_id, r.status
		FROM agenda_items a
		LEFT JOIN resolutions r ON r.id = a.resolution_id
		WHERE a.meeting_id = $1 AND a.item_no BETWEEN 1 AND $2
		ORDER BY a.item_no
		FOR UPDATE OF a
	`, m.ID, len(proceduralTemplates))
	if err != nil {
		return GateStatus{}, fmt.Errorf("failed to load procedural items: %w", err)
	}

	type row struct {
		resolutionID uuid.NullUUID
		status       *string
	}
	found := make(map[int]row)
	for rows.Next() {
		var itemNo int
		var r row
		if err := rows.Scan(&itemNo, &r.resolutionID, &r.status); err != nil {
			rows.Close()
			return GateStatus{}, fmt.Errorf("failed to scan procedural item: %w", err)
		}
		found[itemNo] = r
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return GateStatus{}, fmt.Errorf("failed to load procedural items: %w", err)
	}

	items := make([]ProceduralItem, 0, len(proceduralTemplates))
	for _, t := range proceduralTemplates {
		r, exists := found[t.ItemNo]
		if exists && r.resolutionID.Valid && r.status != nil {
			items = append(items, ProceduralItem{
				ItemNo:       t.ItemNo,
				ResolutionID: r.resolutionID.UUID,
				Status:       resolutions.Status(*r.status),
			})
			continue
		}

		res, err := repairProceduralItem(ctx, q, m, t, exists)
		if err != nil {
			return GateStatus{}, err
		}
		log.Warn().
			Str("meeting_id", m.ID.String()).
			Int("item_no", t.ItemNo).
			Str("resolution_id", res.ID.String()).
			Msg("Repaired procedural agenda item without resolution")

		items = append(items, ProceduralItem{
			ItemNo:       t.ItemNo,
			ResolutionID: res.ID,
			Status:       res.Status,
			Repaired:     true,
		})
	}

	return EvaluateGate(items), nil
}

func repairProceduralItem(ctx context.Context, q db.Querier, m *Meeting, t proceduralTemplate, itemExists bool) (*resolutions.Resolution, error) {
	res, err := createProceduralResolution(ctx, q, m, t)
	if err != nil {
		return nil, err
	}

	if itemExists {
		_, err = q.Exec(ctx, `
			UPDATE agenda_items SET resolution_id = $3 WHERE meeting_id = $1 AND item_no = $2
		`, m.ID, t.ItemNo, res.ID)
	} else {
		_, err = q.Exec(ctx, `
			INSERT INTO agenda_items (meeting_id, item_no, title, resolution_id) VALUES ($1, $2, $3, $4)
		`, m.ID, t.ItemNo, t.Title, res.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to relink procedural item %d: %w", t.ItemNo, err)
	}
	return res, nil
}

func createProceduralResolution(ctx context.Context, q db.Querier, m *Meeting, t proceduralTemplate) (*resolutions.Resolution, error) {
	meetingID := m.ID
	res, err := resolutions.Insert(ctx, q, resolutions.NewResolution{
		OrgID:           m.OrgID,
		MeetingID:       &meetingID,
		Title:           t.Title,
		Content:         t.Content,
		Status:          resolutions.StatusProposed,
		Visibility:      resolutions.VisibilityMembers,
		CreatedByUserID: m.CreatedByUserID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create procedural resolution %d: %w", t.ItemNo, err)
	}
	return res, nil
}

// Require fails with ErrProceduralSequenceIncomplete, listing the unapproved
// item numbers, when itemNo is substantive and the sequence is not complete.
func (g *Gate) Require(ctx context.Context, q db.Querier, m *Meeting, itemNo int) (GateStatus, error) {
	if !m.HasProceduralSequence() || m.IsProceduralItem(itemNo) {
		return GateStatus{Completed: true, Missing: []int{}}, nil
	}

	status, err := g.Status(ctx, q, m)
	if err != nil {
		return GateStatus{}, err
	}
	if !status.Completed {
		g.metrics.GateBlocked()
		return status, ErrProceduralSequenceIncomplete.WithDetails(map[string]any{
			"missing_items": status.Missing,
			"item_no":       itemNo,
		})
	}
	return status, nil
}

// RecordRepairs writes an audit entry per repaired item. Call it once the
// transaction that repaired them has committed.
func (g *Gate) RecordRepairs(m *Meeting, actorUserID uuid.UUID, status GateStatus) {
	for _, it := range status.Items {
		if !it.Repaired {
			continue
		}
		g.auditor.Record(audit.Entry{
			OrgID:       m.OrgID,
			ActorUserID: actorUserID,
			Action:      audit.EventProceduralItemRepaired,
			SubjectID:   m.ID,
			Meta:        map[string]any{"item_no": it.ItemNo, "resolution_id": it.ResolutionID},
		})
	}
}
