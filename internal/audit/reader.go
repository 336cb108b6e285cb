package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aliuyar1234/govern/internal/db"
	"github.com/google/uuid"
)

type Reader struct {
	q db.Querier
}

func NewReader(q db.Querier) *Reader {
	return &Reader{q: q}
}

type ListItem struct {
	ID          uuid.UUID      `json:"id"`
	Action      string         `json:"action"`
	OrgID       uuid.UUID      `json:"org_id"`
	ActorUserID *uuid.UUID     `json:"actor_user_id,omitempty"`
	SubjectID   *uuid.UUID     `json:"subject_id,omitempty"`
	Meta        map[string]any `json:"meta"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ListByOrg returns the newest entries for an organization, optionally filtered by action.
func (r *Reader) ListByOrg(ctx context.Context, orgID uuid.UUID, action string, limit int) ([]ListItem, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := r.q.Query(ctx, `
		SELECT id, org_id, actor_user_id, subject_id, action, meta, created_at
		FROM audit_log
		WHERE org_id = $1 AND ($2 = '' OR action = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, orgID, action, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var out []ListItem
	for rows.Next() {
		var item ListItem
		var actorUserID, subjectID uuid.NullUUID
		var metaRaw []byte

		if err := rows.Scan(&item.ID, &item.OrgID, &actorUserID, &subjectID, &item.Action, &metaRaw, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}

		if actorUserID.Valid {
			item.ActorUserID = &actorUserID.UUID
		}
		if subjectID.Valid {
			item.SubjectID = &subjectID.UUID
		}

		item.Meta = map[string]any{}
		if len(metaRaw) > 0 {
			_ = json.Unmarshal(metaRaw, &item.Meta)
		}

		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit rows: %w", err)
	}

	return out, nil
}
