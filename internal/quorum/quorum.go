// Package quorum computes the advisory quorum attached to a meeting view.
// The result never gates a state transition; the uploaded protocol is the
// authoritative record of what a meeting decided.
package quorum

import "github.com/google/uuid"

// Result is the quorum report for one meeting.
type Result struct {
	TotalActive       int  `json:"total_active_members"`
	RemoteVoters      int  `json:"remote_voters"`
	LiveAttendees     int  `json:"live_attendees"`
	TotalParticipants int  `json:"total_participants"`
	QuorumRequired    int  `json:"quorum_required"`
	QuorumMet         bool `json:"quorum_met"`
}

// Required returns ceil(totalActive/2).
func Required(totalActive int) int {
	if totalActive <= 0 {
		return 0
	}
	return (totalActive + 1) / 2
}

// Calculate builds the report. A membership that is both registered remote and
// marked present counts once.
func Calculate(totalActive int, remote, live []uuid.UUID) Result {
	remoteSet := distinct(remote)
	liveSet := distinct(live)

	participants := make(map[uuid.UUID]struct{}, len(remoteSet)+len(liveSet))
	for id := range remoteSet {
		participants[id] = struct{}{}
	}
	for id := range liveSet {
		participants[id] = struct{}{}
	}

	required := Required(totalActive)
	return Result{
		TotalActive:       totalActive,
		RemoteVoters:      len(remoteSet),
		LiveAttendees:     len(liveSet),
		TotalParticipants: len(participants),
		QuorumRequired:    required,
		QuorumMet:         len(participants) >= required,
	}
}

func distinct(ids []uuid.UUID) map[uuid.UUID]struct{} {
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		set[id] = struct{}{}
	}
	return set
}
