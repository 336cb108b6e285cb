package meetings

import (
	"testing"

	"github.com/aliuyar1234/govern/internal/apperrors"
	"github.com/aliuyar1234/govern/internal/resolutions"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestProceduralTemplates(t *testing.T) {
	require.Len(t, proceduralTemplates, 3)
	for i, tpl := range proceduralTemplates {
		require.Equal(t, i+1, tpl.ItemNo)
		require.NotEmpty(t, tpl.Title)
		require.NotEmpty(t, tpl.Content)
	}
	require.Equal(t, "Election of the meeting chair", proceduralTemplates[1].Title)
}

func TestMeeting_ItemNumbering(t *testing.T) {
	ga := &Meeting{Type: TypeGA}
	require.True(t, ga.HasProceduralSequence())
	require.True(t, ga.IsProceduralItem(1))
	require.True(t, ga.IsProceduralItem(3))
	require.False(t, ga.IsProceduralItem(4))
	require.False(t, ga.IsProceduralItem(0))
	require.Equal(t, 4, ga.firstSubstantiveItemNo())

	board := &Meeting{Type: TypeBoard}
	require.False(t, board.HasProceduralSequence())
	require.False(t, board.IsProceduralItem(1))
	require.Equal(t, 1, board.firstSubstantiveItemNo())

	require.True(t, TypeOther.IsValid())
	require.False(t, MeetingType("AGM").IsValid())
}

func TestEvaluateGate(t *testing.T) {
	approved := func(no int) ProceduralItem {
		return ProceduralItem{ItemNo: no, ResolutionID: uuid.New(), Status: resolutions.StatusApproved}
	}
	proposed := func(no int) ProceduralItem {
		return ProceduralItem{ItemNo: no, ResolutionID: uuid.New(), Status: resolutions.StatusProposed}
	}

	status := EvaluateGate([]ProceduralItem{approved(1), approved(2), approved(3)})
	require.True(t, status.Completed)
	require.Empty(t, status.Missing)
	require.Len(t, status.Items, 3)

	status = EvaluateGate([]ProceduralItem{approved(1), proposed(2), {ItemNo: 3, Status: resolutions.StatusRejected}})
	require.False(t, status.Completed)
	require.Equal(t, []int{2, 3}, status.Missing)
	require.True(t, status.Items[0].Approved)
	require.False(t, status.Items[1].Approved)

	status = EvaluateGate([]ProceduralItem{approved(3)})
	require.Equal(t, []int{1, 2}, status.Missing)
	require.Len(t, status.Items, 3)

	status = EvaluateGate(nil)
	require.Equal(t, []int{1, 2, 3}, status.Missing)
}

func TestProceduralSequenceIncomplete_Details(t *testing.T) {
	err := ErrProceduralSequenceIncomplete.WithDetails(map[string]any{"missing_items": []int{2}})
	require.ErrorIs(t, err, ErrProceduralSequenceIncomplete)
	require.Equal(t, apperrors.KindPrecondition, apperrors.KindOf(err))
	require.Equal(t, []int{2}, err.Details["missing_items"])
	require.Nil(t, ErrProceduralSequenceIncomplete.Details)
}
