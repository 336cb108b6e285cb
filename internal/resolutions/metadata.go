package resolutions

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Metadata keys are flat and dotted. The two families never overlap.
const (
	ProjectPrefix   = "project."
	IndicatorPrefix = "indicator."

	KeyProjectPhase         = ProjectPrefix + "phase"
	KeyProjectCode          = ProjectPrefix + "code"
	KeyProjectTags          = ProjectPrefix + "tags"
	KeyProjectBudgetPlanned = ProjectPrefix + "budget_planned"

	KeyIndicatorProgress      = IndicatorPrefix + "progress"
	KeyIndicatorBudgetPlanned = IndicatorPrefix + "budget_planned"
	KeyIndicatorBudgetSpent   = IndicatorPrefix + "budget_spent"
	KeyIndicatorUpdatedAt     = IndicatorPrefix + "updated_at"
	KeyIndicatorUpdatedBy     = IndicatorPrefix + "updated_by"
)

// ProjectInit is the input to InitializeProject.
type ProjectInit struct {
	Phase         string   `json:"phase" validate:"required,max=64"`
	Code          *string  `json:"code,omitempty" validate:"omitempty,max=64"`
	Tags          []string `json:"tags,omitempty" validate:"omitempty,max=20,dive,max=40"`
	BudgetPlanned *float64 `json:"budget_planned,omitempty"`
}

// IndicatorUpdate is the input to UpdateIndicator. Nil fields are left as they are.
type IndicatorUpdate struct {
	Progress      *float64 `json:"progress,omitempty"`
	BudgetPlanned *float64 `json:"budget_planned,omitempty"`
	BudgetSpent   *float64 `json:"budget_spent,omitempty"`
}

// HasKeys reports whether meta holds any key of the given family.
func HasKeys(meta map[string]any, prefix string) bool {
	for k := range meta {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// ProjectPatch validates in and returns the project.* keys to merge.
func ProjectPatch(in ProjectInit) (map[string]any, error) {
	phase := strings.TrimSpace(in.Phase)
	if phase == "" {
		return nil, ErrPhaseRequired
	}

	patch := map[string]any{KeyProjectPhase: phase}
	if in.Code != nil {
		if code := strings.TrimSpace(*in.Code); code != "" {
			patch[KeyProjectCode] = code
		}
	}
	if len(in.Tags) > 0 {
		tags := make([]string, 0, len(in.Tags))
		for _, tag := range in.Tags {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
		patch[KeyProjectTags] = tags
	}
	if in.BudgetPlanned != nil {
		if !finite(*in.BudgetPlanned) || *in.BudgetPlanned < 0 {
			return nil, ErrNegativeBudget
		}
		patch[KeyProjectBudgetPlanned] = *in.BudgetPlanned
	}
	return patch, nil
}

// IndicatorPatch validates in and returns the indicator.* keys to merge.
func IndicatorPatch(in IndicatorUpdate, by uuid.UUID, now time.Time) (map[string]any, error) {
	if in.Progress == nil && in.BudgetPlanned == nil && in.BudgetSpent == nil {
		return nil, ErrEmptyIndicator
	}

	patch := map[string]any{
		KeyIndicatorUpdatedAt: now.UTC().Format(time.RFC3339),
		KeyIndicatorUpdatedBy: by.String(),
	}
	if in.Progress != nil {
		p := *in.Progress
		if !finite(p) || p < 0 || p > 1 {
			return nil, ErrProgressOutOfRange.WithDetails(map[string]any{"progress": p})
		}
		patch[KeyIndicatorProgress] = p
	}
	for key, v := range map[string]*float64{
		KeyIndicatorBudgetPlanned: in.BudgetPlanned,
		KeyIndicatorBudgetSpent:   in.BudgetSpent,
	} {
		if v == nil {
			continue
		}
		if !finite(*v) || *v < 0 {
			return nil, ErrNegativeBudget.WithDetails(map[string]any{"field": strings.TrimPrefix(key, IndicatorPrefix)})
		}
		patch[key] = *v
	}
	return patch, nil
}
