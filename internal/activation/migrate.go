package activation

import (
	"errors"
	"fmt"
	"maps"

	"github.com/aliuyar1234/govern/internal/orgs"
)

const (
	nsFact       = "fact"
	nsGovernance = "governance"
	keyProposed  = "proposed"
	keyPreOrg    = "pre_org"
)

func subMap(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	sub, _ := m[key].(map[string]any)
	return sub
}

// ProposedAnswers returns governance.proposed, or nil.
func ProposedAnswers(meta map[string]any) map[string]any {
	return subMap(subMap(meta, nsGovernance), keyProposed)
}

// IsProvisional reports whether fact.pre_org is true.
func IsProvisional(meta map[string]any) bool {
	pre, _ := subMap(meta, nsFact)[keyPreOrg].(bool)
	return pre
}

// MigrateGovernance returns a copy of meta with governance.proposed merged
// into governance (proposed wins), governance.proposed removed and
// fact.pre_org removed. meta itself is not modified.
func MigrateGovernance(meta map[string]any) (map[string]any, error) {
	proposed := ProposedAnswers(meta)
	if len(proposed) == 0 {
		return nil, ErrNothingToMigrate
	}

	out := maps.Clone(meta)

	governance := maps.Clone(subMap(meta, nsGovernance))
	delete(governance, keyProposed)
	maps.Copy(governance, proposed)
	out[nsGovernance] = governance

	if fact := subMap(meta, nsFact); fact != nil {
		fact = maps.Clone(fact)
		delete(fact, keyPreOrg)
		if len(fact) == 0 {
			delete(out, nsFact)
		} else {
			out[nsFact] = fact
		}
	}
	return out, nil
}

var errActivationNotVisible = errors.New("activation not visible on re-read")

// VerifyActivated checks the observable result of an activation.
func VerifyActivated(org *orgs.Org) error {
	var problems []string
	if org.Status != orgs.StatusActive {
		problems = append(problems, "status="+string(org.Status))
	}
	if _, ok := subMap(org.Metadata, nsGovernance)[keyProposed]; ok {
		problems = append(problems, "governance.proposed present")
	}
	if _, ok := subMap(org.Metadata, nsFact)[keyPreOrg]; ok {
		problems = append(problems, "fact.pre_org present")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %v", errActivationNotVisible, problems)
	}
	return nil
}
