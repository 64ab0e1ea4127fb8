package engine

import (
	"context"

	"requestline/internal/identity"
	"requestline/internal/workflow"
)

// SweepResult summarizes one expiry pass.
type SweepResult struct {
	Candidates int `json:"candidates"`
	Expired    int `json:"expired"`
	Failed     int `json:"failed"`
}

// openStatuses collects every status any registered type classifies open.
func (e Engine) openStatuses() []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range e.RequestTypes() {
		for _, s := range t.Statuses {
			if s.Kind == workflow.Open && !seen[s.Name] {
				seen[s.Name] = true
				out = append(out, s.Name)
			}
		}
	}
	return out
}

// ExpireDue drives every open request whose expires_at has passed through
// the expire action. Each request is its own unit of work: one failure is
// logged and skipped, never aborting the rest of the sweep.
func (e Engine) ExpireDue(ctx context.Context) (SweepResult, error) {
	due, err := e.Repo.ListExpired(ctx, e.now(), e.openStatuses())
	if err != nil {
		return SweepResult{}, err
	}
	result := SweepResult{Candidates: len(due)}
	system := identity.SystemIdentity()
	for _, r := range due {
		if _, err := e.ExecuteAction(ctx, system, r.ID, "expire", nil); err != nil {
			result.Failed++
			e.logger().Printf("expire request %s failed: %v", r.ID, err)
			continue
		}
		result.Expired++
	}
	return result, nil
}
