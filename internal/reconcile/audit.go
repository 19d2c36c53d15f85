package reconcile

import (
	"strings"

	"gundog/internal/logging"
	"gundog/internal/schema"
	"gundog/internal/session"
)

// AuditReconciler merges audit-variant model output into the session:
// per-item validations, whole-group validation and proportional readiness
// scores, always scoped to the active criterion group.
type AuditReconciler struct {
	checklist *schema.Checklist
}

// NewAuditReconciler builds a reconciler over an immutable checklist tree.
func NewAuditReconciler(c *schema.Checklist) *AuditReconciler {
	return &AuditReconciler{checklist: c}
}

// Apply runs the reconciliation pass for one raw auditor response against
// the active group. Item texts are matched literally against the group's
// items; anything else is dropped. A SCORE tag only lands on proportional
// groups and replaces the previous value. The session turns terminal when
// every group in the checklist is fully satisfied.
func (r *AuditReconciler) Apply(sess *session.Session, raw, activeGroupID string) TurnOutcome {
	tags := ParseTags(raw)
	outcome := TurnOutcome{}

	group, ok := r.checklist.Group(activeGroupID)
	if !ok {
		logging.EngineWarn("active group %q not in checklist, tags dropped", activeGroupID)
	} else {
		items := tags.ItemsMet
		if tags.ValidateAll {
			items = nil
			for _, it := range group.Items {
				items = append(items, it.Text)
			}
		}
		for _, text := range items {
			text = strings.TrimSpace(text)
			if !group.HasItem(text) {
				logging.EngineWarn("dropping validation for text outside group %q: %q", group.ID, text)
				continue
			}
			if sess.MarkSatisfied(text) {
				outcome.ItemsSet = append(outcome.ItemsSet, text)
				logging.Engine("criterion met in %q: %q", group.ID, text)
			}
		}

		if tags.Score != nil {
			if group.Mode != schema.ModeProportional {
				logging.EngineWarn("dropping score for non-proportional group %q", group.ID)
			} else {
				v := clamp01(*tags.Score)
				sess.SetScore(group.ID, v)
				outcome.ScoreSet = &v
				logging.Engine("group %q readiness set to %.2f", group.ID, v)
			}
		}
	}

	if r.checklist.FullySatisfied(sess.Ledger(), sess.Scores()) {
		sess.Complete()
		outcome.Terminal = true
	}

	outcome.CleanText = CleanText(raw)
	sess.AppendMessage(session.Message{
		Role: session.RoleSquad,
		Text: outcome.CleanText,
	})

	return outcome
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
