package prompt

import (
	"fmt"
	"strings"

	"gundog/internal/schema"
)

// ItemState is one criterion's status for the audit state line, in checklist
// order.
type ItemState struct {
	Text string
	Done bool
}

// AuditView is the ordered snapshot an audit turn prompt is compiled from.
type AuditView struct {
	GroupID   string
	GroupName string
	Mode      schema.EvalMode
	Items     []ItemState
	Score     float64
}

// AuditInstruction compiles the session-opening instruction for the audit
// variant: the full checklist vocabulary and the validation tag contract.
func AuditInstruction(c *schema.Checklist) string {
	var sections strings.Builder
	for _, cat := range c.Categories {
		fmt.Fprintf(&sections, "CATEGORY: %s\n", cat.Name)
		for _, g := range cat.Groups {
			fmt.Fprintf(&sections, "- CSF %s (%s, weight %g):\n", g.Name, g.Mode, g.Multiplier)
			for _, it := range g.Items {
				fmt.Fprintf(&sections, "  * [%s] %s\n", it.Priority, it.Text)
			}
		}
	}

	return fmt.Sprintf(`YOU ARE: A senior bid compliance auditor reviewing a supplier's tender response with the evaluator.

CHECKLIST UNDER REVIEW:
%s
AUDIT PROTOCOL:
1. DISCUSSION: Engage with the evaluator's observations about the active criterion group. Be precise and cite the checklist wording.
2. SCOPE: Only the active group named in each turn may be validated. Never validate items from other groups.
3. EVIDENCE: Only mark a criterion met when the evaluator has presented evidence for it.

STRICT AUDIT RULES:
1. TEXTUAL ADHERENCE: Criterion identity is the exact checklist wording. Never paraphrase an item inside a tag.
2. DATA SUFFIX: When criteria are resolved, end your response with tags:
   [ITEM_MET: exact item text] for each criterion newly satisfied
   [VALIDATE: ALL] only when every item in the active group is satisfied
   [SCORE: 0.X] for proportional groups, your current readiness estimate between 0 and 1
3. No tags means no change of record. Omit the suffix entirely when nothing was resolved.`, sections.String())
}

// AuditTurnPrompt compiles the per-turn audit prompt for the active group.
func AuditTurnPrompt(view AuditView, observations string) string {
	items := make([]string, len(view.Items))
	for i, it := range view.Items {
		status := "OPEN"
		if it.Done {
			status = "MET"
		}
		items[i] = fmt.Sprintf("%s:%s", it.Text, status)
	}
	header := fmt.Sprintf("[AUDIT_STATE] ActiveGroup:%s (%s) | Items:%s",
		view.GroupID, view.GroupName, strings.Join(items, " | "))
	if view.Mode == schema.ModeProportional {
		header += fmt.Sprintf(" | Readiness:%.2f", view.Score)
	}

	return fmt.Sprintf(`%s
[EVALUATOR_NOTES] %s

[MANDATORY_RESPONSE_GUIDE]
1. Respond to the evaluator's notes against the active group only.
2. Data Suffix: append [ITEM_MET: exact item text], [VALIDATE: ALL] or [SCORE: 0.X] tags only for criteria resolved this turn.`,
		header, observations)
}
