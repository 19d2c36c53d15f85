package reconcile

import (
	"fmt"
	"strings"

	"gundog/internal/logging"
	"gundog/internal/schema"
	"gundog/internal/session"
)

// EfficiencyBonus is the score delta applied once per objective completion.
const EfficiencyBonus = 150

// DiscoveryEvent records a POI being revealed for the first time.
type DiscoveryEvent struct {
	POIID string
	Name  string
	Intel string
	Image string
}

// TurnOutcome summarizes what one model response did to the session.
type TurnOutcome struct {
	CleanText     string
	Segments      map[string]string // per-speaker utterances, mission variant
	Discoveries   []DiscoveryEvent
	ObjectivesSet []string // objective ids flipped this turn
	ItemsSet      []string // criteria item texts flipped this turn
	ScoreSet      *float64 // readiness score applied this turn
	Terminal      bool
}

// MissionReconciler merges mission-variant model output into the session:
// unit movement, POI discovery, objective completion and the win trigger.
type MissionReconciler struct {
	mission *schema.Mission
	roster  []string
}

// NewMissionReconciler builds a reconciler over an immutable mission tree.
// The roster fixes the unit iteration order so recon reports appear in a
// stable sequence.
func NewMissionReconciler(m *schema.Mission, roster []string) *MissionReconciler {
	return &MissionReconciler{mission: m, roster: roster}
}

// Apply runs the full reconciliation pass for one raw model response:
//
//  1. location bindings for known units (reported strings kept verbatim,
//     even when they match no POI)
//  2. first-visit POI discovery, appending a recon report to the log
//  3. objective flips, each worth a one-time efficiency bonus
//  4. win-trigger scan over the raw text
//
// The cleaned dialogue is appended to the log last, after any recon reports,
// so the transcript reads in causal order.
func (r *MissionReconciler) Apply(sess *session.Session, raw string) TurnOutcome {
	tags := ParseTags(raw)
	outcome := TurnOutcome{}

	for _, b := range tags.Bindings {
		if !sess.KnownUnit(b.Unit) {
			logging.EngineWarn("dropping location report for unknown unit %q", b.Unit)
			continue
		}
		sess.SetLocation(b.Unit, b.Location)
	}

	for _, unit := range r.roster {
		loc, ok := sess.Location(unit)
		if !ok {
			continue
		}
		poi, ok := r.mission.ResolvePOI(loc)
		if !ok || !sess.MarkDiscovered(poi.ID) {
			continue
		}
		ev := DiscoveryEvent{POIID: poi.ID, Name: poi.Name, Intel: poi.Intel, Image: poi.Image}
		outcome.Discoveries = append(outcome.Discoveries, ev)
		sess.AppendMessage(session.Message{
			Role: session.RoleSystem,
			Text: reconReport(poi),
		})
		logging.Engine("POI %q discovered by %s", poi.ID, unit)
	}

	for _, id := range tags.Objectives {
		if !r.mission.KnownObjective(id) {
			logging.EngineWarn("dropping completion report for unknown objective %q", id)
			continue
		}
		if sess.MarkSatisfied(id) {
			sess.AddEfficiency(EfficiencyBonus)
			outcome.ObjectivesSet = append(outcome.ObjectivesSet, id)
			logging.Engine("objective %q complete, efficiency +%d", id, EfficiencyBonus)
		}
	}

	trigger := r.mission.Intent.Win.TriggerText
	if trigger != "" && strings.Contains(strings.ToLower(raw), strings.ToLower(trigger)) {
		sess.Complete()
		outcome.Terminal = true
	}

	outcome.CleanText = CleanText(raw)
	outcome.Segments = SplitDialogue(outcome.CleanText, r.roster)
	sess.AppendMessage(session.Message{
		Role:     session.RoleSquad,
		Text:     outcome.CleanText,
		Speakers: outcome.Segments,
	})

	return outcome
}

func reconReport(poi *schema.POI) string {
	var b strings.Builder
	fmt.Fprintf(&b, "RECON UPLINK // %s\n\n%s", strings.ToUpper(poi.Name), poi.Intel)
	if poi.Image != "" {
		fmt.Fprintf(&b, "\n\n[imagery: %s]", poi.Image)
	}
	return b.String()
}
