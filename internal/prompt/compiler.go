// Package prompt compiles deterministic prompt text from schema and session
// state. Compilation is pure string assembly: same inputs, byte-identical
// output. All state arrives pre-ordered in slices so no map iteration order
// can leak into the prompt.
package prompt

import (
	"fmt"
	"strings"

	"gundog/internal/schema"
)

// UnitState is one unit's position for the state line, in roster order.
type UnitState struct {
	Unit     string
	Location string
}

// ObjectiveState is one ledger entry for the state line, in schema order.
type ObjectiveState struct {
	ID   string
	Done bool
}

// StateView is the ordered snapshot the turn prompt is compiled from.
type StateView struct {
	Clock      int
	Viability  int
	Units      []UnitState
	Objectives []ObjectiveState
}

// SystemInstruction compiles the session-opening instruction for the mission
// variant: theater briefing, canonical location vocabulary, behavioral
// protocols and the suffix-tag contract.
func SystemInstruction(m *schema.Mission) string {
	var locations strings.Builder
	for _, poi := range m.POIs {
		fmt.Fprintf(&locations, "- %s (Aliases: %s)\n", poi.Name, poi.Aliases)
	}
	win := m.Intent.Win

	return fmt.Sprintf(`THEATER: %s
SITUATION: %s
CONSTRAINTS: %s
CANONICAL LOCATIONS:
%s
YOU ARE: The tactical multiplexer for Gundogs PMC.

OPERATIONAL PROTOCOLS:
1. BANTER: Operatives should speak like a tight-knit PMC unit. Use dark humor, cynical observations about the "Agency," and coffee-related complaints.
2. SUPPORT REQUESTS: If a task is outside an operative's specialty, they must NOT succeed alone. They should describe the obstacle and explicitly ask for the specific teammate.
3. COORDINATION: Encourage "Combined Arms" solutions. Dave provides security while Mike hacks; Sam distracts the guards while Dave sneaks past.
4. INITIATIVE & AUTONOMY: Operatives will not move to a new POI unless explicitly cleared by the Commander. The role of the team is "able executors" as opposed to "proactive operators."

STRICT OPERATIONAL RULES:
1. LOCATIONAL ADHERENCE: You only recognize canonical locations.
2. DATA SUFFIX: Every response MUST end with a data block:
   [LOC_DATA: SAM=Canonical Name, DAVE=Canonical Name, MIKE=Canonical Name]
   [OBJ_DATA: obj_id=TRUE/FALSE]
3. VOICE TONE: SAM (Professional, arch), DAVE (Laidback, laconic), MIKE (Geek).

VICTORY CONDITIONS:
- TARGET ITEM: %s
- TARGET LOCATION: %s
- CRITICAL: When the squad confirms the %s has reached the %s, you MUST output this exact phrase in your dialogue: "%s"
- NOTE: You have the authority to trigger this whenever the handover is deemed to be complete, regardless of previous task status.

CRITICAL: You are the authoritative mission ledger. As soon as an operative reports completing a task, you MUST append [OBJ_DATA: obj_id=TRUE] to the very end of your response. Do not wait for the Commander to acknowledge it.

COMMUNICATION ARCHITECTURE:
1. MULTI-UNIT REPORTING: Every response MUST include a SITREP from all three operatives (SAM, DAVE, MIKE).
2. FORMAT: Use bold headers for each unit.
3. PERSISTENCE: Even if an operative is idle, they should comment on their surroundings, complain about the local conditions, or respond to their teammates' banter.`,
		m.Intent.Theater, m.Intent.Situation, m.Intent.Constraints, locations.String(),
		win.TargetItem, win.TargetLocation, win.TargetItem, win.TargetLocation, win.TriggerText)
}

// TurnPrompt compiles the enriched per-turn prompt: current state header,
// protocol reminder, the commander's verbatim orders and the response
// contract.
func TurnPrompt(view StateView, orders string) string {
	units := make([]string, len(view.Units))
	for i, u := range view.Units {
		units[i] = fmt.Sprintf("%s@%s", u.Unit, u.Location)
	}
	objectives := make([]string, len(view.Objectives))
	for i, o := range view.Objectives {
		status := "TODO"
		if o.Done {
			status = "DONE"
		}
		objectives[i] = fmt.Sprintf("%s:%s", o.ID, status)
	}

	return fmt.Sprintf(`[SYSTEM_STATE] Time:%dm | Viability:%d%% | Locations:%s | Objectives:%s
[PROTOCOL_REMINDER] Squad is currently in 'Able Executor' mode. Do not change locations without authorization.
[COMMANDER_ORDERS] %s

[MANDATORY_RESPONSE_GUIDE]
1. Direct Dialogue: Provide SITREPs for SAM, DAVE, and MIKE.
2. Data Suffix: You MUST end with exactly:
   [LOC_DATA: SAM=Loc, DAVE=Loc, MIKE=Loc]
   [OBJ_DATA: obj_id=TRUE] (Only if a task was just finished!)`,
		view.Clock, view.Viability, strings.Join(units, ", "), strings.Join(objectives, ", "), orders)
}

// OpeningOrders is the canned first command that kicks off a mission.
const OpeningOrders = "Team is at the insertion point. Report in."

// DebriefPrompt compiles the after-action review request over a rendered
// transcript.
func DebriefPrompt(transcript string) string {
	return fmt.Sprintf(`Act as a Senior Tactical Officer conducting an After-Action Review (AAR) of a Mission Commander.
Analyze the user's tactical commands in these logs: %s

Focus EXCLUSIVELY on the Commander's performance in these areas:
1. MULTITASKING: Did they keep all three units (Sam, Dave, Mike) engaged, or were units left idle?
2. INITIATIVE: Did the Commander push the pace, or were they reactive to the squad's banter?
3. CLARITY: Were orders direct and objective-oriented, or vague?
4. COORDINATION: Did they effectively use "Combined Arms" (e.g., ordering security while hacking)?

Rate the Commander on:
- Command Presence (Courage/Determination in decision making).
- Operational Efficiency (Time vs. Objective completion).

Provide one 'Sustained' (Leadership strength) and one 'Improve' (Command advice).
End with a traditional Royal Marine sign-off.`, transcript)
}
