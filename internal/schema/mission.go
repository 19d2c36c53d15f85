// Package schema loads the static scenario definitions: the mission map
// (points of interest, objectives, win condition) and the audit checklist
// (category → critical success factor → criteria items). Loaded trees are
// immutable and shared read-only by the prompt compiler and the reconciler.
package schema

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"

	"gundog/internal/logging"
)

// InsertionPoint is the sentinel location every unit starts at. It is not
// required to be a POI in the mission map.
const InsertionPoint = "Insertion Point"

// POI is a point of interest on the tactical map. Immutable after load.
type POI struct {
	ID      string
	Name    string // canonical location name, the vocabulary the model must use
	Lat     float64
	Lon     float64
	Image   string
	Intel   string
	Aliases string // comma-separated alternates, surfaced in the system instruction
}

// WinCondition describes the scenario completion contract.
type WinCondition struct {
	TargetItem     string
	TargetLocation string
	// TriggerText is the literal phrase whose appearance anywhere in a model
	// response terminates the mission.
	TriggerText string
}

// Intent holds the scenario's static briefing facts.
type Intent struct {
	Theater     string
	Situation   string
	Constraints string
	Win         WinCondition
}

// Objective is a mission task tracked in the ledger.
type Objective struct {
	ID   string
	Done bool // initial status from the schema, normally false
}

// Mission is the loaded mission tree plus derived lookup indexes.
type Mission struct {
	ID         string
	Intent     Intent
	POIs       []POI
	Objectives []Objective

	nameIndex map[string]*POI // lower(name) -> POI
	objIndex  map[string]bool
}

// XML wire types for the mission resource.
type missionXML struct {
	XMLName xml.Name  `xml:"mission"`
	ID      string    `xml:"id,attr"`
	Intent  intentXML `xml:"intent"`
	POIs    []poiXML  `xml:"poi"`
	Tasks   []taskXML `xml:"task"`
}

type intentXML struct {
	Theater     string  `xml:"theater"`
	Situation   string  `xml:"situation"`
	Constraints string  `xml:"constraints"`
	Win         *winXML `xml:"win_condition"`
}

type winXML struct {
	TargetItem     string `xml:"target_item"`
	TargetLocation string `xml:"target_location"`
	TriggerText    string `xml:"trigger_text"`
}

type poiXML struct {
	ID      string   `xml:"id,attr"`
	Lat     *float64 `xml:"lat"`
	Lon     *float64 `xml:"lon"`
	Image   string   `xml:"image"`
	Name    string   `xml:"name"`
	Intel   string   `xml:"intel"`
	Aliases string   `xml:"aliases"`
}

type taskXML struct {
	ID     string `xml:"id,attr"`
	Status string `xml:"status,attr"`
}

// LoadMission parses a mission XML resource. Any missing required field
// returns a *CorruptionError and no tree.
func LoadMission(path string) (*Mission, error) {
	timer := logging.StartTimer(logging.CategoryBoot, "LoadMission")
	defer timer.Stop()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mission resource: %w", err)
	}
	return ParseMission(path, data)
}

// ParseMission parses mission XML from memory. The resource name is used for
// error reporting only.
func ParseMission(resource string, data []byte) (*Mission, error) {
	var raw missionXML
	if err := xml.Unmarshal(data, &raw); err != nil {
		return nil, corrupt(resource, "not valid XML: %v", err)
	}

	if raw.Intent.Win == nil {
		return nil, corrupt(resource, "intent missing win_condition")
	}
	win := raw.Intent.Win
	if win.TargetItem == "" || win.TargetLocation == "" || win.TriggerText == "" {
		return nil, corrupt(resource, "win_condition requires target_item, target_location and trigger_text")
	}
	if raw.Intent.Theater == "" || raw.Intent.Situation == "" {
		return nil, corrupt(resource, "intent requires theater and situation")
	}
	if len(raw.POIs) == 0 {
		return nil, corrupt(resource, "mission has no poi entries")
	}

	m := &Mission{
		ID: raw.ID,
		Intent: Intent{
			Theater:     strings.TrimSpace(raw.Intent.Theater),
			Situation:   strings.TrimSpace(raw.Intent.Situation),
			Constraints: strings.TrimSpace(raw.Intent.Constraints),
			Win: WinCondition{
				TargetItem:     strings.TrimSpace(win.TargetItem),
				TargetLocation: strings.TrimSpace(win.TargetLocation),
				TriggerText:    strings.TrimSpace(win.TriggerText),
			},
		},
		nameIndex: make(map[string]*POI, len(raw.POIs)),
		objIndex:  make(map[string]bool, len(raw.Tasks)),
	}
	if m.ID == "" {
		m.ID = "mission"
	}

	for _, p := range raw.POIs {
		if p.ID == "" {
			return nil, corrupt(resource, "poi missing id attribute")
		}
		if p.Lat == nil || p.Lon == nil {
			return nil, corrupt(resource, "poi %q missing lat/lon", p.ID)
		}
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, corrupt(resource, "poi %q missing name", p.ID)
		}
		intel := strings.TrimSpace(p.Intel)
		if intel == "" {
			return nil, corrupt(resource, "poi %q missing intel", p.ID)
		}
		key := strings.ToLower(name)
		if _, dup := m.nameIndex[key]; dup {
			return nil, corrupt(resource, "duplicate poi name %q", name)
		}
		m.POIs = append(m.POIs, POI{
			ID:      p.ID,
			Name:    name,
			Lat:     *p.Lat,
			Lon:     *p.Lon,
			Image:   strings.TrimSpace(p.Image),
			Intel:   intel,
			Aliases: strings.TrimSpace(p.Aliases),
		})
		m.nameIndex[key] = &m.POIs[len(m.POIs)-1]
	}

	for _, tk := range raw.Tasks {
		if tk.ID == "" {
			return nil, corrupt(resource, "task missing id attribute")
		}
		if m.objIndex[tk.ID] {
			return nil, corrupt(resource, "duplicate task id %q", tk.ID)
		}
		m.Objectives = append(m.Objectives, Objective{
			ID:   tk.ID,
			Done: strings.EqualFold(tk.Status, "true"),
		})
		m.objIndex[tk.ID] = true
	}
	if len(m.Objectives) == 0 {
		return nil, corrupt(resource, "mission has no task entries")
	}

	logging.Boot("mission %q loaded: %d POIs, %d objectives", m.ID, len(m.POIs), len(m.Objectives))
	return m, nil
}

// ResolvePOI looks up a location string against the canonical POI names,
// case-insensitively. Returns false for unknown locations (including the
// insertion point sentinel).
func (m *Mission) ResolvePOI(name string) (*POI, bool) {
	p, ok := m.nameIndex[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// KnownObjective reports whether id is part of the scenario's fixed
// objective key set.
func (m *Mission) KnownObjective(id string) bool {
	return m.objIndex[id]
}

// InitialLedger builds the objective ledger with the schema's starting
// statuses. The key set is fixed for the life of the session.
func (m *Mission) InitialLedger() map[string]bool {
	ledger := make(map[string]bool, len(m.Objectives))
	for _, o := range m.Objectives {
		ledger[o.ID] = o.Done
	}
	return ledger
}
