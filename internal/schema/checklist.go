package schema

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"

	"gundog/internal/logging"
)

// EvalMode selects how a criterion group is scored.
type EvalMode int

const (
	// ModeBinary scores a group by the fraction of its items satisfied.
	ModeBinary EvalMode = iota
	// ModeProportional scores a group by its stored readiness value in [0,1].
	ModeProportional
)

func (m EvalMode) String() string {
	if m == ModeProportional {
		return "Proportional"
	}
	return "Binary"
}

// Priority is a display weighting only; it does not affect scoring.
type Priority string

const (
	PriorityMust   Priority = "Must"
	PriorityShould Priority = "Should"
	PriorityCould  Priority = "Could"
)

// Item is a single criterion. Its identity is the literal display text:
// rewording an item in the checklist resource orphans any previously
// recorded validations for it.
type Item struct {
	Text     string
	Priority Priority
}

// CSF is a critical success factor: a weighted group of criteria items.
type CSF struct {
	ID         string
	Name       string
	Mode       EvalMode
	Multiplier float64
	Items      []Item

	itemSet map[string]bool
}

// Category groups CSFs for display.
type Category struct {
	ID     string
	Name   string
	Groups []*CSF
}

// Checklist is the loaded audit tree plus derived indexes.
type Checklist struct {
	ID         string
	Categories []*Category

	byID map[string]*CSF
}

type checklistXML struct {
	XMLName    xml.Name      `xml:"checklist"`
	ID         string        `xml:"id,attr"`
	Categories []categoryXML `xml:"category"`
}

type categoryXML struct {
	ID   string   `xml:"id,attr"`
	Name string   `xml:"name,attr"`
	CSFs []csfXML `xml:"csf"`
}

type csfXML struct {
	ID         string    `xml:"id,attr"`
	Name       string    `xml:"name,attr"`
	Type       string    `xml:"type,attr"`
	Multiplier *float64  `xml:"multiplier,attr"`
	Items      []itemXML `xml:"item"`
}

type itemXML struct {
	Priority string `xml:"priority,attr"`
	Text     string `xml:",chardata"`
}

// LoadChecklist parses an audit checklist XML resource. Any missing required
// field returns a *CorruptionError and no tree.
func LoadChecklist(path string) (*Checklist, error) {
	timer := logging.StartTimer(logging.CategoryBoot, "LoadChecklist")
	defer timer.Stop()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checklist resource: %w", err)
	}
	return ParseChecklist(path, data)
}

// ParseChecklist parses checklist XML from memory.
func ParseChecklist(resource string, data []byte) (*Checklist, error) {
	var raw checklistXML
	if err := xml.Unmarshal(data, &raw); err != nil {
		return nil, corrupt(resource, "not valid XML: %v", err)
	}
	if len(raw.Categories) == 0 {
		return nil, corrupt(resource, "checklist has no categories")
	}

	c := &Checklist{
		ID:   raw.ID,
		byID: make(map[string]*CSF),
	}
	if c.ID == "" {
		c.ID = "checklist"
	}

	for _, cat := range raw.Categories {
		if cat.ID == "" {
			return nil, corrupt(resource, "category missing id attribute")
		}
		category := &Category{ID: cat.ID, Name: cat.Name}
		if category.Name == "" {
			category.Name = cat.ID
		}

		for _, g := range cat.CSFs {
			if g.ID == "" {
				return nil, corrupt(resource, "csf in category %q missing id attribute", cat.ID)
			}
			if g.Multiplier == nil {
				return nil, corrupt(resource, "csf %q missing multiplier", g.ID)
			}
			if *g.Multiplier <= 0 {
				return nil, corrupt(resource, "csf %q multiplier must be positive, got %v", g.ID, *g.Multiplier)
			}
			mode, err := parseMode(g.Type)
			if err != nil {
				return nil, corrupt(resource, "csf %q: %v", g.ID, err)
			}
			if len(g.Items) == 0 {
				return nil, corrupt(resource, "csf %q has no items", g.ID)
			}
			if _, dup := c.byID[g.ID]; dup {
				return nil, corrupt(resource, "duplicate csf id %q", g.ID)
			}

			csf := &CSF{
				ID:         g.ID,
				Name:       g.Name,
				Mode:       mode,
				Multiplier: *g.Multiplier,
				itemSet:    make(map[string]bool, len(g.Items)),
			}
			if csf.Name == "" {
				csf.Name = g.ID
			}
			for _, it := range g.Items {
				text := strings.TrimSpace(it.Text)
				if text == "" {
					return nil, corrupt(resource, "csf %q has an empty item", g.ID)
				}
				if csf.itemSet[text] {
					return nil, corrupt(resource, "csf %q has duplicate item text %q", g.ID, text)
				}
				csf.Items = append(csf.Items, Item{Text: text, Priority: parsePriority(it.Priority)})
				csf.itemSet[text] = true
			}

			category.Groups = append(category.Groups, csf)
			c.byID[g.ID] = csf
		}
		if len(category.Groups) == 0 {
			return nil, corrupt(resource, "category %q has no csf entries", cat.ID)
		}
		c.Categories = append(c.Categories, category)
	}

	logging.Boot("checklist %q loaded: %d categories, %d groups", c.ID, len(c.Categories), len(c.byID))
	return c, nil
}

func parseMode(s string) (EvalMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "binary":
		return ModeBinary, nil
	case "proportional":
		return ModeProportional, nil
	case "":
		return ModeBinary, fmt.Errorf("missing type (Binary|Proportional)")
	default:
		return ModeBinary, fmt.Errorf("unknown type %q", s)
	}
}

func parsePriority(s string) Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "should":
		return PriorityShould
	case "could":
		return PriorityCould
	default:
		return PriorityMust
	}
}

// Group returns the CSF with the given id.
func (c *Checklist) Group(id string) (*CSF, bool) {
	g, ok := c.byID[id]
	return g, ok
}

// Groups returns every CSF in document order.
func (c *Checklist) Groups() []*CSF {
	var out []*CSF
	for _, cat := range c.Categories {
		out = append(out, cat.Groups...)
	}
	return out
}

// HasItem reports whether the literal item text belongs to this group.
func (g *CSF) HasItem(text string) bool {
	return g.itemSet[strings.TrimSpace(text)]
}

// SatisfiedFraction computes the fraction of this group's items marked true
// in the ledger.
func (g *CSF) SatisfiedFraction(ledger map[string]bool) float64 {
	if len(g.Items) == 0 {
		return 0
	}
	met := 0
	for _, it := range g.Items {
		if ledger[it.Text] {
			met++
		}
	}
	return float64(met) / float64(len(g.Items))
}

// InitialLedger builds the criteria ledger keyed by literal item text. The
// key set is fixed for the life of the session.
func (c *Checklist) InitialLedger() map[string]bool {
	ledger := make(map[string]bool)
	for _, g := range c.Groups() {
		for _, it := range g.Items {
			ledger[it.Text] = false
		}
	}
	return ledger
}

// WeightedScore computes the aggregate readiness score. Binary groups
// contribute multiplier × satisfied fraction; proportional groups contribute
// multiplier × their stored readiness value.
func (c *Checklist) WeightedScore(ledger map[string]bool, scores map[string]float64) float64 {
	total := 0.0
	for _, g := range c.Groups() {
		switch g.Mode {
		case ModeProportional:
			total += g.Multiplier * scores[g.ID]
		default:
			total += g.Multiplier * g.SatisfiedFraction(ledger)
		}
	}
	return total
}

// MaxScore is the aggregate score with every group fully satisfied.
func (c *Checklist) MaxScore() float64 {
	total := 0.0
	for _, g := range c.Groups() {
		total += g.Multiplier
	}
	return total
}

// FullySatisfied reports whether every binary item is met and every
// proportional group holds a readiness score of 1.0.
func (c *Checklist) FullySatisfied(ledger map[string]bool, scores map[string]float64) bool {
	for _, g := range c.Groups() {
		switch g.Mode {
		case ModeProportional:
			if scores[g.ID] < 1.0 {
				return false
			}
		default:
			for _, it := range g.Items {
				if !ledger[it.Text] {
					return false
				}
			}
		}
	}
	return true
}
