// Package session holds the mutable facts ledger for one operator session:
// unit locations, objective/criteria flags, discovered POIs, the dialogue
// log, the mission clock and score counters.
//
// Mutation discipline: only the reconciler and the turn executor call the
// mutating methods. Everything else reads through accessors. There is no
// package-level state; a Session is constructed per identity and passed by
// reference (switching identity means constructing a fresh Session).
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"gundog/internal/logging"
)

// DefaultRoster is the fixed set of controllable units in the mission
// variant.
var DefaultRoster = []string{"SAM", "DAVE", "MIKE"}

// Defaults for a fresh session.
const (
	DefaultClock      = 60   // minutes on the mission clock
	DefaultViability  = 100  // squad viability percentage
	DefaultEfficiency = 1000 // starting efficiency score
)

// Role tags a log entry's author.
type Role string

const (
	RoleCommander Role = "commander"
	RoleSquad     Role = "squad"
	RoleSystem    Role = "system"
)

// Message is one entry in the ordered, append-only dialogue log. Squad
// entries carry the per-speaker split; system entries (briefings, recon
// reports) carry plain text.
type Message struct {
	Role      Role              `json:"role"`
	Text      string            `json:"text,omitempty"`
	Speakers  map[string]string `json:"speakers,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Session is the aggregate root for one operator's scenario state.
type Session struct {
	mu sync.RWMutex

	id       string
	identity string
	scenario string

	locations map[string]string
	idleTurns map[string]int
	ledger    map[string]bool // fixed key set, monotonic values
	scores    map[string]float64

	discovered []string // POI ids, append-only
	discSet    map[string]bool

	messages []Message

	clock      int
	clockStart int
	viability  int
	efficiency int

	terminal bool
	elapsed  int
	started  bool
	aar      string
}

// New constructs a fresh session for an identity. The ledger key set is
// fixed at construction; unknown keys are rejected by MarkSatisfied.
func New(identity, scenario string, roster []string, ledger map[string]bool) *Session {
	s := &Session{
		id:         uuid.NewString(),
		identity:   identity,
		scenario:   scenario,
		locations:  make(map[string]string, len(roster)),
		idleTurns:  make(map[string]int, len(roster)),
		ledger:     make(map[string]bool, len(ledger)),
		scores:     make(map[string]float64),
		discSet:    make(map[string]bool),
		clock:      DefaultClock,
		clockStart: DefaultClock,
		viability:  DefaultViability,
		efficiency: DefaultEfficiency,
	}
	for _, unit := range roster {
		s.locations[unit] = "Insertion Point"
		s.idleTurns[unit] = 0
	}
	for k, v := range ledger {
		s.ledger[k] = v
	}
	logging.Session("session %s created for %s/%s", s.id, identity, scenario)
	return s
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// Identity returns the owning operator identity.
func (s *Session) Identity() string { return s.identity }

// Scenario returns the scenario id this session runs.
func (s *Session) Scenario() string { return s.scenario }

// Location returns a unit's current location name.
func (s *Session) Location(unit string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loc, ok := s.locations[unit]
	return loc, ok
}

// Locations returns a copy of the unit location map.
func (s *Session) Locations() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.locations))
	for k, v := range s.locations {
		out[k] = v
	}
	return out
}

// KnownUnit reports whether unit is part of this session's roster.
func (s *Session) KnownUnit(unit string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.locations[unit]
	return ok
}

// SetLocation binds a unit to a location string. Unknown units are ignored.
func (s *Session) SetLocation(unit, location string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.locations[unit]; !ok {
		return
	}
	if s.locations[unit] == location {
		s.idleTurns[unit]++
	} else {
		s.idleTurns[unit] = 0
	}
	s.locations[unit] = location
}

// LedgerEntry returns the satisfied flag for an objective/criterion key.
func (s *Session) LedgerEntry(key string) (bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.ledger[key]
	return v, ok
}

// Ledger returns a copy of the full ledger.
func (s *Session) Ledger() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(s.ledger))
	for k, v := range s.ledger {
		out[k] = v
	}
	return out
}

// MarkSatisfied flips a ledger entry true. Returns true only on the first
// false→true transition; already-true entries and keys outside the fixed
// set are no-ops. The flag never reverts.
func (s *Session) MarkSatisfied(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.ledger[key]
	if !ok || v {
		return false
	}
	s.ledger[key] = true
	return true
}

// Score returns the stored readiness score for a criterion group.
func (s *Session) Score(groupID string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scores[groupID]
}

// Scores returns a copy of all stored readiness scores.
func (s *Session) Scores() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.scores))
	for k, v := range s.scores {
		out[k] = v
	}
	return out
}

// SetScore replaces (never accumulates) the readiness score for a group.
func (s *Session) SetScore(groupID string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[groupID] = value
}

// IsDiscovered reports whether a POI has been revealed.
func (s *Session) IsDiscovered(poiID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.discSet[poiID]
}

// Discovered returns the append-only discovery list.
func (s *Session) Discovered() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.discovered))
	copy(out, s.discovered)
	return out
}

// MarkDiscovered adds a POI to the discovered set. Returns true only on
// first discovery.
func (s *Session) MarkDiscovered(poiID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.discSet[poiID] {
		return false
	}
	s.discSet[poiID] = true
	s.discovered = append(s.discovered, poiID)
	return true
}

// AppendMessage adds an entry to the dialogue log.
func (s *Session) AppendMessage(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.messages = append(s.messages, msg)
}

// Log returns a copy of the dialogue log.
func (s *Session) Log() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Clock returns the minutes remaining.
func (s *Session) Clock() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clock
}

// TickClock decrements the mission clock by one minute, clamped at zero.
func (s *Session) TickClock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clock > 0 {
		s.clock--
	}
}

// Viability returns the squad viability percentage.
func (s *Session) Viability() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viability
}

// Efficiency returns the current efficiency score.
func (s *Session) Efficiency() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.efficiency
}

// AddEfficiency applies a fixed score delta.
func (s *Session) AddEfficiency(delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.efficiency += delta
}

// Terminal reports whether the scenario has completed.
func (s *Session) Terminal() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.terminal
}

// Elapsed returns the minutes consumed, frozen at completion.
func (s *Session) Elapsed() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.elapsed
}

// Complete freezes the clock into an elapsed value and sets the terminal
// flag. Idempotent.
func (s *Session) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal {
		return
	}
	s.terminal = true
	s.elapsed = s.clockStart - s.clock
	logging.Session("session %s terminal after %d minutes", s.id, s.elapsed)
}

// Started reports whether the first turn has run.
func (s *Session) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// MarkStarted records that the scenario is underway.
func (s *Session) MarkStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
}

// AAR returns the after-action report, if generated.
func (s *Session) AAR() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aar
}

// SetAAR stores the after-action report.
func (s *Session) SetAAR(report string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aar = report
}

// Hydrate restores persisted fields into this session. Used once at session
// start when a snapshot exists; ledger keys outside the fixed set are
// dropped rather than accumulated.
func (s *Session) Hydrate(locations map[string]string, ledger map[string]bool, scores map[string]float64, clock int, messages []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for unit, loc := range locations {
		if _, ok := s.locations[unit]; ok && loc != "" {
			s.locations[unit] = loc
		}
	}
	for k, v := range ledger {
		if _, ok := s.ledger[k]; ok && v {
			s.ledger[k] = true
		}
	}
	for k, v := range scores {
		s.scores[k] = v
	}
	if clock >= 0 && clock <= s.clockStart {
		s.clock = clock
	}
	if len(messages) > 0 {
		s.messages = append([]Message(nil), messages...)
		s.started = true
	}
	logging.Session("session %s hydrated: clock=%d, %d messages", s.id, s.clock, len(messages))
}

// Reset clears everything except identity, returning the session to its
// initial state. Ledger entries revert to false (a reset is a new scenario
// run, not an in-run mutation, so monotonicity is not violated).
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for unit := range s.locations {
		s.locations[unit] = "Insertion Point"
		s.idleTurns[unit] = 0
	}
	for k := range s.ledger {
		s.ledger[k] = false
	}
	s.scores = make(map[string]float64)
	s.discovered = nil
	s.discSet = make(map[string]bool)
	s.messages = nil
	s.clock = s.clockStart
	s.viability = DefaultViability
	s.efficiency = DefaultEfficiency
	s.terminal = false
	s.elapsed = 0
	s.started = false
	s.aar = ""
	logging.Session("session %s reset", s.id)
}
