// Package engine drives scenario turns: it compiles the prompt from current
// state, calls the generative backend, and commits the reconciled result.
// A turn is all-or-nothing: if the backend call fails, no session state
// changes and the commander can reissue the same order.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gundog/internal/llm"
	"gundog/internal/logging"
	"gundog/internal/prompt"
	"gundog/internal/reconcile"
	"gundog/internal/schema"
	"gundog/internal/session"
	"gundog/internal/store"
)

// ErrSessionComplete is returned when a command arrives after the scenario
// has reached its terminal state.
var ErrSessionComplete = errors.New("session already complete")

// ExtractionSignal is the developer backdoor: any order containing it ends
// the mission immediately without a backend call.
const ExtractionSignal = "VALHALLA"

const saveTimeout = 10 * time.Second

// Executor runs mission-variant turns for one session.
type Executor struct {
	mu sync.Mutex
	wg sync.WaitGroup

	mission *schema.Mission
	sess    *session.Session
	client  llm.Client
	rec     *reconcile.MissionReconciler
	snaps   store.SnapshotStore // nil disables persistence

	chat llm.ChatSession
}

// NewExecutor wires a mission executor. snaps may be nil, in which case the
// session lives only in memory.
func NewExecutor(m *schema.Mission, sess *session.Session, client llm.Client, snaps store.SnapshotStore) *Executor {
	return &Executor{
		mission: m,
		sess:    sess,
		client:  client,
		rec:     reconcile.NewMissionReconciler(m, session.DefaultRoster),
		snaps:   snaps,
	}
}

// Session exposes the executor's session for read access.
func (e *Executor) Session() *session.Session { return e.sess }

// Resume hydrates the session from a stored snapshot, if one exists.
// Returns true when prior state was restored.
func (e *Executor) Resume(ctx context.Context) (bool, error) {
	if e.snaps == nil {
		return false, nil
	}
	snap, err := e.snaps.Load(ctx, e.sess.Identity(), e.sess.Scenario())
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load snapshot: %w", err)
	}
	e.sess.Hydrate(snap.Locations, snap.Ledger, snap.Scores, snap.Clock, snap.ChatHistory)
	if snap.AAR != "" {
		e.sess.SetAAR(snap.AAR)
	}
	logging.Engine("session resumed for %s/%s at T-%dm", e.sess.Identity(), e.sess.Scenario(), snap.Clock)
	return true, nil
}

func (e *Executor) ensureChat(ctx context.Context) error {
	if e.chat != nil {
		return nil
	}
	chat, err := e.client.StartChat(ctx, prompt.SystemInstruction(e.mission), historyTurns(e.sess.Log()))
	if err != nil {
		return err
	}
	e.chat = chat
	return nil
}

// historyTurns converts the dialogue log into backend history entries.
// System entries (recon reports) are local color and stay out of the model's
// view.
func historyTurns(log []session.Message) []llm.Turn {
	var turns []llm.Turn
	for _, msg := range log {
		switch msg.Role {
		case session.RoleCommander:
			turns = append(turns, llm.Turn{Text: msg.Text})
		case session.RoleSquad:
			turns = append(turns, llm.Turn{FromModel: true, Text: msg.Text})
		}
	}
	return turns
}

// stateView builds the ordered prompt view with the clock already charged
// for this turn.
func (e *Executor) stateView() prompt.StateView {
	clock := e.sess.Clock() - 1
	if clock < 0 {
		clock = 0
	}
	view := prompt.StateView{Clock: clock, Viability: e.sess.Viability()}
	for _, unit := range session.DefaultRoster {
		loc, ok := e.sess.Location(unit)
		if !ok {
			continue
		}
		view.Units = append(view.Units, prompt.UnitState{Unit: unit, Location: loc})
	}
	for _, obj := range e.mission.Objectives {
		done, _ := e.sess.LedgerEntry(obj.ID)
		view.Objectives = append(view.Objectives, prompt.ObjectiveState{ID: obj.ID, Done: done})
	}
	return view
}

// Begin runs the canned opening turn that has the squad report in. No clock
// charge; the mission starts on the first real order.
func (e *Executor) Begin(ctx context.Context) (reconcile.TurnOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess.Terminal() {
		return reconcile.TurnOutcome{}, ErrSessionComplete
	}
	if err := e.ensureChat(ctx); err != nil {
		return reconcile.TurnOutcome{}, err
	}

	view := e.stateView()
	view.Clock = e.sess.Clock()
	raw, err := e.chat.Send(ctx, prompt.TurnPrompt(view, prompt.OpeningOrders))
	if err != nil {
		return reconcile.TurnOutcome{}, err
	}

	e.sess.MarkStarted()
	outcome := e.rec.Apply(e.sess, raw)
	e.saveAsync()
	return outcome, nil
}

// Command runs one commander turn. The clock is charged only when the
// backend responds; a failed call leaves the session untouched.
func (e *Executor) Command(ctx context.Context, orders string) (reconcile.TurnOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess.Terminal() {
		return reconcile.TurnOutcome{}, ErrSessionComplete
	}

	if strings.Contains(strings.ToUpper(orders), ExtractionSignal) {
		logging.Engine("extraction signal received, ending mission")
		e.sess.Complete()
		e.saveAsync()
		return reconcile.TurnOutcome{Terminal: true}, nil
	}

	if err := e.ensureChat(ctx); err != nil {
		return reconcile.TurnOutcome{}, err
	}

	raw, err := e.chat.Send(ctx, prompt.TurnPrompt(e.stateView(), orders))
	if err != nil {
		return reconcile.TurnOutcome{}, err
	}

	// Commit point: the turn happened.
	e.sess.TickClock()
	e.sess.MarkStarted()
	e.sess.AppendMessage(session.Message{Role: session.RoleCommander, Text: orders})
	outcome := e.rec.Apply(e.sess, raw)
	e.saveAsync()
	return outcome, nil
}

// Debrief generates the after-action report, once. Subsequent calls return
// the stored report.
func (e *Executor) Debrief(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if report := e.sess.AAR(); report != "" {
		return report, nil
	}

	report, err := e.client.Generate(ctx, "", prompt.DebriefPrompt(renderTranscript(e.sess.Log())))
	if err != nil {
		return "", err
	}
	e.sess.SetAAR(report)

	if e.snaps != nil {
		saveCtx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := e.snaps.SaveAAR(saveCtx, e.sess.Identity(), e.sess.Scenario(), report); err != nil {
			logging.StoreError("failed to save AAR: %v", err)
		}
	}
	return report, nil
}

func renderTranscript(log []session.Message) string {
	var b strings.Builder
	for _, msg := range log {
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Text)
	}
	return b.String()
}

// FinalRating scores the completed mission: viability carries ten points per
// percent, each elapsed minute costs five, floored at zero.
func (e *Executor) FinalRating() int {
	rating := e.sess.Viability()*10 - e.sess.Elapsed()*5
	if rating < 0 {
		rating = 0
	}
	return rating
}

// Abort wipes the stored snapshot and resets the session for a fresh run.
func (e *Executor) Abort(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.snaps != nil {
		if err := e.snaps.Delete(ctx, e.sess.Identity(), e.sess.Scenario()); err != nil {
			return err
		}
	}
	e.sess.Reset()
	e.chat = nil
	return nil
}

// Close waits for in-flight saves to finish.
func (e *Executor) Close() {
	e.wg.Wait()
}

func (e *Executor) saveAsync() {
	if e.snaps == nil {
		return
	}
	snap := snapshotOf(e.sess)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := e.snaps.SaveState(ctx, snap); err != nil {
			logging.StoreError("failed to save snapshot: %v", err)
		}
	}()
}

func snapshotOf(sess *session.Session) store.Snapshot {
	return store.Snapshot{
		Identity:    sess.Identity(),
		Scenario:    sess.Scenario(),
		ChatHistory: sess.Log(),
		Locations:   sess.Locations(),
		Ledger:      sess.Ledger(),
		Scores:      sess.Scores(),
		Clock:       sess.Clock(),
	}
}
