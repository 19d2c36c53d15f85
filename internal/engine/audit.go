package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gundog/internal/llm"
	"gundog/internal/logging"
	"gundog/internal/prompt"
	"gundog/internal/reconcile"
	"gundog/internal/schema"
	"gundog/internal/session"
	"gundog/internal/store"
)

// AuditExecutor runs audit-variant turns for one session. Turns carry no
// clock; an audit ends when every checklist group is fully satisfied.
type AuditExecutor struct {
	mu sync.Mutex
	wg sync.WaitGroup

	checklist *schema.Checklist
	sess      *session.Session
	client    llm.Client
	rec       *reconcile.AuditReconciler
	snaps     store.SnapshotStore

	chat        llm.ChatSession
	activeGroup string
}

// NewAuditExecutor wires an audit executor. snaps may be nil.
func NewAuditExecutor(c *schema.Checklist, sess *session.Session, client llm.Client, snaps store.SnapshotStore) *AuditExecutor {
	return &AuditExecutor{checklist: c, sess: sess, client: client, rec: reconcile.NewAuditReconciler(c), snaps: snaps}
}

// Session exposes the executor's session for read access.
func (e *AuditExecutor) Session() *session.Session { return e.sess }

// SetActiveGroup selects the criterion group the next turns validate
// against.
func (e *AuditExecutor) SetActiveGroup(id string) error {
	if _, ok := e.checklist.Group(id); !ok {
		return fmt.Errorf("unknown criterion group %q", id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activeGroup = id
	logging.Engine("active audit group set to %q", id)
	return nil
}

// ActiveGroup returns the current group, falling back to the first group
// that still has open criteria.
func (e *AuditExecutor) ActiveGroup() *schema.CSF {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeGroupLocked()
}

func (e *AuditExecutor) activeGroupLocked() *schema.CSF {
	if e.activeGroup != "" {
		if g, ok := e.checklist.Group(e.activeGroup); ok {
			return g
		}
	}
	ledger := e.sess.Ledger()
	scores := e.sess.Scores()
	for _, g := range e.checklist.Groups() {
		if !groupSatisfied(g, ledger, scores) {
			return g
		}
	}
	return e.checklist.Groups()[0]
}

func groupSatisfied(g *schema.CSF, ledger map[string]bool, scores map[string]float64) bool {
	if g.Mode == schema.ModeProportional {
		return scores[g.ID] >= 1.0
	}
	for _, it := range g.Items {
		if !ledger[it.Text] {
			return false
		}
	}
	return true
}

// Resume hydrates the session from a stored snapshot, if one exists.
func (e *AuditExecutor) Resume(ctx context.Context) (bool, error) {
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
	return true, nil
}

func (e *AuditExecutor) ensureChat(ctx context.Context) error {
	if e.chat != nil {
		return nil
	}
	chat, err := e.client.StartChat(ctx, prompt.AuditInstruction(e.checklist), historyTurns(e.sess.Log()))
	if err != nil {
		return err
	}
	e.chat = chat
	return nil
}

func (e *AuditExecutor) auditView(g *schema.CSF) prompt.AuditView {
	view := prompt.AuditView{
		GroupID:   g.ID,
		GroupName: g.Name,
		Mode:      g.Mode,
		Score:     e.sess.Score(g.ID),
	}
	ledger := e.sess.Ledger()
	for _, it := range g.Items {
		view.Items = append(view.Items, prompt.ItemState{Text: it.Text, Done: ledger[it.Text]})
	}
	return view
}

// Command runs one evaluator turn against the active group. A failed backend
// call leaves the session untouched.
func (e *AuditExecutor) Command(ctx context.Context, observations string) (reconcile.TurnOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess.Terminal() {
		return reconcile.TurnOutcome{}, ErrSessionComplete
	}
	if err := e.ensureChat(ctx); err != nil {
		return reconcile.TurnOutcome{}, err
	}

	group := e.activeGroupLocked()
	raw, err := e.chat.Send(ctx, prompt.AuditTurnPrompt(e.auditView(group), observations))
	if err != nil {
		return reconcile.TurnOutcome{}, err
	}

	e.sess.MarkStarted()
	e.sess.AppendMessage(session.Message{Role: session.RoleCommander, Text: observations})
	outcome := e.rec.Apply(e.sess, raw, group.ID)
	e.saveAsync()
	return outcome, nil
}

// ReadinessScore returns the current weighted score and its maximum.
func (e *AuditExecutor) ReadinessScore() (float64, float64) {
	return e.checklist.WeightedScore(e.sess.Ledger(), e.sess.Scores()), e.checklist.MaxScore()
}

// Abort wipes the stored snapshot and resets the session for a fresh run.
func (e *AuditExecutor) Abort(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.snaps != nil {
		if err := e.snaps.Delete(ctx, e.sess.Identity(), e.sess.Scenario()); err != nil {
			return err
		}
	}
	e.sess.Reset()
	e.chat = nil
	e.activeGroup = ""
	return nil
}

// Close waits for in-flight saves to finish.
func (e *AuditExecutor) Close() {
	e.wg.Wait()
}

func (e *AuditExecutor) saveAsync() {
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
