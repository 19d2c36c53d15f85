package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gundog/internal/llm"
	"gundog/internal/schema"
	"gundog/internal/session"
	"gundog/internal/store"
)

const auditChecklistXML = `<checklist id="bid_audit">
	<category id="cat_technical" name="Technical">
		<csf id="csf_architecture" name="Architecture" type="Binary" multiplier="50">
			<item priority="Must">Solution supports failover</item>
		</csf>
		<csf id="csf_pricing" name="Pricing" type="Proportional" multiplier="20">
			<item priority="Must">Pricing includes maintenance</item>
		</csf>
	</category>
</checklist>`

func newAuditExecutorFixture(t *testing.T, client llm.Client, snaps *memStore) *AuditExecutor {
	t.Helper()
	c, err := schema.ParseChecklist("test", []byte(auditChecklistXML))
	require.NoError(t, err)
	sess := session.New("peter", "bid_audit", nil, c.InitialLedger())
	var backing store.SnapshotStore
	if snaps != nil {
		backing = snaps
	}
	e := NewAuditExecutor(c, sess, client, backing)
	t.Cleanup(e.Close)
	return e
}

func TestAuditActiveGroupFallback(t *testing.T) {
	e := newAuditExecutorFixture(t, &scriptedClient{}, nil)

	// Nothing selected: first unsatisfied group.
	assert.Equal(t, "csf_architecture", e.ActiveGroup().ID)

	// Satisfying the first group moves the fallback on.
	e.Session().MarkSatisfied("Solution supports failover")
	assert.Equal(t, "csf_pricing", e.ActiveGroup().ID)

	// Explicit selection overrides the fallback.
	require.NoError(t, e.SetActiveGroup("csf_architecture"))
	assert.Equal(t, "csf_architecture", e.ActiveGroup().ID)

	assert.Error(t, e.SetActiveGroup("csf_bogus"))
}

func TestAuditCommandValidatesAgainstActiveGroup(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"Confirmed against the tender. [ITEM_MET: Solution supports failover]",
	}}
	snaps := newMemStore()
	e := newAuditExecutorFixture(t, client, snaps)

	outcome, err := e.Command(context.Background(), "Failover design is in section 4.")
	require.NoError(t, err)
	assert.Equal(t, []string{"Solution supports failover"}, outcome.ItemsSet)

	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "ActiveGroup:csf_architecture")
	assert.Contains(t, client.prompts[0], "[EVALUATOR_NOTES] Failover design is in section 4.")

	e.Close()
	assert.Equal(t, 1, snaps.saveCount())
}

func TestAuditCommandFailureMutatesNothing(t *testing.T) {
	e := newAuditExecutorFixture(t, &scriptedClient{}, newMemStore())

	_, err := e.Command(context.Background(), "notes")
	require.ErrorIs(t, err, llm.ErrBackendUnavailable)
	assert.Empty(t, e.Session().Log())
}

func TestAuditTerminalWhenChecklistSatisfied(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"Architecture closed. [VALIDATE: ALL]",
		"Pricing fully covered. [ITEM_MET: Pricing includes maintenance] [SCORE: 1.0]",
	}}
	e := newAuditExecutorFixture(t, client, nil)

	outcome, err := e.Command(context.Background(), "architecture evidence")
	require.NoError(t, err)
	assert.False(t, outcome.Terminal)

	outcome, err = e.Command(context.Background(), "pricing evidence")
	require.NoError(t, err)
	assert.True(t, outcome.Terminal)

	score, max := e.ReadinessScore()
	assert.InDelta(t, 70.0, score, 1e-9)
	assert.InDelta(t, 70.0, max, 1e-9)

	_, err = e.Command(context.Background(), "more")
	assert.ErrorIs(t, err, ErrSessionComplete)
}

func TestAuditResumeRestoresScores(t *testing.T) {
	snaps := newMemStore()
	client := &scriptedClient{responses: []string{"Noted. [SCORE: 0.4]"}}
	e := newAuditExecutorFixture(t, client, snaps)
	require.NoError(t, e.SetActiveGroup("csf_pricing"))

	_, err := e.Command(context.Background(), "partial pricing evidence")
	require.NoError(t, err)
	e.Close()

	e2 := newAuditExecutorFixture(t, client, snaps)
	resumed, err := e2.Resume(context.Background())
	require.NoError(t, err)
	assert.True(t, resumed)
	assert.Equal(t, 0.4, e2.Session().Score("csf_pricing"))
}
