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

const executorMissionXML = `<mission id="panama">
	<intent>
		<theater>Puerto de Cristobal</theater>
		<situation>Contraband moving through the harbor.</situation>
		<win_condition>
			<target_item>munitions crate</target_item>
			<target_location>Dockside</target_location>
			<trigger_text>Mission Complete: Assets in Transit</trigger_text>
		</win_condition>
	</intent>
	<poi id="dockside"><lat>9.35</lat><lon>-79.90</lon><image>d.jpg</image><name>Dockside</name><intel>Cranes run late.</intel></poi>
	<task id="obj_find_manifest" status="false"/>
</mission>`

func newExecutorFixture(t *testing.T, client llm.Client, snaps *memStore) *Executor {
	t.Helper()
	m, err := schema.ParseMission("test", []byte(executorMissionXML))
	require.NoError(t, err)
	sess := session.New("peter", "panama", session.DefaultRoster, m.InitialLedger())
	var backing store.SnapshotStore
	if snaps != nil {
		backing = snaps
	}
	e := NewExecutor(m, sess, client, backing)
	t.Cleanup(e.Close)
	return e
}

func TestCommandCommitsTurn(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"SAM: On the move.\n[LOC_DATA: SAM=Dockside, DAVE=Insertion Point, MIKE=Insertion Point]",
	}}
	snaps := newMemStore()
	e := newExecutorFixture(t, client, snaps)

	outcome, err := e.Command(context.Background(), "Sam, sweep the dock.")
	require.NoError(t, err)

	assert.Equal(t, session.DefaultClock-1, e.Session().Clock())
	loc, _ := e.Session().Location("SAM")
	assert.Equal(t, "Dockside", loc)
	assert.Len(t, outcome.Discoveries, 1)

	// Commander order then recon then squad reply.
	log := e.Session().Log()
	require.Len(t, log, 3)
	assert.Equal(t, session.RoleCommander, log[0].Role)
	assert.Equal(t, session.RoleSystem, log[1].Role)
	assert.Equal(t, session.RoleSquad, log[2].Role)

	e.Close()
	assert.Equal(t, 1, snaps.saveCount())
}

func TestBeginChargesNoTime(t *testing.T) {
	client := &scriptedClient{responses: []string{"SAM: All present.\nDAVE: Here.\nMIKE: Online."}}
	e := newExecutorFixture(t, client, nil)

	_, err := e.Begin(context.Background())
	require.NoError(t, err)

	assert.Equal(t, session.DefaultClock, e.Session().Clock())
	assert.True(t, e.Session().Started())
	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "Team is at the insertion point. Report in.")
}

func TestCommandFailureMutatesNothing(t *testing.T) {
	client := &scriptedClient{} // every call fails
	snaps := newMemStore()
	e := newExecutorFixture(t, client, snaps)

	_, err := e.Command(context.Background(), "Sam, move.")
	require.ErrorIs(t, err, llm.ErrBackendUnavailable)

	assert.Equal(t, session.DefaultClock, e.Session().Clock(), "failed turn charges no time")
	assert.Empty(t, e.Session().Log())
	e.Close()
	assert.Zero(t, snaps.saveCount())
}

func TestCommandPromptCarriesChargedClock(t *testing.T) {
	client := &scriptedClient{responses: []string{"SAM: Copy."}}
	e := newExecutorFixture(t, client, nil)

	_, err := e.Command(context.Background(), "hold position")
	require.NoError(t, err)

	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "Time:59m", "prompt shows the clock after this turn's charge")
	assert.Contains(t, client.prompts[0], "[COMMANDER_ORDERS] hold position")
}

func TestExtractionSignal(t *testing.T) {
	client := &scriptedClient{}
	e := newExecutorFixture(t, client, newMemStore())

	outcome, err := e.Command(context.Background(), "execute valhalla now")
	require.NoError(t, err)
	assert.True(t, outcome.Terminal)
	assert.True(t, e.Session().Terminal())
	assert.Empty(t, client.prompts, "backdoor skips the backend entirely")

	_, err = e.Command(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrSessionComplete)
}

func TestResumeHydratesFromSnapshot(t *testing.T) {
	snaps := newMemStore()
	client := &scriptedClient{responses: []string{
		"SAM: Back at it.\n[LOC_DATA: SAM=Dockside, DAVE=Insertion Point, MIKE=Insertion Point]",
	}}
	e := newExecutorFixture(t, client, snaps)

	_, err := e.Command(context.Background(), "Sam, sweep the dock.")
	require.NoError(t, err)
	e.Close()

	// New process, same identity.
	e2 := newExecutorFixture(t, client, snaps)
	resumed, err := e2.Resume(context.Background())
	require.NoError(t, err)
	assert.True(t, resumed)
	assert.Equal(t, session.DefaultClock-1, e2.Session().Clock())
	loc, _ := e2.Session().Location("SAM")
	assert.Equal(t, "Dockside", loc)
	assert.True(t, e2.Session().Started())
}

func TestResumeWithoutSnapshot(t *testing.T) {
	e := newExecutorFixture(t, &scriptedClient{}, newMemStore())
	resumed, err := e.Resume(context.Background())
	require.NoError(t, err)
	assert.False(t, resumed)
}

func TestDebriefOnce(t *testing.T) {
	snaps := newMemStore()
	client := &scriptedClient{responses: []string{"Sustained: decisive orders. Improve: pace."}}
	e := newExecutorFixture(t, client, snaps)
	e.Session().Complete()

	report, err := e.Debrief(context.Background())
	require.NoError(t, err)
	assert.Contains(t, report, "Sustained")

	// Second call serves the stored report without another backend call.
	again, err := e.Debrief(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report, again)
	assert.Len(t, client.generated, 1)

	snap, err := snaps.Load(context.Background(), "peter", "panama")
	require.NoError(t, err)
	assert.Equal(t, report, snap.AAR)
}

func TestFinalRating(t *testing.T) {
	e := newExecutorFixture(t, &scriptedClient{}, nil)

	// Full viability, 13 minutes elapsed: 100*10 - 13*5 = 935.
	for i := 0; i < 13; i++ {
		e.Session().TickClock()
	}
	e.Session().Complete()
	assert.Equal(t, 935, e.FinalRating())
}

func TestFinalRatingFloor(t *testing.T) {
	m, err := schema.ParseMission("test", []byte(executorMissionXML))
	require.NoError(t, err)
	sess := session.New("peter", "panama", session.DefaultRoster, m.InitialLedger())
	e := NewExecutor(m, sess, &scriptedClient{}, nil)
	t.Cleanup(e.Close)

	// Drain the whole clock with zero viability headroom left in the math.
	for i := 0; i < session.DefaultClock; i++ {
		sess.TickClock()
	}
	sess.Complete()
	// 100*10 - 60*5 = 700, still positive; rating never goes below zero
	// regardless of inputs.
	assert.GreaterOrEqual(t, e.FinalRating(), 0)
}

func TestAbortClearsSnapshotAndSession(t *testing.T) {
	snaps := newMemStore()
	client := &scriptedClient{responses: []string{"SAM: Moving."}}
	e := newExecutorFixture(t, client, snaps)

	_, err := e.Command(context.Background(), "go")
	require.NoError(t, err)
	e.Close()

	require.NoError(t, e.Abort(context.Background()))
	assert.Equal(t, session.DefaultClock, e.Session().Clock())
	assert.Empty(t, e.Session().Log())

	_, err = snaps.Load(context.Background(), "peter", "panama")
	assert.Error(t, err)
}
