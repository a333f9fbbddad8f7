package harness

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zombieliu/gear/internal/engine"
	"github.com/Zombieliu/gear/internal/ir"
	"github.com/Zombieliu/gear/internal/store"
	"github.com/Zombieliu/gear/internal/testutil"
)

func TestGolden_SyncDuplicate(t *testing.T) {
	report := RunWithGolden(t, "sync_duplicate", "testdata/fixtures/sync_duplicate.yaml")
	assert.True(t, report.Pass())
}

func TestGolden_Alloc(t *testing.T) {
	report := RunWithGolden(t, "alloc", "testdata/fixtures/alloc.yaml")
	assert.True(t, report.Pass())
}

func TestGolden_Pipeline(t *testing.T) {
	report := RunWithGolden(t, "pipeline", "testdata/fixtures/pipeline.json")
	assert.True(t, report.Pass())
}

func TestGolden_Mismatch(t *testing.T) {
	report := RunWithGolden(t, "mismatch", "testdata/fixtures/mismatch.yaml")

	assert.False(t, report.Pass())
	assert.Equal(t, 3, report.Failed)
	assert.Equal(t, []int{1, 1, 4}, []int{
		report.Fixtures[0].Mismatches,
		report.Fixtures[1].Mismatches,
		report.Fixtures[2].Mismatches,
	})
}

func TestRun_InitializationError(t *testing.T) {
	doc := &Document{
		Title:    "broken",
		Programs: []Program{{ID: 1, Program: "nope"}},
		Fixtures: []Fixture{{Title: "f"}},
	}

	report, err := Run(doc)
	require.NoError(t, err)
	require.Len(t, report.Fixtures, 1)

	fr := report.Fixtures[0]
	assert.False(t, fr.Pass)
	assert.Empty(t, fr.RunID)
	assert.True(t, strings.HasPrefix(fr.Output, "Initialization error (unknown program \"nope\""), fr.Output)
	assert.Equal(t, 1, report.Failed)
}

func TestRun_PagesBeyondLimit(t *testing.T) {
	doc := &Document{
		Title:    "pages",
		Programs: []Program{{ID: 3, Program: "alloc", Pages: 8}},
		Fixtures: []Fixture{{Title: "f"}},
	}

	report, err := NewRunner(WithEngineOptions(engine.WithPageLimit(4))).Run(context.Background(), doc)
	require.NoError(t, err)
	assert.Contains(t, report.Fixtures[0].Output, "Initialization error (")
}

func TestRun_RunningError(t *testing.T) {
	doc := &Document{
		Title:    "quota",
		Programs: []Program{{ID: 1, Program: "sync_duplicate", Target: 2}, {ID: 2, Program: "ping"}},
		Fixtures: []Fixture{{
			Title: "too-many-steps",
			Messages: []Message{{
				Source:      1000001,
				Destination: 1,
				Payload:     Payload{Kind: KindUTF8, Value: "async"},
			}},
		}},
	}

	report, err := NewRunner(WithEngineOptions(engine.WithMaxSteps(2))).Run(context.Background(), doc)
	require.NoError(t, err)

	fr := report.Fixtures[0]
	assert.False(t, fr.Pass)
	assert.NotEmpty(t, fr.RunID)
	assert.True(t, strings.HasPrefix(fr.Output, "Running error ("), fr.Output)
	assert.NotEmpty(t, fr.Error)
}

func TestRun_StepLimitLeavesTaskSuspended(t *testing.T) {
	doc, err := LoadDocument("testdata/fixtures/sync_duplicate.yaml")
	require.NoError(t, err)

	// Asking for the full round trip while stopping after one dispatch
	// must report the missing reply.
	doc.Fixtures[2].Expected.Messages = []ExpectedMessage{
		{Destination: 1000001, Payload: Payload{Kind: KindI32, Value: 1}},
	}

	report, err := Run(doc)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, "Messages:\nExpectation error (messages count doesn't match)\n Allocation:\nOk\n",
		report.Fixtures[2].Output)
}

func TestRun_FixturesDoNotShareState(t *testing.T) {
	doc, err := LoadDocument("testdata/fixtures/sync_duplicate.yaml")
	require.NoError(t, err)

	// The same fixture twice: a leaked counter would answer 2 the
	// second time.
	doc.Fixtures = []Fixture{doc.Fixtures[0], doc.Fixtures[0]}
	report, err := Run(doc)
	require.NoError(t, err)
	assert.True(t, report.Pass())
}

func TestRun_RecordsEveryFixtureInStore(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	doc, err := LoadDocument("testdata/fixtures/sync_duplicate.yaml")
	require.NoError(t, err)
	doc.Fixtures = doc.Fixtures[:1]

	runner := NewRunner(
		WithStore(st),
		WithEngineOptions(engine.WithRunIDGenerator(testutil.NewSequenceRunIDGenerator("fixture"))),
	)
	report, err := runner.Run(context.Background(), doc)
	require.NoError(t, err)
	require.True(t, report.Pass())
	assert.Equal(t, "fixture-1", report.Fixtures[0].RunID)

	ctx := context.Background()
	run, err := st.ReadRun(ctx, "fixture-1")
	require.NoError(t, err)
	assert.Equal(t, "sync_duplicate/single-async", run.Title)
	assert.Equal(t, map[string]string{"document": "sync_duplicate", "fixture": "single-async"}, run.Meta)

	dispatches, err := st.ReadDispatches(ctx, "fixture-1")
	require.NoError(t, err)
	states := make([]string, len(dispatches))
	for i, d := range dispatches {
		states[i] = d.State
	}
	assert.Equal(t, []string{"suspended", "completed", "completed", "completed", store.StateLogged}, states)

	outgoing, err := st.ReadOutgoing(ctx, "fixture-1")
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.Equal(t, ir.ActorIDFromUint64(1000001), outgoing[0].Destination)
	assert.Equal(t, []byte{1, 0, 0, 0}, outgoing[0].Payload)
}

func TestRun_ContextCancelled(t *testing.T) {
	doc, err := LoadDocument("testdata/fixtures/alloc.yaml")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := NewRunner().Run(ctx, doc)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report.Fixtures)
}

func TestReport_WriteText(t *testing.T) {
	r := NewReport("doc")
	r.Add(FixtureReport{Title: "a", Output: "Messages:\nOk\n Allocation:\nOk\n", Pass: true})
	r.Add(FixtureReport{Title: "b", Output: "Running error (boom)"})

	var buf strings.Builder
	require.NoError(t, r.WriteText(&buf))
	assert.Equal(t,
		"Fixture a: Messages:\nOk\n Allocation:\nOk\n\nFixture b: Running error (boom)\n",
		buf.String())
	assert.Equal(t, 1, r.Failed)
	assert.False(t, r.Pass())
}
