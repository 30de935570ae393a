package trace

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loom-sim/loom/pkg/clock"
	"github.com/loom-sim/loom/pkg/log"
	"github.com/loom-sim/loom/pkg/sched"
	"github.com/loom-sim/loom/pkg/tree"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel})
}

// TestRecordAndReadBack tests the full record -> flush -> read cycle
func TestRecordAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.db")

	scheduler := sched.NewScheduler()
	mgr := clock.NewManager(scheduler)
	root, err := mgr.MakeRoot("root")
	assert.NoError(t, err)
	clk, err := mgr.MakeClock("clk", root, 10, 1)
	assert.NoError(t, err)
	_, err = mgr.Normalize()
	assert.NoError(t, err)

	top := tree.NewRoot("top", "test top")
	es := sched.NewEventSet(top, clk)
	ev := sched.NewEvent(es, "traced_event", sched.PhaseTick, 0, func() {})

	recorder, err := NewRecorder(path)
	assert.NoError(t, err)
	recorder.Attach(scheduler)
	runID := recorder.RunID()

	assert.NoError(t, scheduler.Finalize())
	ev.ScheduleDelay(1)
	ev.ScheduleDelay(3)
	assert.NoError(t, scheduler.Run(sched.RunForever, false))
	assert.NoError(t, recorder.Close())

	rd, err := NewReader(path)
	assert.NoError(t, err)
	defer func() { assert.NoError(t, rd.Close()) }()

	runs, err := rd.ListRuns()
	assert.NoError(t, err)
	assert.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].ID)
	assert.Equal(t, uint64(2), runs[0].Records)

	records, err := rd.Records(runID)
	assert.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, "traced_event", records[0].Label)
	assert.Equal(t, uint64(10), records[0].Tick)
	assert.Equal(t, "Tick", records[0].Phase)
	assert.Equal(t, uint64(30), records[1].Tick)
	// Firing order is preserved by the big-endian sequence keys.
	assert.Less(t, records[0].Seq, records[1].Seq)
}

// TestMultipleRuns tests that runs accumulate in one database
func TestMultipleRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.db")

	for i := 0; i < 2; i++ {
		recorder, err := NewRecorder(path)
		assert.NoError(t, err)
		assert.NoError(t, recorder.Close())
	}

	rd, err := NewReader(path)
	assert.NoError(t, err)
	defer rd.Close()

	runs, err := rd.ListRuns()
	assert.NoError(t, err)
	assert.Len(t, runs, 2)
}

// TestRecordsForUnknownRun tests the missing-run error
func TestRecordsForUnknownRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.db")
	recorder, err := NewRecorder(path)
	assert.NoError(t, err)
	assert.NoError(t, recorder.Close())

	rd, err := NewReader(path)
	assert.NoError(t, err)
	defer rd.Close()

	_, err = rd.Records("no-such-run")
	assert.Error(t, err)
}
