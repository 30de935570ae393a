package trace

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"github.com/loom-sim/loom/pkg/clock"
	"github.com/loom-sim/loom/pkg/log"
	"github.com/loom-sim/loom/pkg/metrics"
	"github.com/loom-sim/loom/pkg/sched"
)

var (
	// Bucket names
	bucketRuns    = []byte("runs")
	bucketRecords = []byte("records")
)

// flushBatch is how many records accumulate before a write transaction.
const flushBatch = 1024

// Record is one fired handler, as persisted.
type Record struct {
	Seq   uint64 `json:"seq"`
	Tick  uint64 `json:"tick"`
	Phase string `json:"phase"`
	Label string `json:"label"`
}

// RunInfo describes one recorded simulation run.
type RunInfo struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Records   uint64    `json:"records"`
}

// Recorder persists every fired event of a run into a bbolt database, one
// record per handler invocation keyed by firing sequence. It observes the
// scheduler through a fire hook and never influences simulation behavior.
type Recorder struct {
	db     *bolt.DB
	runID  string
	logger zerolog.Logger

	pending []Record
	written uint64
}

// NewRecorder opens (or creates) the trace database at path and registers a
// fresh run.
func NewRecorder(path string) (*Recorder, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace database: %w", err)
	}

	r := &Recorder{
		db:    db,
		runID: uuid.New().String(),
	}
	r.logger = log.WithComponent("trace").With().Str("run_id", r.runID).Logger()

	err = db.Update(func(tx *bolt.Tx) error {
		runs, err := tx.CreateBucketIfNotExists(bucketRuns)
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketRecords); err != nil {
			return err
		}
		info := RunInfo{ID: r.runID, StartedAt: time.Now()}
		data, err := json.Marshal(&info)
		if err != nil {
			return err
		}
		return runs.Put([]byte(r.runID), data)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to register trace run: %w", err)
	}

	r.logger.Info().Str("path", path).Msg("Trace recording started")
	return r, nil
}

// RunID returns the unique identifier of this recording.
func (r *Recorder) RunID() string { return r.runID }

// Attach registers the recorder on the scheduler. Must be called before the
// scheduler is finalized.
func (r *Recorder) Attach(sch *sched.Scheduler) {
	sch.RegisterFireHook(r.record)
}

func (r *Recorder) record(label string, phase sched.Phase, tick clock.Tick, seq uint64) {
	r.pending = append(r.pending, Record{
		Seq:   seq,
		Tick:  uint64(tick),
		Phase: phase.String(),
		Label: label,
	})
	if len(r.pending) >= flushBatch {
		if err := r.Flush(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to flush trace batch")
		}
	}
}

// Flush writes the buffered records in one transaction.
func (r *Recorder) Flush() error {
	if len(r.pending) == 0 {
		return nil
	}
	timer := metrics.NewTimer()
	batch := r.pending
	r.pending = r.pending[:0]

	err := r.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(bucketRecords)
		b, err := records.CreateBucketIfNotExists([]byte(r.runID))
		if err != nil {
			return err
		}
		for i := range batch {
			data, err := json.Marshal(&batch[i])
			if err != nil {
				return err
			}
			if err := b.Put(seqKey(batch[i].Seq), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write trace batch: %w", err)
	}
	r.written += uint64(len(batch))
	metrics.TraceRecordsTotal.Add(float64(len(batch)))
	timer.ObserveDuration(metrics.TraceFlushDuration)
	return nil
}

// Close flushes the tail, updates the run's record count, and closes the
// database.
func (r *Recorder) Close() error {
	if err := r.Flush(); err != nil {
		r.db.Close()
		return err
	}
	err := r.db.Update(func(tx *bolt.Tx) error {
		runs := tx.Bucket(bucketRuns)
		data := runs.Get([]byte(r.runID))
		if data == nil {
			return fmt.Errorf("trace run %s vanished", r.runID)
		}
		var info RunInfo
		if err := json.Unmarshal(data, &info); err != nil {
			return err
		}
		info.Records = r.written
		updated, err := json.Marshal(&info)
		if err != nil {
			return err
		}
		return runs.Put([]byte(r.runID), updated)
	})
	if err != nil {
		r.db.Close()
		return err
	}
	r.logger.Info().Uint64("records", r.written).Msg("Trace recording finished")
	return r.db.Close()
}

// Reader gives read access to previously recorded runs.
type Reader struct {
	db *bolt.DB
}

// NewReader opens a trace database read-only.
func NewReader(path string) (*Reader, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open trace database: %w", err)
	}
	return &Reader{db: db}, nil
}

// Close closes the database.
func (rd *Reader) Close() error { return rd.db.Close() }

// ListRuns returns every recorded run.
func (rd *Reader) ListRuns() ([]*RunInfo, error) {
	var runs []*RunInfo
	err := rd.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var info RunInfo
			if err := json.Unmarshal(v, &info); err != nil {
				return err
			}
			runs = append(runs, &info)
			return nil
		})
	})
	return runs, err
}

// Records returns every record of one run in firing order.
func (rd *Reader) Records(runID string) ([]*Record, error) {
	var out []*Record
	err := rd.db.View(func(tx *bolt.Tx) error {
		records := tx.Bucket(bucketRecords)
		if records == nil {
			return fmt.Errorf("trace database has no records")
		}
		b := records.Bucket([]byte(runID))
		if b == nil {
			return fmt.Errorf("no records for run %s", runID)
		}
		return b.ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, &rec)
			return nil
		})
	})
	return out, err
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
