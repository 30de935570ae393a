package model

import (
	"fmt"

	"github.com/loom-sim/loom/pkg/clock"
	"github.com/loom-sim/loom/pkg/port"
	"github.com/loom-sim/loom/pkg/sched"
	"github.com/loom-sim/loom/pkg/tree"
)

// Pipeline is the skeleton model: N producers feeding one consumer on the
// core clock, with everything the consumer takes forwarded across a clock
// boundary into a sink.
//
//	producer[i].producer_out_port  ->  consumer.consumer_in_port
//	consumer.producer_go_port[i]   ->  producer[i].producer_go_port
//	consumer.sink_out_port         ->  sink.sink_in_port  (sync)
type Pipeline struct {
	Top       *tree.Node
	Producers []*Producer
	Consumer  *Consumer
	Sink      *Sink
}

// PipelineConfig sizes the skeleton model.
type PipelineConfig struct {
	NumProducers int
	MaxToSend    uint32
}

// NewPipeline builds and binds the whole model. The scheduler is left
// unfinalized so callers can attach observers first.
func NewPipeline(cfg PipelineConfig, coreClk, sinkClk *clock.Clock) (*Pipeline, error) {
	if cfg.NumProducers < 1 {
		return nil, fmt.Errorf("pipeline needs at least one producer")
	}

	top := tree.NewRoot("top", "skeleton pipeline")
	pl := &Pipeline{Top: top}

	var err error
	if pl.Consumer, err = NewConsumer(top, "consumer", coreClk, cfg.NumProducers); err != nil {
		return nil, err
	}
	for i := 0; i < cfg.NumProducers; i++ {
		p, err := NewProducer(top, fmt.Sprintf("producer%d", i), coreClk, cfg.MaxToSend)
		if err != nil {
			return nil, err
		}
		pl.Producers = append(pl.Producers, p)
	}
	if pl.Sink, err = NewSink(top, "sink", sinkClk); err != nil {
		return nil, err
	}

	for i, p := range pl.Producers {
		if err := port.Bind(p.OutPort(), pl.Consumer.InPort()); err != nil {
			return nil, err
		}
		if err := port.Bind(pl.Consumer.GoPort(i), p.GoPort()); err != nil {
			return nil, err
		}
	}
	if err := port.Bind(pl.Consumer.ForwardPort(), pl.Sink.InPort()); err != nil {
		return nil, err
	}
	return pl, nil
}

// Prime schedules the initial production. The first producer starts; the
// consumer's go pulses keep the ring going from there. The scheduler must
// be finalized.
func (pl *Pipeline) Prime(sch *sched.Scheduler) error {
	if !sch.IsFinalized() {
		return fmt.Errorf("pipeline must be primed after the scheduler is finalized")
	}
	pl.Producers[0].Prime()
	return nil
}
