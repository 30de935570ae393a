package model

import (
	"github.com/rs/zerolog"

	"github.com/loom-sim/loom/pkg/clock"
	"github.com/loom-sim/loom/pkg/log"
	"github.com/loom-sim/loom/pkg/port"
	"github.com/loom-sim/loom/pkg/sched"
	"github.com/loom-sim/loom/pkg/tree"
)

// Producer drives integers downstream, one per go-request. It produces once
// when primed and then once per pulse on its go port until the configured
// count is exhausted.
type Producer struct {
	node   *tree.Node
	logger zerolog.Logger

	outPort *port.DataOutPort[uint32]
	goPort  *port.SignalInPort

	producing *sched.Scheduleable

	maxToSend uint32
	sent      uint32
}

// NewProducer builds a producer unit under parent on the given clock.
func NewProducer(parent *tree.Node, name string, clk *clock.Clock, maxToSend uint32) (*Producer, error) {
	node, err := tree.NewChild(parent, name, "producer unit")
	if err != nil {
		return nil, err
	}
	p := &Producer{
		node:      node,
		logger:    log.WithComponent(node.Location()),
		maxToSend: maxToSend,
	}

	ps, err := port.NewPortSet(node)
	if err != nil {
		return nil, err
	}
	if p.outPort, err = port.NewDataOutPort[uint32](ps, "producer_out_port", clk); err != nil {
		return nil, err
	}
	if p.goPort, err = port.NewSignalInPort(ps, "producer_go_port", clk, 1); err != nil {
		return nil, err
	}
	if err := p.goPort.RegisterConsumerHandler(p.produceData); err != nil {
		return nil, err
	}

	es := sched.NewEventSet(node, clk)
	p.producing = sched.NewUniqueEvent(es, "ev_producing_event", sched.PhaseTick, 1, p.produceData)
	return p, nil
}

// Node returns the producer's tree node.
func (p *Producer) Node() *tree.Node { return p.node }

// OutPort returns the data port driving produced values.
func (p *Producer) OutPort() *port.DataOutPort[uint32] { return p.outPort }

// GoPort returns the signal port requesting another value.
func (p *Producer) GoPort() *port.SignalInPort { return p.goPort }

// Prime schedules the first production. Call after the scheduler is
// finalized.
func (p *Producer) Prime() {
	p.producing.Schedule()
}

// NumProduced returns how many values were sent.
func (p *Producer) NumProduced() uint32 { return p.sent }

func (p *Producer) produceData() {
	if p.sent >= p.maxToSend {
		p.logger.Debug().Uint32("sent", p.sent).Msg("Done sending data")
		return
	}
	p.logger.Debug().Uint32("value", p.sent).Msg("Sending")
	p.outPort.Send(p.sent)
	p.sent++
}
