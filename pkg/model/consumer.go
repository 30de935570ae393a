package model

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/loom-sim/loom/pkg/clock"
	"github.com/loom-sim/loom/pkg/log"
	"github.com/loom-sim/loom/pkg/port"
	"github.com/loom-sim/loom/pkg/sched"
	"github.com/loom-sim/loom/pkg/tree"
)

// Consumer takes integers from its in port, requests the next value from
// its producers round-robin, and forwards everything it consumes across a
// clock boundary to a sink.
type Consumer struct {
	node   *tree.Node
	logger zerolog.Logger

	inPort   *port.DataInPort[uint32]
	goPorts  []*port.SignalOutPort
	forward  *port.SyncOutPort[uint32]
	arrived  uint32
	hasData  bool
	consumed uint64

	dataArrived *sched.Scheduleable
	current     int
}

// NewConsumer builds a consumer unit under parent on the given clock, with
// one go port per producer.
func NewConsumer(parent *tree.Node, name string, clk *clock.Clock, numProducers int) (*Consumer, error) {
	if numProducers < 1 {
		return nil, fmt.Errorf("consumer %q: at least one producer is required", name)
	}
	node, err := tree.NewChild(parent, name, "consumer unit")
	if err != nil {
		return nil, err
	}
	c := &Consumer{
		node:   node,
		logger: log.WithComponent(node.Location()),
	}

	ps, err := port.NewPortSet(node)
	if err != nil {
		return nil, err
	}
	if c.inPort, err = port.NewDataInPort[uint32](ps, "consumer_in_port", clk, 1); err != nil {
		return nil, err
	}
	if err := c.inPort.RegisterConsumerHandler(c.receiveData); err != nil {
		return nil, err
	}
	for i := 0; i < numProducers; i++ {
		gp, err := port.NewSignalOutPort(ps, fmt.Sprintf("producer_go_port%d", i), clk)
		if err != nil {
			return nil, err
		}
		c.goPorts = append(c.goPorts, gp)
	}
	if c.forward, err = port.NewSyncOutPort[uint32](ps, "sink_out_port", clk); err != nil {
		return nil, err
	}

	es := sched.NewEventSet(node, clk)
	c.dataArrived = sched.NewUniqueEvent(es, "ev_data_arrived", sched.PhaseTick, 0, c.dataArrivedHandler)
	return c, nil
}

// Node returns the consumer's tree node.
func (c *Consumer) Node() *tree.Node { return c.node }

// InPort returns the data port values arrive on.
func (c *Consumer) InPort() *port.DataInPort[uint32] { return c.inPort }

// GoPort returns the i-th producer go port.
func (c *Consumer) GoPort(i int) *port.SignalOutPort { return c.goPorts[i] }

// ForwardPort returns the sync port feeding the sink.
func (c *Consumer) ForwardPort() *port.SyncOutPort[uint32] { return c.forward }

// NumConsumed returns how many values were consumed.
func (c *Consumer) NumConsumed() uint64 { return c.consumed }

func (c *Consumer) receiveData(v uint32) {
	c.arrived = v
	c.hasData = true
	c.dataArrived.Schedule()
}

func (c *Consumer) dataArrivedHandler() {
	if !c.hasData {
		return
	}
	c.hasData = false
	c.consumed++
	c.logger.Debug().Uint32("value", c.arrived).Msg("Consumed")

	if c.forward.IsBound() {
		c.forward.SendAllowSlide(c.arrived, 0)
	}

	// Ask the next producer for more.
	c.goPorts[c.current].Send(0)
	c.current = (c.current + 1) % len(c.goPorts)
}
