package model

import (
	"github.com/rs/zerolog"

	"github.com/loom-sim/loom/pkg/clock"
	"github.com/loom-sim/loom/pkg/log"
	"github.com/loom-sim/loom/pkg/port"
	"github.com/loom-sim/loom/pkg/tree"
)

// Sink collects values arriving across a clock boundary. It lives on its
// own (typically slower) clock and absorbs one value per cycle.
type Sink struct {
	node   *tree.Node
	logger zerolog.Logger

	inPort   *port.SyncInPort[uint32]
	received []uint32
}

// NewSink builds a sink unit under parent on the given clock.
func NewSink(parent *tree.Node, name string, clk *clock.Clock) (*Sink, error) {
	node, err := tree.NewChild(parent, name, "sink unit")
	if err != nil {
		return nil, err
	}
	s := &Sink{
		node:   node,
		logger: log.WithComponent(node.Location()),
	}

	ps, err := port.NewPortSet(node)
	if err != nil {
		return nil, err
	}
	if s.inPort, err = port.NewSyncInPort[uint32](ps, "sink_in_port", clk); err != nil {
		return nil, err
	}
	if err := s.inPort.SetPortDelay(1); err != nil {
		return nil, err
	}
	if err := s.inPort.RegisterConsumerHandler(s.receive); err != nil {
		return nil, err
	}
	return s, nil
}

// Node returns the sink's tree node.
func (s *Sink) Node() *tree.Node { return s.node }

// InPort returns the sync port values arrive on.
func (s *Sink) InPort() *port.SyncInPort[uint32] { return s.inPort }

// Received returns every value absorbed so far, in arrival order.
func (s *Sink) Received() []uint32 { return s.received }

func (s *Sink) receive(v uint32) {
	s.received = append(s.received, v)
	s.logger.Debug().Uint32("value", v).Msg("Absorbed")
}
