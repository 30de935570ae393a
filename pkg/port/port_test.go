package port

import (
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

// bench is the scheduler + clock-tree + unit-node fixture for port tests.
type bench struct {
	sch  *sched.Scheduler
	mgr  *clock.Manager
	root *clock.Clock
	top  *tree.Node
}

// newBench builds a bench with a single clock of the given period.
func newBench(t *testing.T, periodTicks uint64) (*bench, *clock.Clock) {
	t.Helper()
	b := &bench{sch: sched.NewScheduler()}
	b.mgr = clock.NewManager(b.sch)
	var err error
	b.root, err = b.mgr.MakeRoot("root")
	assert.NoError(t, err)
	clk, err := b.mgr.MakeClock("clk", b.root, periodTicks, 1)
	assert.NoError(t, err)
	_, err = b.mgr.Normalize()
	assert.NoError(t, err)
	b.top = tree.NewRoot("top", "test top")
	return b, clk
}

// newCrossClockBench builds a bench with sender and receiver clocks of the
// given periods.
func newCrossClockBench(t *testing.T, senderPeriod, receiverPeriod uint64) (*bench, *clock.Clock, *clock.Clock) {
	t.Helper()
	b := &bench{sch: sched.NewScheduler()}
	b.mgr = clock.NewManager(b.sch)
	var err error
	b.root, err = b.mgr.MakeRoot("root")
	assert.NoError(t, err)
	sclk, err := b.mgr.MakeClock("sender_clk", b.root, senderPeriod, 1)
	assert.NoError(t, err)
	rclk, err := b.mgr.MakeClock("receiver_clk", b.root, receiverPeriod, 1)
	assert.NoError(t, err)
	_, err = b.mgr.Normalize()
	assert.NoError(t, err)
	b.top = tree.NewRoot("top", "test top")
	return b, sclk, rclk
}

// unit bundles a tree node with its port set and event set, the way model
// components host their ports.
type unit struct {
	node  *tree.Node
	ports *PortSet
	es    *sched.EventSet
}

func newUnit(t *testing.T, parent *tree.Node, name string, clk *clock.Clock) *unit {
	t.Helper()
	node, err := tree.NewChild(parent, name, "test unit")
	assert.NoError(t, err)
	ps, err := NewPortSet(node)
	assert.NoError(t, err)
	return &unit{node: node, ports: ps, es: sched.NewEventSet(node, clk)}
}

func (b *bench) finalize(t *testing.T) {
	t.Helper()
	assert.NoError(t, b.sch.Finalize())
}

func (b *bench) run(t *testing.T) {
	t.Helper()
	assert.NoError(t, b.sch.Run(sched.RunForever, false))
}

// TestBindRejectsSameDirection tests the complementary-direction rule
func TestBindRejectsSameDirection(t *testing.T) {
	b, clk := newBench(t, 1)
	a := newUnit(t, b.top, "a", clk)
	c := newUnit(t, b.top, "c", clk)

	out1, err := NewDataOutPort[int](a.ports, "out1", clk)
	assert.NoError(t, err)
	out2, err := NewDataOutPort[int](c.ports, "out2", clk)
	assert.NoError(t, err)

	err = Bind(out1, out2)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "complementary")
}

// TestBindRejectsClockMismatch tests the same-clock rule for non-sync ports
func TestBindRejectsClockMismatch(t *testing.T) {
	b, sclk, rclk := newCrossClockBench(t, 2, 3)
	a := newUnit(t, b.top, "a", sclk)
	c := newUnit(t, b.top, "c", rclk)

	out, err := NewDataOutPort[int](a.ports, "out", sclk)
	assert.NoError(t, err)
	in, err := NewDataInPort[int](c.ports, "in", rclk, 1)
	assert.NoError(t, err)

	err = Bind(out, in)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "different clocks")
}

// TestBindRejectsDuplicate tests re-binding the same pair
func TestBindRejectsDuplicate(t *testing.T) {
	b, clk := newBench(t, 1)
	a := newUnit(t, b.top, "a", clk)
	c := newUnit(t, b.top, "c", clk)

	out, _ := NewDataOutPort[int](a.ports, "out", clk)
	in, _ := NewDataInPort[int](c.ports, "in", clk, 1)

	assert.NoError(t, Bind(out, in))
	assert.Error(t, Bind(out, in))
}

// TestDuplicatePortNameRejected tests port-set name uniqueness
func TestDuplicatePortNameRejected(t *testing.T) {
	b, clk := newBench(t, 1)
	a := newUnit(t, b.top, "a", clk)

	_, err := NewDataInPort[int](a.ports, "in", clk, 0)
	assert.NoError(t, err)
	_, err = NewDataInPort[int](a.ports, "in", clk, 0)
	assert.Error(t, err)
}

// TestRegisterConsumerAfterBindRejected tests the post-bind registration
// restriction
func TestRegisterConsumerAfterBindRejected(t *testing.T) {
	b, clk := newBench(t, 1)
	a := newUnit(t, b.top, "a", clk)
	c := newUnit(t, b.top, "c", clk)

	out, _ := NewDataOutPort[int](a.ports, "out", clk)
	in, _ := NewDataInPort[int](c.ports, "in", clk, 0)
	assert.NoError(t, Bind(out, in))

	listener := sched.NewUniqueEvent(c.es, "listener", sched.PhaseTick, 0, func() {})
	assert.Error(t, in.RegisterConsumerEvent(listener))
	assert.Error(t, out.RegisterProducingEvent(listener))
}

// TestSecondConsumerHandlerRejected tests the single-handler slot
func TestSecondConsumerHandlerRejected(t *testing.T) {
	b, clk := newBench(t, 1)
	a := newUnit(t, b.top, "a", clk)

	in, _ := NewDataInPort[int](a.ports, "in", clk, 0)
	assert.NoError(t, in.RegisterConsumerHandler(func(int) {}))
	assert.Error(t, in.RegisterConsumerHandler(func(int) {}))
}

// TestSendOnUnboundPanics tests the unbound-send error
func TestSendOnUnboundPanics(t *testing.T) {
	b, clk := newBench(t, 1)
	a := newUnit(t, b.top, "a", clk)

	out, _ := NewDataOutPort[int](a.ports, "out", clk)
	b.finalize(t)
	assert.Panics(t, func() { out.Send(1) })
}
