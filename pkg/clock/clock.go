package clock

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/loom-sim/loom/pkg/log"
	"github.com/loom-sim/loom/pkg/tree"
)

// Tick is the scheduler's atomic unit of simulated time.
type Tick uint64

// Cycle is a count of clock edges local to one clock domain.
type Cycle uint64

// Scheduler is the narrow view of the event scheduler a clock needs. The
// concrete implementation lives in pkg/sched; the interface breaks the
// import cycle between the two packages.
type Scheduler interface {
	CurrentTick() Tick
	IsRunning() bool
	IsFinalized() bool
}

// Clock is a virtual frequency domain. Clocks form a tree rooted at the
// scheduler's root clock; each clock's period in ticks is fixed when the
// owning Manager normalizes the tree and is immutable afterwards.
type Clock struct {
	name   string
	node   *tree.Node
	parent *Clock
	sch    Scheduler
	logger zerolog.Logger

	// Ratio of this clock's period to its parent's
	// (parentRatio / childRatio), ratio mode only.
	ratio Rational

	// Explicit frequency, frequency mode only.
	frequencyMhz float64

	period     Tick
	normalized bool
}

func newClock(name string, parent *Clock, sch Scheduler) *Clock {
	c := &Clock{
		name:   name,
		parent: parent,
		sch:    sch,
		ratio:  NewRational(1, 1),
		logger: log.WithClock(name),
	}
	if parent != nil {
		c.node = tree.MustChild(parent.node, name, "clock domain")
		c.sch = parent.sch
	} else {
		c.node = tree.NewRoot(name, "root clock domain")
	}
	c.node.Payload = c
	return c
}

// Name returns the clock's name.
func (c *Clock) Name() string { return c.name }

// Node returns the clock's tree node.
func (c *Clock) Node() *tree.Node { return c.node }

// Parent returns the parent clock, nil for the root.
func (c *Clock) Parent() *Clock { return c.parent }

// Scheduler returns the scheduler driving this clock's domain.
func (c *Clock) Scheduler() Scheduler { return c.sch }

// FrequencyMhz returns the explicit frequency of this clock, 0 when the
// clock was specified by ratio.
func (c *Clock) FrequencyMhz() float64 { return c.frequencyMhz }

// IsNormalized reports whether the owning Manager has fixed this clock's
// period.
func (c *Clock) IsNormalized() bool { return c.normalized }

// Period returns the clock's period in ticks. The clock tree must have been
// normalized.
func (c *Clock) Period() Tick {
	if !c.normalized {
		panic(fmt.Sprintf("clock %q: period queried before the clock tree was normalized", c.name))
	}
	return c.period
}

// CycleToTick converts a domain-local cycle count to absolute ticks.
func (c *Clock) CycleToTick(cyc Cycle) Tick {
	return Tick(cyc) * c.Period()
}

// TickToCycle converts absolute ticks to domain-local cycles, truncating
// toward the containing posedge.
func (c *Clock) TickToCycle(t Tick) Cycle {
	return Cycle(t / c.Period())
}

// CurrentTick returns the scheduler's current tick.
func (c *Clock) CurrentTick() Tick {
	return c.sch.CurrentTick()
}

// CurrentCycle returns the current cycle in this clock's domain.
func (c *Clock) CurrentCycle() Cycle {
	return c.TickToCycle(c.CurrentTick())
}

// IsPosedge reports whether the current tick lands on a rising edge of this
// clock.
func (c *Clock) IsPosedge() bool {
	return c.CurrentTick()%c.Period() == 0
}

// NextPosedgeAtOrAfter returns the smallest multiple of this clock's period
// that is greater than or equal to t.
func (c *Clock) NextPosedgeAtOrAfter(t Tick) Tick {
	p := c.Period()
	if rem := t % p; rem != 0 {
		return t + p - rem
	}
	return t
}

// setPeriod is called once by the Manager during normalization.
func (c *Clock) setPeriod(period Tick) {
	c.period = period
	c.normalized = true
	c.logger.Debug().
		Uint64("period_ticks", uint64(period)).
		Msg("Clock period fixed")
}

// absolutePeriod returns this clock's period as an exact ratio of the root
// clock's period. Ratio mode only.
func (c *Clock) absolutePeriod() Rational {
	if c.parent == nil {
		return NewRational(1, 1)
	}
	return c.parent.absolutePeriod().Mul(c.ratio)
}
