package clock

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/loom-sim/loom/pkg/log"
)

// Manager builds a clock tree and fixes every clock's period in a single
// normalization pass. Ratio-specified and frequency-specified clocks may not
// be mixed in one tree.
type Manager struct {
	sch    Scheduler
	root   *Clock
	clocks []*Clock
	logger zerolog.Logger

	anyExplicitFreq bool
	anyRatio        bool
	normalized      bool
}

// NewManager creates a clock manager bound to the given scheduler.
func NewManager(sch Scheduler) *Manager {
	return &Manager{
		sch:    sch,
		logger: log.WithComponent("clockmgr"),
	}
}

// MakeRoot constructs the root clock. Must be called exactly once, before
// any other clock is created.
func (m *Manager) MakeRoot(name string) (*Clock, error) {
	if m.root != nil {
		return nil, fmt.Errorf("clock manager already has a root clock %q", m.root.Name())
	}
	m.root = newClock(name, nil, m.sch)
	m.clocks = append(m.clocks, m.root)
	return m.root, nil
}

// Root returns the root clock, nil if MakeRoot has not been called.
func (m *Manager) Root() *Clock { return m.root }

// Clocks returns every clock in creation order.
func (m *Manager) Clocks() []*Clock { return m.clocks }

// MakeClock creates a clock with an exact ratio to its parent: the new
// clock's period is parent period * parentRatio / childRatio. A child twice
// as fast as its parent is MakeClock(name, parent, 1, 2).
func (m *Manager) MakeClock(name string, parent *Clock, parentRatio, childRatio uint64) (*Clock, error) {
	if err := m.checkMakeClock(name, parent); err != nil {
		return nil, err
	}
	if parentRatio == 0 || childRatio == 0 {
		return nil, fmt.Errorf("clock %q: ratio terms must be positive, got %d/%d",
			name, parentRatio, childRatio)
	}
	c := newClock(name, parent, m.sch)
	c.ratio = NewRational(parentRatio, childRatio)
	if parentRatio != 1 || childRatio != 1 {
		m.anyRatio = true
	}
	m.clocks = append(m.clocks, c)
	return c, nil
}

// MakeClockFreq creates a clock with an explicit frequency in MHz. Ticks are
// picoseconds in frequency mode.
func (m *Manager) MakeClockFreq(name string, parent *Clock, frequencyMhz float64) (*Clock, error) {
	if err := m.checkMakeClock(name, parent); err != nil {
		return nil, err
	}
	if frequencyMhz <= 0 {
		return nil, fmt.Errorf("clock %q: frequency must be positive, got %f", name, frequencyMhz)
	}
	c := newClock(name, parent, m.sch)
	c.frequencyMhz = frequencyMhz
	m.anyExplicitFreq = true
	m.clocks = append(m.clocks, c)
	return c, nil
}

// Normalize fixes every clock's period and returns the global normalization
// factor (1 in frequency mode). Must be called exactly once, after all
// clocks are created and before the scheduler is finalized.
func (m *Manager) Normalize() (uint64, error) {
	if m.normalized {
		return 0, fmt.Errorf("clock tree already normalized")
	}
	if m.root == nil {
		return 0, fmt.Errorf("cannot normalize a clock tree with no root")
	}
	if m.anyExplicitFreq && m.anyRatio {
		return 0, fmt.Errorf("clock tree mixes frequency-specified and ratio-specified clocks")
	}

	if m.anyExplicitFreq {
		if err := m.normalizeFrequencies(); err != nil {
			return 0, err
		}
		m.normalized = true
		return 1, nil
	}

	// Ratio mode: every clock's period is an exact rational multiple of the
	// root period. The normalization factor is the smallest root period that
	// makes every period integral.
	norm := uint64(1)
	for _, c := range m.clocks {
		norm = lcm(norm, c.absolutePeriod().Den())
	}
	for _, c := range m.clocks {
		abs := c.absolutePeriod()
		c.setPeriod(Tick(abs.Num() * (norm / abs.Den())))
	}
	m.normalized = true
	m.logger.Info().
		Uint64("norm", norm).
		Int("clocks", len(m.clocks)).
		Msg("Clock tree normalized")
	return norm, nil
}

// PeriodFromFrequencyMhz returns the tick period for a frequency, with ticks
// as picoseconds.
func PeriodFromFrequencyMhz(frequencyMhz float64) Tick {
	return Tick(math.Round(1e6 / frequencyMhz))
}

func (m *Manager) normalizeFrequencies() error {
	for i, c := range m.clocks {
		if c.frequencyMhz == 0 {
			// Only the root may omit a frequency; it ticks in picoseconds.
			if i != 0 {
				return fmt.Errorf("clock %q has no frequency in a frequency-specified tree", c.Name())
			}
			c.setPeriod(1)
			continue
		}
		c.setPeriod(PeriodFromFrequencyMhz(c.frequencyMhz))
	}
	return nil
}

func (m *Manager) checkMakeClock(name string, parent *Clock) error {
	if m.normalized {
		return fmt.Errorf("cannot create clock %q after normalization", name)
	}
	if parent == nil {
		return fmt.Errorf("clock %q must have a parent; use MakeRoot for the root", name)
	}
	return nil
}

// Print writes a one-line summary per clock to the manager's logger.
func (m *Manager) Print() {
	for _, c := range m.clocks {
		ev := m.logger.Info().Str("clock", c.Name())
		if c.normalized {
			ev = ev.Uint64("period_ticks", uint64(c.period))
		}
		ev.Msg("Clock")
	}
}
