package port

import (
	"fmt"

	"github.com/loom-sim/loom/pkg/clock"
)

// DataContainer holds the last value delivered to an In port along with its
// arrival timestamp and validity. Data and sync In ports embed one.
type DataContainer[T any] struct {
	clk   *clock.Clock
	data  T
	valid bool
	stamp clock.Tick
}

func newDataContainer[T any](clk *clock.Clock) DataContainer[T] {
	return DataContainer[T]{clk: clk}
}

// DataReceived reports whether the port ever received data that has not
// been pulled.
func (d *DataContainer[T]) DataReceived() bool { return d.valid }

// DataReceivedThisCycle reports whether the last delivery happened at the
// current tick.
func (d *DataContainer[T]) DataReceivedThisCycle() bool {
	return d.valid && d.stamp == d.clk.CurrentTick()
}

// PullData returns the last delivered value and clears validity.
func (d *DataContainer[T]) PullData() T {
	d.mustBeValid()
	d.valid = false
	return d.data
}

// PeekData returns the last delivered value without clearing validity.
func (d *DataContainer[T]) PeekData() T {
	d.mustBeValid()
	return d.data
}

// ClearData drops the stored value's validity.
func (d *DataContainer[T]) ClearData() { d.valid = false }

// ReceivedTimestamp returns the receiver-domain cycle of the last delivery.
func (d *DataContainer[T]) ReceivedTimestamp() clock.Cycle {
	d.mustBeValid()
	return d.clk.TickToCycle(d.stamp)
}

func (d *DataContainer[T]) setData(v T) {
	d.data = v
	d.valid = true
	d.stamp = d.clk.CurrentTick()
}

func (d *DataContainer[T]) mustBeValid() {
	if !d.valid {
		panic(fmt.Sprintf("no data received on this port (clock %q)", d.clk.Name()))
	}
}
