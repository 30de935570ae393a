package sched

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/loom-sim/loom/pkg/clock"
	"github.com/loom-sim/loom/pkg/log"
	"github.com/loom-sim/loom/pkg/metrics"
	"github.com/loom-sim/loom/pkg/tree"
)

const (
	// proxyPoolGrowth is how many proxies are added when the pool runs dry.
	proxyPoolGrowth = 16

	// outstandingWarnThreshold triggers a (one-shot) warning about runaway
	// allocation; execution continues.
	outstandingWarnThreshold = 100000
)

// PayloadEvent is a factory for payload-carrying occurrences of one handler.
// The event itself is never scheduled; each PreparePayload call takes a
// proxy from a preallocated pool, stores one value of T in it, and that
// proxy is what goes on the scheduler. Fired and cancelled proxies return
// to the pool once no handle points at them.
type PayloadEvent[T any] struct {
	name    string
	node    *tree.Node
	proto   *Scheduleable
	handler func(T)
	sch     *Scheduler
	logger  zerolog.Logger

	slab     []*proxy[T]
	free     []*proxy[T]
	inflight *proxy[T] // head of the in-flight list
	nflight  int
	warned   bool
}

// proxy is one poolable occurrence. It rides the scheduler through its
// embedded Scheduleable and links into the parent's in-flight list.
type proxy[T any] struct {
	ev      Scheduleable
	parent  *PayloadEvent[T]
	payload T

	next, prev *proxy[T]
	inflight   bool
	scheduled  bool
	cancelled  bool
	handles    int
}

// Handle is a reference to a prepared proxy. While a handle exists or the
// proxy is scheduled, the pool slot is not reclaimed.
type Handle[T any] struct {
	p        *proxy[T]
	released bool
}

// NewPayloadEvent creates a payload event delivering values of T to handler
// in the given phase.
func NewPayloadEvent[T any](es *EventSet, name string, phase Phase, delay clock.Cycle, handler func(T)) *PayloadEvent[T] {
	node := tree.MustChild(es.node, name, "payload event")
	sch := schedulerOf(es.clk)
	pe := &PayloadEvent[T]{
		name:    name,
		node:    node,
		handler: handler,
		sch:     sch,
		logger:  log.WithEvent(name),
	}
	pe.proto = &Scheduleable{
		label:        name,
		phase:        phase,
		defaultDelay: delay,
		clk:          es.clk,
		sch:          sch,
		continuing:   true,
		knd:          kindPayloadProxy,
	}
	pe.proto.vertex = sch.dag.newVertex(name, phase)
	node.Payload = pe
	return pe
}

// Proto returns the non-scheduled prototype used for precedence: edges
// against a payload event bind to its prototype's vertex, which every proxy
// shares.
func (pe *PayloadEvent[T]) Proto() *Scheduleable { return pe.proto }

// PrecedenceVertices implements Linkable.
func (pe *PayloadEvent[T]) PrecedenceVertices() []*Vertex { return []*Vertex{pe.proto.vertex} }

// PrecedenceScheduler implements Linkable.
func (pe *PayloadEvent[T]) PrecedenceScheduler() *Scheduler { return pe.sch }

// SetContinuing marks whether pending proxies keep the scheduler running.
// Applies to proxies prepared after the call.
func (pe *PayloadEvent[T]) SetContinuing(continuing bool) {
	pe.proto.continuing = continuing
}

// SetLabel renames the event for diagnostics.
func (pe *PayloadEvent[T]) SetLabel(label string) {
	pe.name = label
	pe.proto.SetLabel(label)
}

// PreparePayload takes a proxy from the pool and stores the payload in it.
// The returned handle can be scheduled now or later; call Release when the
// handle is no longer needed.
func (pe *PayloadEvent[T]) PreparePayload(payload T) *Handle[T] {
	p := pe.allocate()
	p.payload = payload
	p.handles = 1
	return &Handle[T]{p: p}
}

// Schedule prepares a payload and schedules it delayCycles out in one step.
// No handle is retained; the proxy reclaims itself after firing.
func (pe *PayloadEvent[T]) Schedule(payload T, delayCycles clock.Cycle) {
	p := pe.allocate()
	p.payload = payload
	p.schedule(pe.proto.clk.CycleToTick(delayCycles))
}

// NumOutstanding returns the number of proxies that are scheduled or held
// by a handle.
func (pe *PayloadEvent[T]) NumOutstanding() int { return pe.nflight }

// IsScheduled reports whether any proxy is outstanding.
func (pe *PayloadEvent[T]) IsScheduled() bool { return pe.nflight > 0 }

// IsScheduledAt reports whether a proxy is pending at the given relative
// cycle.
func (pe *PayloadEvent[T]) IsScheduledAt(relCycles clock.Cycle) bool {
	rel := pe.proto.clk.CycleToTick(relCycles)
	for p := pe.inflight; p != nil; p = p.next {
		if p.scheduled && pe.sch.isScheduled(&p.ev, &rel) {
			return true
		}
	}
	return false
}

// Cancel squashes every in-flight proxy and returns how many were touched.
func (pe *PayloadEvent[T]) Cancel() uint32 {
	return pe.cancelMatching(func(T) bool { return true })
}

// CancelAt squashes proxies pending at the given relative cycle.
func (pe *PayloadEvent[T]) CancelAt(relCycles clock.Cycle) uint32 {
	rel := pe.proto.clk.CycleToTick(relCycles)
	var n uint32
	for _, p := range pe.inflightSnapshot() {
		if p.scheduled && pe.sch.isScheduled(&p.ev, &rel) {
			p.cancel()
			n++
		}
	}
	return n
}

// CancelIfFn squashes every in-flight proxy whose payload satisfies pred.
func (pe *PayloadEvent[T]) CancelIfFn(pred func(T) bool) uint32 {
	return pe.cancelMatching(pred)
}

// ConfirmIfFn reports whether any in-flight payload satisfies pred.
func (pe *PayloadEvent[T]) ConfirmIfFn(pred func(T) bool) bool {
	for p := pe.inflight; p != nil; p = p.next {
		if pred(p.payload) {
			return true
		}
	}
	return false
}

// HandlesIfFn returns handles to every in-flight proxy whose payload
// satisfies pred. The handles add holds; release them when done.
func (pe *PayloadEvent[T]) HandlesIfFn(pred func(T) bool) []*Handle[T] {
	var out []*Handle[T]
	for p := pe.inflight; p != nil; p = p.next {
		if pred(p.payload) {
			p.handles++
			out = append(out, &Handle[T]{p: p})
		}
	}
	return out
}

// CancelIf squashes in-flight proxies whose payload equals v.
func CancelIf[T comparable](pe *PayloadEvent[T], v T) uint32 {
	return pe.CancelIfFn(func(o T) bool { return o == v })
}

// ConfirmIf reports whether any in-flight payload equals v.
func ConfirmIf[T comparable](pe *PayloadEvent[T], v T) bool {
	return pe.ConfirmIfFn(func(o T) bool { return o == v })
}

func (pe *PayloadEvent[T]) cancelMatching(pred func(T) bool) uint32 {
	var n uint32
	for _, p := range pe.inflightSnapshot() {
		if pred(p.payload) {
			p.cancel()
			n++
		}
	}
	return n
}

// inflightSnapshot copies the list so cancellation can unlink as it goes.
func (pe *PayloadEvent[T]) inflightSnapshot() []*proxy[T] {
	out := make([]*proxy[T], 0, pe.nflight)
	for p := pe.inflight; p != nil; p = p.next {
		out = append(out, p)
	}
	return out
}

func (pe *PayloadEvent[T]) allocate() *proxy[T] {
	if len(pe.free) == 0 {
		pe.grow()
	}
	p := pe.free[len(pe.free)-1]
	pe.free = pe.free[:len(pe.free)-1]

	p.cancelled = false
	p.scheduled = false
	p.handles = 0
	p.ev.continuing = pe.proto.continuing

	// Push onto the in-flight list.
	p.next = pe.inflight
	p.prev = nil
	if pe.inflight != nil {
		pe.inflight.prev = p
	}
	pe.inflight = p
	p.inflight = true
	pe.nflight++
	metrics.PayloadsOutstanding.WithLabelValues(pe.name).Set(float64(pe.nflight))

	if pe.nflight > outstandingWarnThreshold && !pe.warned {
		pe.warned = true
		pe.logger.Warn().
			Int("outstanding", pe.nflight).
			Msg("Payload event has a suspicious number of outstanding proxies")
	}
	return p
}

func (pe *PayloadEvent[T]) grow() {
	metrics.PayloadPoolGrowthTotal.Inc()
	for i := 0; i < proxyPoolGrowth; i++ {
		p := &proxy[T]{parent: pe}
		p.ev = *pe.proto
		p.ev.handler = p.deliver
		p.ev.onUnqueued = p.unqueued
		pe.slab = append(pe.slab, p)
		pe.free = append(pe.free, p)
	}
}

func (pe *PayloadEvent[T]) reclaim(p *proxy[T]) {
	if !p.inflight {
		return
	}
	if p.prev != nil {
		p.prev.next = p.next
	} else {
		pe.inflight = p.next
	}
	if p.next != nil {
		p.next.prev = p.prev
	}
	p.next, p.prev = nil, nil
	p.inflight = false
	p.cancelled = false
	pe.nflight--
	pe.free = append(pe.free, p)
	metrics.PayloadsOutstanding.WithLabelValues(pe.name).Set(float64(pe.nflight))
}

func (p *proxy[T]) schedule(relTicks clock.Tick) {
	if p.scheduled || p.cancelled {
		panic(fmt.Sprintf("payload event %q: this proxy is already scheduled or was previously cancelled; prepare a new one",
			p.parent.name))
	}
	p.ev.ScheduleRelativeTick(relTicks)
	p.scheduled = true
}

// deliver is the queue-side handler: hand the payload to the consumer, then
// recycle.
func (p *proxy[T]) deliver() {
	p.parent.handler(p.payload)
	p.tryReclaim()
}

// unqueued runs when the proxy's queue entry is fired or cancelled.
func (p *proxy[T]) unqueued(fired bool) {
	p.scheduled = false
	if !fired {
		p.cancelled = true
		p.tryReclaim()
	}
}

func (p *proxy[T]) cancel() {
	if p.scheduled {
		p.ev.Cancel() // unqueued(false) follows
		return
	}
	p.cancelled = true
	p.tryReclaim()
}

func (p *proxy[T]) tryReclaim() {
	if !p.scheduled && p.handles == 0 {
		p.parent.reclaim(p)
	}
}

// Payload returns the value stored in the proxy.
func (h *Handle[T]) Payload() T { return h.p.payload }

// Schedule places the proxy delayCycles of the event's clock out.
func (h *Handle[T]) Schedule(delayCycles clock.Cycle) {
	h.p.schedule(h.p.parent.proto.clk.CycleToTick(delayCycles))
}

// ScheduleRelativeTick places the proxy relTicks after the current tick.
func (h *Handle[T]) ScheduleRelativeTick(relTicks clock.Tick) {
	h.p.schedule(relTicks)
}

// Cancel squashes the proxy whether or not it is scheduled.
func (h *Handle[T]) Cancel() {
	h.p.cancel()
}

// Release drops this handle's hold on the proxy. The slot is reclaimed once
// it is neither scheduled nor held.
func (h *Handle[T]) Release() {
	if h.released {
		return
	}
	h.released = true
	h.p.handles--
	h.p.tryReclaim()
}
