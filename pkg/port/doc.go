/*
Package port implements Loom's typed communication endpoints: data, signal
and sync ports, exported-port indirections, and collectively-bound buses.

Ports are the glue between model components. They exchange data, not
interfaces: an Out port hands each value to the bound In port's internal
delivery Scheduleable, the scheduler fires it at the computed tick, and the
delivery invokes the consumer handler plus any registered listener events.

# Architecture

	┌───────────────────── PORT SYSTEM ────────────────────────┐
	│                                                           │
	│  DataOutPort[T] ──send──▶ DataInPort[T]                  │
	│    - fan-out to many peers   - payload-event delivery    │
	│    - same clock required     - DataContainer polling     │
	│                                                           │
	│  SignalOutPort ──pulse──▶ SignalInPort                   │
	│    - dataless                - unique-event delivery     │
	│                              - scheduled pulses coalesce │
	│                                                           │
	│  SyncOutPort[T] ──send──▶ SyncInPort[T]                  │
	│    - cross clock domain      - posedge-snapped arrivals  │
	│    - one send per cycle      - one arrival per cycle     │
	│    - slide on collision      - latched ready/valid       │
	│                                recirculation             │
	│                                                           │
	│  ExportedPort ──▶ inner port (direct or searched)        │
	│  Bus ◀──▶ Bus   (canonical-name collective binding)      │
	└───────────────────────────────────────────────────────────┘

# Delivery timing

An In port carries a delivery phase and a port delay. The default phase is
Tick for zero-delay ports and PortUpdate otherwise. A send whose total
delay (send delay + port delay) is zero lands within the current tick:
inline when the delivery phase equals the current phase, otherwise
scheduled into the later delivery phase. Zero-delay sends into an earlier
phase are fatal.

# Precedence

Producers registered on an Out port and consumers registered on an In port
are woven into the precedence DAG at bind time:

	producer -> in-port delivery -> consumer    (same phase only)

Registration after binding is rejected, so the edges are always complete.

# Backpressure (sync ports)

A SyncInPort latches its ready signal one cycle deep: ready driven on cycle
M is seen by senders from M+1. Arrivals into a not-ready port recirculate,
rescheduling to the next receiver cycle until the latched ready allows
delivery.

# Usage

	ps, _ := port.NewPortSet(node)
	out, _ := port.NewDataOutPort[uint32](ps, "out_req", clk)
	in, _ := port.NewDataInPort[uint32](peerPS, "in_req", clk, 1)
	in.RegisterConsumerHandler(func(v uint32) { ... })
	port.Bind(out, in)

	out.Send(42)           // arrives one cycle later, PortUpdate phase

# Integration Points

This package integrates with:

  - pkg/sched: internal deliveries are unique events and payload events
  - pkg/clock: sync ports snap arrivals with the crossing helpers
  - pkg/tree: ports live in PortSets under component nodes
*/
package port
