/*
Package model contains the skeleton pipeline: a small end-to-end model that
exercises every port flavor and the event kernel.

	producer0 ──data──▶                ┌──sync──▶ sink (slow clock)
	producer1 ──data──▶  consumer ─────┤
	     ▲                  │          └─ round-robin go pulses
	     └──────signal──────┘

Producers send one integer per go pulse; the consumer takes each value,
forwards it across the clock boundary into the sink, and asks the next
producer for more. The ring drains once a go request lands on a producer
that has exhausted its budget.

The cmd/loom binary runs this model; the package tests use it as the
integration scenario for the kernel.
*/
package model
