package clock

import "fmt"

// CrossingDelay computes the relative delay in ticks for a value leaving the
// sender's domain at currentTick to arrive in the receiver's domain. The
// nominal arrival tick (currentTick + senderDelayTicks + receiverDelayTicks)
// is snapped forward to the receiver's next posedge.
func CrossingDelay(currentTick, senderDelayTicks Tick, receiverDelayTicks Tick, receiver *Clock) Tick {
	nominal := currentTick + senderDelayTicks + receiverDelayTicks
	return receiver.NextPosedgeAtOrAfter(nominal) - currentTick
}

// ReverseCrossingDelay answers the question "how long before arrivalTick must
// the sender have sent?": it returns arrivalTick minus the latest sender
// posedge whose crossing still lands on arrivalTick. arrivalTick must be a
// receiver posedge.
func ReverseCrossingDelay(arrivalTick, senderDelayTicks Tick, sender *Clock, receiverDelayTicks Tick, receiver *Clock) Tick {
	if arrivalTick%receiver.Period() != 0 {
		panic(fmt.Sprintf("reverse crossing: arrival tick %d is not a posedge of clock %q (period %d)",
			arrivalTick, receiver.Name(), receiver.Period()))
	}
	latest := arrivalTick - senderDelayTicks - receiverDelayTicks
	// Latest sender posedge at or before the latest feasible send tick.
	sendTick := latest - latest%sender.Period()
	if arrivalTick <= sendTick {
		panic(fmt.Sprintf("reverse crossing: arrival tick %d does not follow send tick %d",
			arrivalTick, sendTick))
	}
	return arrivalTick - sendTick
}
