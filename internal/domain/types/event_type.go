package types

// WireEvent is the closed set of events carried over a bidirectional channel.
// Unknown inbound events are protocol violations, not ignorable noise.
type WireEvent string

func (e WireEvent) String() string {
	return string(e)
}

// Inbound (client -> server)
const (
	EventUserRegister   WireEvent = "user:register"
	EventLocationUpdate WireEvent = "location:update"
	EventRideAccept     WireEvent = "ride:accept"
	EventRideReject     WireEvent = "ride:reject"
)

// Outbound (server -> client)
const (
	EventUserRegistered       WireEvent = "user:registered"
	EventRideRequest          WireEvent = "ride:request"
	EventRideRequestCancelled WireEvent = "ride:request:cancelled"
	EventRideRequestExpired   WireEvent = "ride:request:expired"
	EventRideRequestFailed    WireEvent = "ride:request:failed"
	EventRideAccepted         WireEvent = "ride:accepted"
	EventRideAcceptSuccess    WireEvent = "ride:accept:success"
	EventRideAcceptFailed     WireEvent = "ride:accept:failed"
)

// KnownInbound reports whether e is a valid client-originated event.
func KnownInbound(e WireEvent) bool {
	switch e {
	case EventUserRegister, EventLocationUpdate, EventRideAccept, EventRideReject:
		return true
	default:
		return false
	}
}
