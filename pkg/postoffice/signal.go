package postoffice

import "github.com/cuemby/hearthd/pkg/hearth"

// Signal is the sum type enqueued into a mailbox: either a Message or a
// Down notification.
type Signal interface {
	isSignal()
}

// Message carries application data and zero or more capabilities that
// were imported into the receiving table atomically with delivery.
type Message struct {
	Data []byte
	Caps []hearth.Handle
}

func (Message) isSignal() {}

// Down is delivered to a monitor exactly once when the monitored route's
// group is killed (or immediately, if it was already dead when Monitor
// was called). Subject always carries empty permissions.
type Down struct {
	Subject hearth.Capability
}

func (Down) isSignal() {}

// SignalKind mirrors the wire-level discriminant used by the guest ABI.
type SignalKind int

const (
	SignalKindMessage SignalKind = 0
	SignalKindDown    SignalKind = 1
)

// Kind reports the wire-level discriminant of a signal.
func Kind(s Signal) SignalKind {
	switch s.(type) {
	case Message:
		return SignalKindMessage
	case Down:
		return SignalKindDown
	default:
		panic("postoffice: unknown signal type")
	}
}
