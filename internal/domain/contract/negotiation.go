package contract

// NegotiationState is the state of one negotiation attempt.
type NegotiationState string

const (
	StateOffered           NegotiationState = "OFFERED"
	StateRequested         NegotiationState = "REQUESTED"
	StateAgreedUnconfirmed NegotiationState = "AGREED_UNCONFIRMED"
	StateConfirmed         NegotiationState = "CONFIRMED"
	StateRejected          NegotiationState = "REJECTED"
)

// NegotiationEvent drives the negotiation state machine.
type NegotiationEvent string

const (
	EventRequest NegotiationEvent = "REQUEST"
	EventAgree   NegotiationEvent = "AGREE"
	EventConfirm NegotiationEvent = "CONFIRM"
	EventReject  NegotiationEvent = "REJECT"
)

// CanTransition reports whether the negotiation may move from one state to another.
func CanTransition(from, to NegotiationState) bool {
	switch from {
	case StateOffered:
		return to == StateRequested
	case StateRequested:
		return to == StateAgreedUnconfirmed || to == StateRejected
	case StateAgreedUnconfirmed:
		return to == StateConfirmed || to == StateRejected
	default:
		return false
	}
}

// Transition moves from one state to another or returns ErrInvalidTransition.
func Transition(from, to NegotiationState) (NegotiationState, error) {
	if !CanTransition(from, to) {
		return from, ErrInvalidTransition
	}
	return to, nil
}

// Next applies event to from.
func Next(from NegotiationState, event NegotiationEvent) (NegotiationState, error) {
	switch event {
	case EventRequest:
		return Transition(from, StateRequested)
	case EventAgree:
		return Transition(from, StateAgreedUnconfirmed)
	case EventConfirm:
		return Transition(from, StateConfirmed)
	case EventReject:
		return Transition(from, StateRejected)
	default:
		return from, ErrInvalidTransition
	}
}

// IsTerminal reports whether no further transition is possible.
func (s NegotiationState) IsTerminal() bool {
	return s == StateConfirmed || s == StateRejected
}
