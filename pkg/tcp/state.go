package tcp

import "fmt"

// State is a coarse, display-only label for the connection's lifecycle.
// Unlike a full RFC 793 state machine, transitions are not validated here:
// the engine's actual control flow is driven by the myFinSent/serverFinSeen
// booleans and the send/recv buffer contents, per spec §4.6. LISTEN,
// SYN_RECEIVED, FIN_WAIT_2 and TIME_WAIT have no server/passive-open
// counterpart in this client-only, no-TIME_WAIT-timing stack, so they are
// not represented.
type State uint8

const (
	StateClosed State = iota
	StateSynSent
	StateEstablished
	StateFinWait
	StateCloseWait
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateSynSent:
		return "SYN_SENT"
	case StateEstablished:
		return "ESTABLISHED"
	case StateFinWait:
		return "FIN_WAIT"
	case StateCloseWait:
		return "CLOSE_WAIT"
	case StateClosing:
		return "CLOSING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
}
