package session

import "sync"

// MessageKind tags transport messages.
type MessageKind int

const (
	// MsgHello announces a peer and its handle during synchronization.
	MsgHello MessageKind = iota

	// MsgInput carries one player's actual input for one frame. Inputs for
	// a given sender must arrive in frame order.
	MsgInput

	// MsgConfirmed carries the full input vector of a fully confirmed
	// frame, host to spectator.
	MsgConfirmed

	// MsgChecksum carries a peer's state checksum for a confirmed frame.
	MsgChecksum

	// MsgBye announces a graceful shutdown.
	MsgBye
)

// String returns the lowercase message kind name.
func (k MessageKind) String() string {
	switch k {
	case MsgHello:
		return "hello"
	case MsgInput:
		return "input"
	case MsgConfirmed:
		return "confirmed"
	case MsgChecksum:
		return "checksum"
	case MsgBye:
		return "bye"
	default:
		return "unknown"
	}
}

// Message is the unit exchanged between sessions. The session layer treats
// the transport as opaque: anything that moves Messages in order, without
// duplication, satisfies it. Encoding for real networks is the transport
// implementation's concern.
type Message struct {
	Kind   MessageKind
	Player PlayerHandle
	Frame  Frame

	// Input is the sender's input for Frame (MsgInput).
	Input Input

	// Inputs is the full confirmed vector for Frame (MsgConfirmed).
	Inputs []Input

	// Checksum carries a state checksum (MsgChecksum, and MsgConfirmed
	// when HasChecksum is set).
	Checksum uint64

	// HasChecksum marks a MsgConfirmed that carries the host's checksum
	// for the frame, letting spectators cross-check their own state.
	HasChecksum bool
}

func (m Message) clone() Message {
	out := m
	out.Input = cloneInput(m.Input)
	if m.Inputs != nil {
		out.Inputs = cloneVector(m.Inputs)
	}
	return out
}

// Transport moves messages between two endpoints. Implementations must
// deliver messages in send order and must be safe for use from different
// goroutines on each side. Send and Poll never block on network progress:
// Send enqueues or fails, Poll drains whatever has already arrived.
type Transport interface {
	Send(msg Message) error
	Poll() ([]Message, error)
	Close() error
}

// DefaultPairLimit is the per-direction queue capacity for Pair endpoints.
const DefaultPairLimit = 256

// Pair returns two connected in-memory transport endpoints. Messages sent on
// one side are returned, in order, by Poll on the other. Each direction
// buffers at most limit messages (DefaultPairLimit when limit <= 0); Send
// fails with ErrBacklog beyond that. Closing either endpoint closes the pair:
// the peer can drain what was already queued, after which Poll reports
// ErrClosed.
//
// Pair is the transport used by tests, the examples, and any setup that runs
// several sessions in one process.
func Pair(limit int) (Transport, Transport) {
	if limit <= 0 {
		limit = DefaultPairLimit
	}
	st := &pairState{limit: limit}
	return &pairEnd{st: st, recv: &st.aQueue, send: &st.bQueue},
		&pairEnd{st: st, recv: &st.bQueue, send: &st.aQueue}
}

type pairState struct {
	mu     sync.Mutex
	aQueue []Message
	bQueue []Message
	limit  int
	closed bool
}

type pairEnd struct {
	st   *pairState
	recv *[]Message
	send *[]Message
}

func (e *pairEnd) Send(msg Message) error {
	e.st.mu.Lock()
	defer e.st.mu.Unlock()
	if e.st.closed {
		return ErrClosed
	}
	if len(*e.send) >= e.st.limit {
		return ErrBacklog
	}
	*e.send = append(*e.send, msg.clone())
	return nil
}

func (e *pairEnd) Poll() ([]Message, error) {
	e.st.mu.Lock()
	defer e.st.mu.Unlock()
	if len(*e.recv) == 0 {
		if e.st.closed {
			return nil, ErrClosed
		}
		return nil, nil
	}
	out := *e.recv
	*e.recv = nil
	return out, nil
}

func (e *pairEnd) Close() error {
	e.st.mu.Lock()
	defer e.st.mu.Unlock()
	e.st.closed = true
	return nil
}
