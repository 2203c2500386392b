package session

import (
	"slices"

	"tickscope/pkg/ibkr"
)

type State int

const (
	Idle State = iota
	Connecting
	AwaitingToken
	Streaming
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case AwaitingToken:
		return "awaiting_token"
	case Streaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// Sender writes one outbound text frame.
type Sender interface {
	SendText(text string) error
}

// Machine tracks the handshake of one connection: it holds subscriptions back
// until the gateway has issued a session token, then flushes them in a single
// request. Machine is not safe for concurrent use; its owner serializes calls.
type Machine struct {
	state   State
	sender  Sender
	token   string
	pending []ibkr.ConID
}

func NewMachine() *Machine {
	return &Machine{}
}

func (m *Machine) State() State  { return m.state }
func (m *Machine) Token() string { return m.token }

// Pending returns a copy of the ids waiting for a token.
func (m *Machine) Pending() []ibkr.ConID {
	return slices.Clone(m.pending)
}

// Begin starts a new connection attempt. Any previous token is forgotten and
// ids become the pending subscription.
func (m *Machine) Begin(ids []ibkr.ConID) {
	m.state = Connecting
	m.sender = nil
	m.token = ""
	m.pending = mergeIDs(nil, ids)
}

// Opened records that the transport is up. If a token was already seen on this
// connection the pending ids are flushed right away.
func (m *Machine) Opened(sender Sender) error {
	if m.state != Connecting {
		return nil
	}
	m.sender = sender
	m.state = AwaitingToken
	if m.token == "" {
		return nil
	}
	m.state = Streaming
	return m.flush()
}

// HandleToken applies a control frame. Only the first token of a connection
// counts; later ones are ignored and nothing is re-sent. sent reports whether a
// subscription request went out.
func (m *Machine) HandleToken(token string) (sent bool, err error) {
	if m.state == Idle || m.token != "" {
		return false, nil
	}
	m.token = token
	if m.sender == nil {
		// transport not reported open yet, Opened flushes
		return false, nil
	}
	m.state = Streaming
	if len(m.pending) == 0 {
		return false, nil
	}
	return true, m.flush()
}

// Subscribe sends ids immediately once a token is known, otherwise it merges
// them into the pending set.
func (m *Machine) Subscribe(ids []ibkr.ConID) error {
	if len(ids) == 0 {
		return nil
	}
	if m.token == "" || m.sender == nil {
		m.pending = mergeIDs(m.pending, ids)
		return nil
	}
	return m.send(mergeIDs(nil, ids))
}

// Reset returns the machine to Idle and drops the token and pending ids.
func (m *Machine) Reset() {
	m.state = Idle
	m.sender = nil
	m.token = ""
	m.pending = nil
}

// flush drains pending in one request. The set is cleared before sending so a
// failed write is never retried on this connection.
func (m *Machine) flush() error {
	if len(m.pending) == 0 {
		return nil
	}
	ids := m.pending
	m.pending = nil
	return m.send(ids)
}

func (m *Machine) send(ids []ibkr.ConID) error {
	if err := m.sender.SendText(ibkr.EncodeSubscribe(ids, m.token)); err != nil {
		return &TransportError{Op: "subscribe", Err: err}
	}
	return nil
}

// mergeIDs appends ids not already in dst, keeping first-seen order.
func mergeIDs(dst, ids []ibkr.ConID) []ibkr.ConID {
	for _, id := range ids {
		if !slices.Contains(dst, id) {
			dst = append(dst, id)
		}
	}
	return dst
}
