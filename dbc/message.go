package dbc

import (
	"fmt"
	"sync"
)

// MessageListener is notified after every update of a message.
type MessageListener interface {
	MessageNotification(msg *Message)
}

// MessageListenerFunc adapts a function to a [MessageListener].
type MessageListenerFunc func(msg *Message)

func (f MessageListenerFunc) MessageNotification(msg *Message) {
	f(msg)
}

// Message groups the signals carried by one CAN identifier.
type Message struct {
	mux sync.Mutex

	def MessageDef

	signals []*Signal

	status    Opcode
	stamp     uint64
	listeners int

	cbMux    sync.Mutex
	callback MessageListener
}

func newMessage(def MessageDef) *Message {
	msg := &Message{
		def:     def,
		signals: make([]*Signal, len(def.Signals)),
		status:  OpUnknown,
	}

	for idx := range msg.def.Signals {
		msg.signals[idx] = newSignal(&msg.def.Signals[idx])
	}

	return msg
}

// TryLock tries to take exclusive ownership of the message without blocking.
func (m *Message) TryLock() bool {
	return m.mux.TryLock()
}

// Unlock releases a message taken with TryLock.
func (m *Message) Unlock() {
	m.mux.Unlock()
}

func (m *Message) ID() uint32 {
	return m.def.ID
}

func (m *Message) Name() string {
	return m.def.Name
}

func (m *Message) Size() uint8 {
	return m.def.Size
}

// Status returns the transport opcode of the last update.
func (m *Message) Status() Opcode {
	return m.status
}

func (m *Message) Stamp() uint64 {
	return m.stamp
}

// Listeners returns the listener tally of the last update only.
func (m *Message) Listeners() int {
	return m.listeners
}

func (m *Message) Signals() []*Signal {
	return m.signals
}

// Signal returns the signal with the given name.
func (m *Message) Signal(name string) (*Signal, bool) {
	for _, sig := range m.signals {
		if sig.Name() == name {
			return sig, true
		}
	}
	return nil, false
}

// Update dispatches the frame to every signal, sums the listener counts
// they report and finally notifies the message listener. A busy message
// listener is reported as a borrow conflict.
func (m *Message) Update(frame Frame) error {
	m.stamp = frame.Stamp
	m.status = frame.Opcode
	m.listeners = 0

	for _, sig := range m.signals {
		if !sig.TryLock() {
			return newDecodeError("signal-update-fail",
				fmt.Sprintf("canid:%d signal:%s already in use", m.def.ID, sig.Name()), ErrBorrowConflict)
		}

		m.listeners += sig.Update(frame)
		sig.Unlock()
	}

	if m.callback == nil {
		return nil
	}

	// the signals keep the frame, only the notification is lost
	if !m.cbMux.TryLock() {
		return newBorrowError("message-callback-busy",
			fmt.Sprintf("canid:%d listener already running, notification skipped", m.def.ID))
	}
	m.callback.MessageNotification(m)
	m.cbMux.Unlock()

	return nil
}

// Reset resets the message and all its signals.
func (m *Message) Reset() error {
	m.status = OpUnknown
	m.stamp = 0

	for _, sig := range m.signals {
		if !sig.TryLock() {
			return newDecodeError("signal-reset-fail",
				fmt.Sprintf("canid:%d signal:%s already in use", m.def.ID, sig.Name()), ErrBorrowConflict)
		}

		sig.Reset()
		sig.Unlock()
	}

	return nil
}

// SetCallback attaches the message listener, replacing the previous one.
func (m *Message) SetCallback(listener MessageListener) {
	m.callback = listener
}

// Encode builds a payload of the message size from the given physical values.
// Signals that are not listed are left to zero.
func (m *Message) Encode(values map[string]Value) ([]byte, error) {
	buf := make([]byte, m.def.Size)

	for name, value := range values {
		sig, ok := m.Signal(name)
		if !ok {
			return nil, NewError(ErrNotFound, ErrorKindLookup, "fail-signal-search",
				fmt.Sprintf("message %s has no signal %s", m.def.Name, name))
		}

		if err := sig.SetValue(value, buf); err != nil {
			return nil, err
		}
	}

	return buf, nil
}
