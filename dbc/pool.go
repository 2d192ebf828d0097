package dbc

import (
	"cmp"
	"fmt"
	"slices"
	"sort"
)

// MessageHandle is a message held exclusively by its caller.
// It must be released as soon as possible.
type MessageHandle struct {
	*Message
}

// Release gives the message back to the pool.
func (h *MessageHandle) Release() {
	h.Message.Unlock()
}

// Pool is the fixed set of messages of a bus profile, sorted by CAN id.
type Pool struct {
	uid string

	messages []*Message
	ids      []uint32
}

// NewPool validates the definitions and builds the pool.
func NewPool(uid string, defs []MessageDef) (*Pool, error) {
	sorted := slices.Clone(defs)
	slices.SortFunc(sorted, func(a, b MessageDef) int {
		return cmp.Compare(a.ID, b.ID)
	})

	p := &Pool{
		uid:      uid,
		messages: make([]*Message, 0, len(sorted)),
		ids:      make([]uint32, 0, len(sorted)),
	}

	for idx, def := range sorted {
		if err := def.validate(); err != nil {
			return nil, err
		}

		if idx > 0 && sorted[idx-1].ID == def.ID {
			return nil, fmt.Errorf("%w: %d (%s and %s)", ErrDuplicateID, def.ID, sorted[idx-1].Name, def.Name)
		}

		p.messages = append(p.messages, newMessage(def))
		p.ids = append(p.ids, def.ID)
	}

	return p, nil
}

func (p *Pool) UID() string {
	return p.uid
}

func (p *Pool) Messages() []*Message {
	return p.messages
}

// IDs returns the CAN ids, parallel to Messages.
func (p *Pool) IDs() []uint32 {
	return p.ids
}

// Lookup returns the message with the given id without taking it.
func (p *Pool) Lookup(canID uint32) (*Message, error) {
	idx := sort.Search(len(p.ids), func(i int) bool { return p.ids[i] >= canID })
	if idx == len(p.ids) || p.ids[idx] != canID {
		return nil, NewError(ErrNotFound, ErrorKindLookup, "fail-canid-search", fmt.Sprintf("canid:%d not found", canID))
	}
	return p.messages[idx], nil
}

// GetMut returns the message with the given id held exclusively.
func (p *Pool) GetMut(canID uint32) (*MessageHandle, error) {
	msg, err := p.Lookup(canID)
	if err != nil {
		return nil, err
	}

	if !msg.TryLock() {
		return nil, newBorrowError("message-get_mut", "internal msg pool error")
	}

	return &MessageHandle{Message: msg}, nil
}

// Update forwards the frame to the matching message. On success the returned
// handle is still held and must be released by the caller.
func (p *Pool) Update(frame Frame) (*MessageHandle, error) {
	handle, err := p.GetMut(frame.CANID)
	if err != nil {
		return nil, err
	}

	if err := handle.Update(frame); err != nil {
		handle.Release()
		return nil, err
	}

	return handle, nil
}
