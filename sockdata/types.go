// Package sockdata holds the payloads exchanged between the frame source,
// the binding and the subscribers.
package sockdata

import (
	"slices"

	"github.com/squadracorsepolito/acmesig/dbc"
	"github.com/squadracorsepolito/acmesig/subscription"
)

// BmcError is pushed on the raw frame event when a frame cannot be read.
type BmcError struct {
	UID    string `json:"uid"`
	Status int    `json:"status"`
	Info   string `json:"info"`
}

func (e *BmcError) Error() string {
	return e.UID + ": " + e.Info
}

// MessageData is the snapshot of a message.
type MessageData struct {
	CANID  uint32     `json:"canid"`
	Stamp  uint64     `json:"stamp"`
	Status dbc.Opcode `json:"status"`
}

// NewMessageData returns the snapshot of msg.
func NewMessageData(msg *dbc.Message) MessageData {
	return MessageData{
		CANID:  msg.ID(),
		Stamp:  msg.Stamp(),
		Status: msg.Status(),
	}
}

// SignalData is the snapshot of a signal.
type SignalData struct {
	Name   string     `json:"name"`
	Stamp  uint64     `json:"stamp"`
	Status dbc.Status `json:"status"`
	Value  dbc.Value  `json:"value"`
}

// NewSignalData returns the snapshot of sig.
func NewSignalData(sig *dbc.Signal) SignalData {
	return SignalData{
		Name:   sig.Name(),
		Stamp:  sig.Stamp(),
		Status: sig.Status(),
		Value:  sig.Value(),
	}
}

// MessageEvent is the payload of a message event.
type MessageEvent struct {
	Message MessageData  `json:"message"`
	Signals []SignalData `json:"signals"`
}

// SubscribeParam asks the frame source to deliver the given ids.
// Rate and watchdog are in milliseconds, 0 disables the timer.
type SubscribeParam struct {
	CANIDs   []uint32          `json:"canids"`
	Rate     uint64            `json:"rate"`
	Watchdog uint64            `json:"watchdog"`
	Flag     subscription.Flag `json:"flag"`
}

// NewSubscribeParam returns a [SubscribeParam] for the given ids.
func NewSubscribeParam(canIDs []uint32, params subscription.Params) SubscribeParam {
	return SubscribeParam{
		CANIDs:   slices.Clone(canIDs),
		Rate:     params.Rate,
		Watchdog: params.Watchdog,
		Flag:     params.Flag,
	}
}

// UnsubscribeParam asks the frame source to stop delivering the given ids.
type UnsubscribeParam struct {
	CANIDs []uint32 `json:"canids"`
}
