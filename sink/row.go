// Package sink records the published events into a time series store.
package sink

import (
	"time"

	"github.com/squadracorsepolito/acmesig/dbc"
	"github.com/squadracorsepolito/acmesig/host/memory"
	"github.com/squadracorsepolito/acmesig/sockdata"
)

// Row is a signal sample ready to be stored.
type Row struct {
	Event  string
	CANID  uint32
	Signal string
	Status dbc.Status
	Value  dbc.Value
	Stamp  time.Time
}

func newRow(event string, canID uint32, sig *sockdata.SignalData) Row {
	return Row{
		Event:  event,
		CANID:  canID,
		Signal: sig.Name,
		Status: sig.Status,
		Value:  sig.Value,
		Stamp:  time.UnixMicro(int64(sig.Stamp)),
	}
}

// RowsOf converts a delivery into rows. Payloads that are not signal
// or message events give no row.
func RowsOf(delivery memory.Delivery) []Row {
	switch data := delivery.Data.(type) {
	case sockdata.SignalData:
		return []Row{newRow(delivery.Event, 0, &data)}

	case *sockdata.MessageEvent:
		rows := make([]Row, 0, len(data.Signals))
		for idx := range data.Signals {
			rows = append(rows, newRow(delivery.Event, data.Message.CANID, &data.Signals[idx]))
		}
		return rows
	}

	return nil
}
