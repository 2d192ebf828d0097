package main

import (
	"math"

	"github.com/squadracorsepolito/acmesig/cannelloni"
	"github.com/squadracorsepolito/acmesig/dbc"
	"github.com/squadracorsepolito/acmesig/profiles/model3"
)

// simulator produces the payloads of a car accelerating to cruise speed and
// back, one step per tick.
type simulator struct {
	pool *dbc.Pool
	step uint64
}

func newSimulator() (*simulator, error) {
	pool, err := model3.NewPool("cangen")
	if err != nil {
		return nil, err
	}

	return &simulator{pool: pool}, nil
}

func (s *simulator) encode(canID uint32, values map[string]dbc.Value) (*cannelloni.Frame, error) {
	msg, err := s.pool.Lookup(canID)
	if err != nil {
		return nil, err
	}

	data, err := msg.Encode(values)
	if err != nil {
		return nil, err
	}

	return cannelloni.NewFrame(canID, data), nil
}

// next returns the packet of the current step and advances the simulation.
func (s *simulator) next() (*cannelloni.Packet, error) {
	phase := float64(s.step%1000) / 1000
	pedal := 50 * (1 - math.Cos(2*math.Pi*phase))
	speed := 120 * math.Sin(math.Pi*phase)
	power := 4*pedal - 100*(1-pedal/100)*phase
	counter := dbc.UintValue(s.step % 16)

	frames := []struct {
		canID  uint32
		values map[string]dbc.Value
	}{
		{
			canID: model3.IDDriveSystemStatus,
			values: map[string]dbc.Value{
				"DiAccelPedalPos":       dbc.FloatValue(math.Round(pedal)),
				"DiGear":                dbc.UintValue(4),
				"DiSystemState":         dbc.UintValue(5),
				"DiSystemStatusCounter": counter,
			},
		},
		{
			canID: model3.IDSpeed,
			values: map[string]dbc.Value{
				"DiVehicleSpeed": dbc.FloatValue(speed),
				"DiUiSpeed":      dbc.UintValue(uint64(math.Round(speed))),
				"DiUiSpeedUnits": dbc.BoolValue(true),
				"DiSpeedCounter": counter,
			},
		},
		{
			canID: model3.IDRearInverterPower,
			values: map[string]dbc.Value{
				"RearPower266":      dbc.FloatValue(math.Round(power*2) / 2),
				"RearPowerLimit266": dbc.UintValue(350),
			},
		},
	}

	packet := cannelloni.NewPacket(uint8(s.step))
	for _, f := range frames {
		frame, err := s.encode(f.canID, f.values)
		if err != nil {
			return nil, err
		}
		packet.AddFrame(frame)
	}

	s.step++

	return packet, nil
}
