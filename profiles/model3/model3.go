// Package model3 is the bundled message table of the Tesla Model 3 vehicle bus
// subset: drive system status (0x118), vehicle speed (0x257) and rear inverter
// power (0x266).
package model3

import "github.com/squadracorsepolito/acmesig/dbc"

const (
	IDDriveSystemStatus   uint32 = 0x118
	IDSpeed               uint32 = 0x257
	IDRearInverterPower   uint32 = 0x266
	driveSystemStatusName        = "ID118DriveSystemStatus"
	speedName                    = "ID257DIspeed"
	rearInverterPowerName        = "ID266RearInverterPower"
)

func sentinel(raw uint64) *uint64 {
	return &raw
}

func uintSignal(name string, start, length uint16, maxVal float64, enums ...dbc.EnumDef) dbc.SignalDef {
	return dbc.SignalDef{
		Name:     name,
		StartBit: start,
		Length:   length,
		Kind:     dbc.KindUint,
		HasRange: true,
		Max:      maxVal,
		Enums:    enums,
	}
}

func boolSignal(name string, start uint16, enums ...dbc.EnumDef) dbc.SignalDef {
	return dbc.SignalDef{
		Name:     name,
		StartBit: start,
		Length:   1,
		Kind:     dbc.KindBool,
		Enums:    enums,
	}
}

func powerSignal(name string, start uint16) dbc.SignalDef {
	return dbc.SignalDef{
		Name:     name,
		Unit:     "kW",
		StartBit: start,
		Length:   8,
		Kind:     dbc.KindFloat,
		Factor:   0.08,
		HasRange: true,
		Max:      20,
	}
}

// Messages returns a fresh copy of the message table.
func Messages() []dbc.MessageDef {
	return []dbc.MessageDef{
		driveSystemStatus(),
		speed(),
		rearInverterPower(),
	}
}

// NewPool builds a pool of the whole table.
func NewPool(uid string) (*dbc.Pool, error) {
	return dbc.NewPool(uid, Messages())
}

func driveSystemStatus() dbc.MessageDef {
	return dbc.MessageDef{
		ID:   IDDriveSystemStatus,
		Name: driveSystemStatusName,
		Size: 8,
		Signals: []dbc.SignalDef{
			{
				Name:         "DiAccelPedalPos",
				Unit:         "%",
				StartBit:     32,
				Length:       8,
				Kind:         dbc.KindFloat,
				Factor:       0.4,
				HasRange:     true,
				Max:          100,
				Enums:        []dbc.EnumDef{{Name: "Sna", Raw: 255, ReadOnly: true}},
				NotAvailable: sentinel(255),
			},
			uintSignal("DiBrakePedalState", 19, 2, 2,
				dbc.EnumDef{Name: "Off", Raw: 0},
				dbc.EnumDef{Name: "On", Raw: 1},
				dbc.EnumDef{Name: "Invalid", Raw: 2},
			),
			uintSignal("DiDriveBlocked", 12, 2, 2,
				dbc.EnumDef{Name: "DriveBlockedNone", Raw: 0},
				dbc.EnumDef{Name: "DriveBlockedFrunk", Raw: 1},
				dbc.EnumDef{Name: "DriveBlockedProx", Raw: 2},
			),
			uintSignal("DiEpbRequest", 44, 2, 2,
				dbc.EnumDef{Name: "NoRequest", Raw: 0},
				dbc.EnumDef{Name: "Park", Raw: 1},
				dbc.EnumDef{Name: "Unpark", Raw: 2},
			),
			uintSignal("DiGear", 21, 3, 7,
				dbc.EnumDef{Name: "Invalid", Raw: 0},
				dbc.EnumDef{Name: "P", Raw: 1},
				dbc.EnumDef{Name: "R", Raw: 2},
				dbc.EnumDef{Name: "N", Raw: 3},
				dbc.EnumDef{Name: "D", Raw: 4},
				dbc.EnumDef{Name: "Sna", Raw: 7, ReadOnly: true},
			),
			uintSignal("DiImmobilizerState", 27, 3, 6,
				dbc.EnumDef{Name: "InitSna", Raw: 0, ReadOnly: true},
				dbc.EnumDef{Name: "Request", Raw: 1},
				dbc.EnumDef{Name: "Authenticating", Raw: 2},
				dbc.EnumDef{Name: "Disarmed", Raw: 3},
				dbc.EnumDef{Name: "Idle", Raw: 4},
				dbc.EnumDef{Name: "Reset", Raw: 5},
				dbc.EnumDef{Name: "Fault", Raw: 6},
			),
			boolSignal("DiKeepDrivePowerStateRequest", 47,
				dbc.EnumDef{Name: "NoRequest", Raw: 0},
				dbc.EnumDef{Name: "KeepAlive", Raw: 1},
			),
			boolSignal("DiProximity", 46),
			boolSignal("DiRegenLight", 26),
			uintSignal("DiSystemState", 16, 3, 5,
				dbc.EnumDef{Name: "Unavailable", Raw: 0},
				dbc.EnumDef{Name: "Idle", Raw: 1},
				dbc.EnumDef{Name: "Standby", Raw: 2},
				dbc.EnumDef{Name: "Fault", Raw: 3},
				dbc.EnumDef{Name: "Abort", Raw: 4},
				dbc.EnumDef{Name: "Enable", Raw: 5},
			),
			uintSignal("DiSystemStatusChecksum", 0, 8, 255),
			uintSignal("DiSystemStatusCounter", 8, 4, 15),
			uintSignal("DiTrackModeState", 48, 2, 2,
				dbc.EnumDef{Name: "Unavailable", Raw: 0},
				dbc.EnumDef{Name: "Available", Raw: 1},
				dbc.EnumDef{Name: "On", Raw: 2},
			),
			uintSignal("DiTractionControlMode", 40, 3, 6,
				dbc.EnumDef{Name: "Standard", Raw: 0},
				dbc.EnumDef{Name: "SlipStart", Raw: 1},
				dbc.EnumDef{Name: "Dev1", Raw: 2},
				dbc.EnumDef{Name: "Dev2", Raw: 3},
				dbc.EnumDef{Name: "RollsMode", Raw: 4},
				dbc.EnumDef{Name: "DynoMode", Raw: 5},
				dbc.EnumDef{Name: "OffroadAssist", Raw: 6},
			),
		},
	}
}

func speed() dbc.MessageDef {
	return dbc.MessageDef{
		ID:   IDSpeed,
		Name: speedName,
		Size: 8,
		Signals: []dbc.SignalDef{
			uintSignal("DiSpeedChecksum", 0, 8, 255),
			uintSignal("DiSpeedCounter", 8, 4, 15),
			func() dbc.SignalDef {
				sd := uintSignal("DiUiSpeed", 24, 9, 510,
					dbc.EnumDef{Name: "Sna", Raw: 511, ReadOnly: true})
				sd.NotAvailable = sentinel(511)
				return sd
			}(),
			func() dbc.SignalDef {
				sd := uintSignal("DiUiSpeedHighSpeed", 34, 9, 510,
					dbc.EnumDef{Name: "Sna", Raw: 511, ReadOnly: true})
				sd.NotAvailable = sentinel(511)
				return sd
			}(),
			boolSignal("DiUiSpeedUnits", 33,
				dbc.EnumDef{Name: "Mph", Raw: 0},
				dbc.EnumDef{Name: "Kph", Raw: 1},
			),
			{
				Name:         "DiVehicleSpeed",
				Unit:         "kph",
				StartBit:     12,
				Length:       12,
				Kind:         dbc.KindFloat,
				Factor:       0.08,
				Offset:       -40,
				HasRange:     true,
				Min:          -40,
				Max:          285,
				Enums:        []dbc.EnumDef{{Name: "Sna", Raw: 4095, ReadOnly: true}},
				NotAvailable: sentinel(4095),
			},
		},
	}
}

func rearInverterPower() dbc.MessageDef {
	return dbc.MessageDef{
		ID:   IDRearInverterPower,
		Name: rearInverterPowerName,
		Size: 8,
		Signals: []dbc.SignalDef{
			powerSignal("RearHeatPowerMax266", 24),
			{
				Name:     "RearPowerLimit266",
				Unit:     "kW",
				StartBit: 48,
				Length:   9,
				Kind:     dbc.KindUint,
				HasRange: true,
				Max:      400,
			},
			powerSignal("RearHeatPower266", 32),
			powerSignal("RearHeatPowerOptimal266", 16),
			powerSignal("RearExcessHeatCmd", 40),
			{
				Name:     "RearPower266",
				Unit:     "kW",
				StartBit: 0,
				Length:   11,
				Kind:     dbc.KindFloat,
				Signed:   true,
				Factor:   0.5,
				HasRange: true,
				Min:      -500,
				Max:      500,
			},
		},
	}
}
