package dbc

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/squadracorsepolito/acmelib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getAcmelibMessages(t *testing.T, count int) []*acmelib.Message {
	t.Helper()

	messages := []*acmelib.Message{}

	sigType, err := acmelib.NewIntegerSignalType("sig_type", 8, false)
	require.NoError(t, err)

	for i := range count {
		msg := acmelib.NewMessage(fmt.Sprintf("message_%d", i), acmelib.MessageID(i+1), 8)

		for j := range 4 {
			sig, err := acmelib.NewStandardSignal(fmt.Sprintf("message_%d_signal_%d", i, j), sigType)
			require.NoError(t, err)
			require.NoError(t, msg.InsertSignal(sig, j*16))
		}

		messages = append(messages, msg)
	}

	return messages
}

func Test_FromAcmelib(t *testing.T) {
	assert := assert.New(t)

	messages := getAcmelibMessages(t, 3)

	defs, err := FromAcmelib(messages)
	require.NoError(t, err)
	require.Len(t, defs, 3)

	for _, def := range defs {
		require.Len(t, def.Signals, 4)
		assert.Equal(uint8(8), def.Size)

		for j, sig := range def.Signals {
			assert.Equal(uint16(j*16), sig.StartBit)
			assert.Equal(uint16(8), sig.Length)
			assert.Equal(LittleEndian, sig.ByteOrder)
		}
	}

	restricted, err := FromAcmelib(messages, 2)
	require.NoError(t, err)
	require.Len(t, restricted, 1)
	assert.Equal(uint32(2), restricted[0].ID)
}

func Test_FromAcmelib_MatchesSignalLayout(t *testing.T) {
	assert := assert.New(t)

	messages := getAcmelibMessages(t, 2)
	defs, err := FromAcmelib(messages)
	require.NoError(t, err)

	pool, err := NewPool("acmelib", defs)
	require.NoError(t, err)

	rnd := rand.New(rand.NewPCG(1, 2))

	for _, acmeMsg := range messages {
		msg, err := pool.Lookup(uint32(acmeMsg.GetCANID()))
		require.NoError(t, err)

		for stamp := range uint64(16) {
			data := make([]byte, 8)
			for idx := range data {
				data[idx] = byte(rnd.UintN(256))
			}

			require.NoError(t, msg.Update(Frame{CANID: msg.ID(), Stamp: stamp + 1, Opcode: OpRxChanged, Data: data}))

			for _, dec := range acmeMsg.SignalLayout().Decode(data) {
				sig, ok := msg.Signal(dec.Signal.Name())
				require.True(t, ok)
				assert.Equal(uint64(dec.RawValue), sig.Raw())
			}
		}
	}
}

// getInverterMessage returns a message with a scaled signed power, an
// offset temperature and a gear enum, laid out like the rear inverter frames.
func getInverterMessage(t *testing.T) *acmelib.Message {
	t.Helper()

	msg := acmelib.NewMessage("rear_inverter", acmelib.MessageID(0x266), 8)

	powerType, err := acmelib.NewDecimalSignalType("power_type", 11, true)
	require.NoError(t, err)
	powerType.SetScale(0.5)
	powerType.SetMin(-500)
	powerType.SetMax(500)

	power, err := acmelib.NewStandardSignal("rear_power", powerType)
	require.NoError(t, err)
	power.SetUnit(acmelib.NewSignalUnit("kilowatt", acmelib.SignalUnitKindCustom, "kW"))
	require.NoError(t, msg.InsertSignal(power, 0))

	tempType, err := acmelib.NewDecimalSignalType("temp_type", 8, false)
	require.NoError(t, err)
	tempType.SetScale(0.5)
	tempType.SetOffset(-40)
	tempType.SetMin(-40)
	tempType.SetMax(87.5)

	temp, err := acmelib.NewStandardSignal("stator_temp", tempType)
	require.NoError(t, err)
	require.NoError(t, msg.InsertSignal(temp, 16))

	gearEnum := acmelib.NewSignalEnum("gear_enum")
	for idx, name := range []string{"INVALID", "P", "R", "N", "D"} {
		require.NoError(t, gearEnum.AddValue(acmelib.NewSignalEnumValue(name, idx)))
	}

	gear, err := acmelib.NewEnumSignal("gear", gearEnum)
	require.NoError(t, err)
	require.NoError(t, msg.InsertSignal(gear, 32))

	return msg
}

// getMotorolaMessage returns a message with a single big endian signal.
func getMotorolaMessage(t *testing.T) *acmelib.Message {
	t.Helper()

	msg := acmelib.NewMessage("motor_speed", acmelib.MessageID(0x108), 8)

	rpmType, err := acmelib.NewIntegerSignalType("rpm_type", 16, false)
	require.NoError(t, err)

	rpm, err := acmelib.NewStandardSignal("motor_rpm", rpmType)
	require.NoError(t, err)
	rpm.SetEndianness(acmelib.EndiannessBigEndian)
	require.NoError(t, msg.InsertSignal(rpm, 24))

	return msg
}

func signalDefOf(t *testing.T, def MessageDef, name string) SignalDef {
	t.Helper()

	for _, sig := range def.Signals {
		if sig.Name == name {
			return sig
		}
	}

	require.Failf(t, "missing signal", "%s has no signal %s", def.Name, name)
	return SignalDef{}
}

func Test_FromAcmelib_Probing(t *testing.T) {
	assert := assert.New(t)

	defs, err := FromAcmelib([]*acmelib.Message{getInverterMessage(t), getMotorolaMessage(t)})
	require.NoError(t, err)
	require.Len(t, defs, 2)

	inverter := defs[0]

	power := signalDefOf(t, inverter, "rear_power")
	assert.Equal(KindFloat, power.Kind)
	assert.True(power.Signed)
	assert.Equal(uint16(11), power.Length)
	assert.InDelta(0.5, power.Factor, 1e-12)
	assert.InDelta(0.0, power.Offset, 1e-12)
	assert.True(power.HasRange)
	assert.Equal(-500.0, power.Min)
	assert.Equal(500.0, power.Max)
	assert.Equal("kW", power.Unit)

	temp := signalDefOf(t, inverter, "stator_temp")
	assert.Equal(KindFloat, temp.Kind)
	assert.False(temp.Signed)
	assert.Equal(uint16(16), temp.StartBit)
	assert.InDelta(0.5, temp.Factor, 1e-12)
	assert.InDelta(-40.0, temp.Offset, 1e-12)
	assert.Equal(87.5, temp.Max)

	gear := signalDefOf(t, inverter, "gear")
	assert.Equal(KindUint, gear.Kind)
	assert.Equal(uint16(32), gear.StartBit)
	assert.Equal(uint16(3), gear.Length)
	assert.Equal([]EnumDef{
		{Name: "INVALID", Raw: 0},
		{Name: "P", Raw: 1},
		{Name: "R", Raw: 2},
		{Name: "N", Raw: 3},
		{Name: "D", Raw: 4},
	}, gear.Enums)

	rpm := signalDefOf(t, defs[1], "motor_rpm")
	assert.Equal(BigEndian, rpm.ByteOrder)
	assert.Equal(uint16(16), rpm.Length)
	assert.Equal(KindUint, rpm.Kind)
}

func Test_FromAcmelib_ProbedCodecMatchesDecode(t *testing.T) {
	assert := assert.New(t)

	messages := []*acmelib.Message{getInverterMessage(t), getMotorolaMessage(t)}
	defs, err := FromAcmelib(messages)
	require.NoError(t, err)

	pool, err := NewPool("acmelib", defs)
	require.NoError(t, err)

	rnd := rand.New(rand.NewPCG(3, 4))

	for _, acmeMsg := range messages {
		msg, err := pool.Lookup(uint32(acmeMsg.GetCANID()))
		require.NoError(t, err)

		for stamp := range uint64(64) {
			data := make([]byte, 8)
			for idx := range data {
				data[idx] = byte(rnd.UintN(256))
			}

			require.NoError(t, msg.Update(Frame{CANID: msg.ID(), Stamp: stamp + 1, Opcode: OpRxChanged, Data: data}))

			for _, dec := range acmeMsg.SignalLayout().Decode(data) {
				sig, ok := msg.Signal(dec.Signal.Name())
				require.True(t, ok)

				assert.Equal(uint64(dec.RawValue)&rawMask(sig.Def().Length), sig.Raw(), "%s", sig.Name())

				switch dec.ValueType {
				case acmelib.SignalValueTypeFloat:
					assert.InDelta(dec.ValueAsFloat(), sig.Value().Float, 1e-9, "%s", sig.Name())
				case acmelib.SignalValueTypeEnum:
					assert.Equal(dec.ValueAsEnum(), sig.Enum().Name, "%s", sig.Name())
				case acmelib.SignalValueTypeUint:
					assert.Equal(uint64(dec.ValueAsUint()), sig.Value().Uint, "%s", sig.Name())
				}
			}
		}
	}
}

func Test_FromAcmelib_WideEnum(t *testing.T) {
	msg := acmelib.NewMessage("fault_codes", acmelib.MessageID(0x3f0), 8)

	faultEnum := acmelib.NewSignalEnum("fault_enum")
	require.NoError(t, faultEnum.AddValue(acmelib.NewSignalEnumValue("NONE", 0)))
	require.NoError(t, faultEnum.AddValue(acmelib.NewSignalEnumValue("OVERCURRENT", 2048)))

	fault, err := acmelib.NewEnumSignal("fault", faultEnum)
	require.NoError(t, err)
	require.NoError(t, msg.InsertSignal(fault, 0))

	_, err = FromAcmelib([]*acmelib.Message{msg})
	assert.ErrorIs(t, err, ErrInvalidLayout)
}
