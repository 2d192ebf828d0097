package dbc

import (
	"errors"
	"fmt"
	"math/bits"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/squadracorsepolito/acmelib"
)

// maxEnumProbeBits bounds the raw space walked to discover enum variants.
const maxEnumProbeBits = 10

// LoadDBCFile imports a DBC file and returns the definitions of the messages
// sent on the bus. When canIDs is not empty only the listed messages are kept.
func LoadDBCFile(path string, canIDs ...uint32) ([]MessageDef, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	busName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	bus, err := acmelib.ImportDBCFile(busName, file)
	if err != nil {
		return nil, fmt.Errorf("import dbc %s: %w", path, err)
	}

	messages := []*acmelib.Message{}
	for _, nodeInt := range bus.NodeInterfaces() {
		messages = append(messages, nodeInt.SentMessages()...)
	}

	return FromAcmelib(messages, canIDs...)
}

// FromAcmelib converts acmelib messages into message definitions.
//
// The layout is recovered through the acmelib decoder itself: every payload bit is
// set in turn and the resulting raw values tell which signal owns it and where.
// Scale, offset, signedness and enum variants are probed the same way.
func FromAcmelib(messages []*acmelib.Message, canIDs ...uint32) ([]MessageDef, error) {
	defs := make([]MessageDef, 0, len(messages))

	for _, msg := range messages {
		canID := uint32(msg.GetCANID())
		if len(canIDs) > 0 && !slices.Contains(canIDs, canID) {
			continue
		}

		def, err := probeMessage(msg)
		if err != nil {
			return nil, err
		}

		defs = append(defs, def)
	}

	return defs, nil
}

type bitOwner struct {
	bit    uint16
	rawBit uint16
}

// standardSignal is an acmelib signal described by a signal type and a unit.
type standardSignal interface {
	Type() *acmelib.SignalType
	Unit() *acmelib.SignalUnit
}

type probedSignal struct {
	name      string
	valueType acmelib.SignalValueType
	owners    []bitOwner

	std standardSignal
}

func probeMessage(msg *acmelib.Message) (MessageDef, error) {
	size := msg.SizeByte()
	if size <= 0 || size > 64 {
		return MessageDef{}, fmt.Errorf("%w: message %s has size %d", ErrInvalidLayout, msg.Name(), size)
	}

	def := MessageDef{
		ID:   uint32(msg.GetCANID()),
		Name: msg.Name(),
		Size: uint8(size),
	}

	decode := msg.SignalLayout().Decode

	order := []string{}
	probed := make(map[string]*probedSignal)

	for _, dec := range decode(make([]byte, size)) {
		name := dec.Signal.Name()
		order = append(order, name)
		ps := &probedSignal{name: name, valueType: dec.ValueType}
		if std, ok := any(dec.Signal).(standardSignal); ok {
			ps.std = std
		}
		probed[name] = ps
	}

	for bit := range uint16(size * 8) {
		data := make([]byte, size)
		data[bit/8] = 1 << (bit % 8)

		for _, dec := range decode(data) {
			raw := uint64(dec.RawValue)
			if raw == 0 {
				continue
			}

			ps, ok := probed[dec.Signal.Name()]
			if !ok {
				continue
			}

			ps.owners = append(ps.owners, bitOwner{bit: bit, rawBit: uint16(bits.TrailingZeros64(raw))})
		}
	}

	for _, name := range order {
		sigDef, err := probeSignal(decode, uint8(size), probed[name])
		if err != nil {
			return MessageDef{}, fmt.Errorf("message %s: %w", def.Name, err)
		}
		def.Signals = append(def.Signals, sigDef)
	}

	return def, nil
}

func probeSignal(decode func([]byte) []*acmelib.SignalDecoding, size uint8, ps *probedSignal) (SignalDef, error) {
	if len(ps.owners) == 0 {
		return SignalDef{}, fmt.Errorf("%w: signal %s owns no bit", ErrInvalidLayout, ps.name)
	}

	def := SignalDef{
		Name:   ps.name,
		Length: uint16(len(ps.owners)),
		Factor: 1,
	}

	start, order, err := layoutOf(ps.owners, size)
	if err != nil {
		return SignalDef{}, fmt.Errorf("signal %s: %w", ps.name, err)
	}
	def.StartBit = start
	def.ByteOrder = order

	readRaw := func(raw uint64) *acmelib.SignalDecoding {
		data := make([]byte, size)
		insert(data, def.StartBit, def.Length, def.ByteOrder, raw)
		for _, dec := range decode(data) {
			if dec.Signal.Name() == ps.name {
				return dec
			}
		}
		return nil
	}

	switch ps.valueType {
	case acmelib.SignalValueTypeFlag:
		def.Kind = KindBool

	case acmelib.SignalValueTypeInt:
		def.Kind = KindInt
		ps.applyBounds(&def)

	case acmelib.SignalValueTypeUint:
		def.Kind = KindUint
		ps.applyBounds(&def)

	case acmelib.SignalValueTypeFloat:
		def.Kind = KindFloat

		zero, one := readRaw(0), readRaw(1)
		if zero == nil || one == nil {
			return SignalDef{}, fmt.Errorf("%w: signal %s cannot be probed", ErrInvalidLayout, ps.name)
		}
		def.Offset = zero.ValueAsFloat()
		def.Factor = one.ValueAsFloat() - def.Offset

		if top := readRaw(1 << (def.Length - 1)); top != nil && top.RawValue < 0 {
			def.Signed = true
		}

		ps.applyBounds(&def)

	case acmelib.SignalValueTypeEnum:
		def.Kind = KindUint

		if def.Length > maxEnumProbeBits {
			return SignalDef{}, fmt.Errorf("%w: enum signal %s is %d bits long", ErrInvalidLayout, ps.name, def.Length)
		}

		for raw := range uint64(1) << def.Length {
			dec := readRaw(raw)
			if dec == nil {
				continue
			}

			if name := dec.ValueAsEnum(); name != "" {
				def.Enums = append(def.Enums, EnumDef{Name: name, Raw: raw})
			}
		}

	default:
		return SignalDef{}, errors.New("unsupported value type for signal " + ps.name)
	}

	return def, nil
}

// applyBounds copies the physical range and the unit of the signal type.
// A type whose max is not above its min declares no range.
func (ps *probedSignal) applyBounds(def *SignalDef) {
	if ps.std == nil {
		return
	}

	if unit := ps.std.Unit(); unit != nil {
		def.Unit = unit.Symbol()
	}

	sigType := ps.std.Type()
	if sigType == nil {
		return
	}

	if minVal, maxVal := sigType.Min(), sigType.Max(); maxVal > minVal {
		def.HasRange = true
		def.Min = minVal
		def.Max = maxVal
	}
}

// layoutOf finds the start bit and byte order matching the probed bit owners.
func layoutOf(owners []bitOwner, size uint8) (uint16, ByteOrder, error) {
	matches := func(pos func(bitOwner) int) (uint16, bool) {
		start := pos(owners[0]) - int(owners[0].rawBit)
		if start < 0 {
			return 0, false
		}
		for _, o := range owners {
			if pos(o)-int(o.rawBit) != start {
				return 0, false
			}
		}
		return uint16(start), true
	}

	if start, ok := matches(func(o bitOwner) int { return int(o.bit) }); ok {
		return start, LittleEndian, nil
	}

	reversed := func(o bitOwner) int {
		return (int(size)-1-int(o.bit/8))*8 + int(o.bit%8)
	}
	if start, ok := matches(reversed); ok {
		return start, BigEndian, nil
	}

	return 0, LittleEndian, fmt.Errorf("%w: bits are neither little nor big endian contiguous", ErrInvalidLayout)
}
