package dbc

import (
	"fmt"
	"math"
	"strings"
	"sync"
)

// SignalListener is notified every time a signal is updated.
// The returned value is the number of listeners interested in the signal.
type SignalListener interface {
	SignalNotification(sig *Signal) int
}

// SignalListenerFunc adapts a function to a [SignalListener].
type SignalListenerFunc func(sig *Signal) int

func (f SignalListenerFunc) SignalNotification(sig *Signal) int {
	return f(sig)
}

// EnumValue is the enumerated reading of a signal.
// Other is set when the raw value does not match any named variant.
type EnumValue struct {
	Name  string
	Raw   uint64
	Other bool
}

// Signal decodes and encodes one signal of a message.
//
// A signal is owned by its [Message]. Callers that reach a signal outside of
// [Message.Update] must hold it with TryLock, a failed TryLock means that
// someone else is using it and the operation has to be abandoned.
type Signal struct {
	mux sync.Mutex

	def *SignalDef

	raw    uint64
	value  Value
	status Status
	stamp  uint64

	cbMux    sync.Mutex
	callback SignalListener
}

func newSignal(def *SignalDef) *Signal {
	return &Signal{
		def:    def,
		value:  zeroValue(def.Kind),
		status: StatusUnset,
	}
}

// TryLock tries to take exclusive ownership of the signal without blocking.
func (s *Signal) TryLock() bool {
	return s.mux.TryLock()
}

// Unlock releases a signal taken with TryLock.
func (s *Signal) Unlock() {
	s.mux.Unlock()
}

func (s *Signal) Name() string {
	return s.def.Name
}

func (s *Signal) Def() *SignalDef {
	return s.def
}

func (s *Signal) Value() Value {
	return s.value
}

func (s *Signal) Status() Status {
	return s.status
}

func (s *Signal) Stamp() uint64 {
	return s.stamp
}

// Raw returns the raw bit field of the last accepted frame.
func (s *Signal) Raw() uint64 {
	return s.raw
}

// IsAvailable reports whether the last raw value differs from the not-available sentinel.
func (s *Signal) IsAvailable() bool {
	if s.def.NotAvailable == nil {
		return true
	}
	return s.raw != *s.def.NotAvailable
}

func (s *Signal) decode(raw uint64) Value {
	switch s.def.Kind {
	case KindUint:
		return UintValue(raw)
	case KindInt:
		return IntValue(signExtend(raw, s.def.Length))
	case KindBool:
		return BoolValue(raw != 0)
	default:
		var rawVal float64
		if s.def.isSigned() {
			rawVal = float64(signExtend(raw, s.def.Length))
		} else {
			rawVal = float64(raw)
		}
		return FloatValue(rawVal*s.def.factor() + s.def.Offset)
	}
}

// Update decodes the signal from the frame and notifies the attached listener.
// It returns the listener count reported by the listener, 0 when no listener
// is attached and -1 when the listener is busy.
func (s *Signal) Update(frame Frame) int {
	switch frame.Opcode {
	case OpRxChanged:
		raw := extract(frame.Data, s.def.StartBit, s.def.Length, s.def.ByteOrder)
		newVal := s.decode(raw)

		s.raw = raw
		if !newVal.Equal(s.value) {
			s.value = newVal
			s.status = StatusUpdated
			s.stamp = frame.Stamp
		} else {
			s.status = StatusUnchanged
		}

	case OpRxTimeout:
		s.status = StatusTimeout

	default:
		s.status = StatusError
	}

	return s.notify()
}

func (s *Signal) notify() int {
	if s.callback == nil {
		return 0
	}

	if !s.cbMux.TryLock() {
		return -1
	}
	defer s.cbMux.Unlock()

	return s.callback.SignalNotification(s)
}

func (s *Signal) outOfRange(physical float64) error {
	return newOutOfRangeError("invalid-signal-value",
		fmt.Sprintf("value=%v not in [%v..%v]", physical, s.def.Min, s.def.Max))
}

func (s *Signal) overflow(physical float64) error {
	return newOutOfRangeError("invalid-signal-value",
		fmt.Sprintf("value=%v does not fit the %d bits of %s", physical, s.def.Length, s.def.Name))
}

// unsignedRaw rounds a raw step count and checks that it fits the bit field.
func (s *Signal) unsignedRaw(steps, physical float64) (uint64, error) {
	steps = math.Round(steps)
	if math.IsNaN(steps) || steps < 0 || steps >= math.Ldexp(1, int(s.def.Length)) {
		return 0, s.overflow(physical)
	}
	return uint64(steps), nil
}

// signedRaw is like unsignedRaw for two's complement fields.
func (s *Signal) signedRaw(steps, physical float64) (uint64, error) {
	steps = math.Round(steps)
	limit := math.Ldexp(1, int(s.def.Length)-1)
	if math.IsNaN(steps) || steps < -limit || steps >= limit {
		return 0, s.overflow(physical)
	}
	return uint64(int64(steps)) & rawMask(s.def.Length), nil
}

func (s *Signal) encode(value Value) (uint64, error) {
	physical := value.AsFloat()
	if s.def.HasRange && (physical < s.def.Min || physical > s.def.Max) {
		return 0, s.outOfRange(physical)
	}

	switch s.def.Kind {
	case KindUint:
		if value.Kind == KindUint {
			if value.Uint > rawMask(s.def.Length) {
				return 0, s.overflow(physical)
			}
			return value.Uint, nil
		}
		return s.unsignedRaw(physical, physical)

	case KindInt:
		if value.Kind == KindInt {
			if s.def.Length < 64 {
				limit := int64(1) << (s.def.Length - 1)
				if value.Int < -limit || value.Int >= limit {
					return 0, s.overflow(physical)
				}
			}
			return uint64(value.Int) & rawMask(s.def.Length), nil
		}
		return s.signedRaw(physical, physical)

	case KindBool:
		if value.Kind != KindBool && value.Kind != KindUint {
			return 0, NewError(ErrKindMismatch, ErrorKindValidation, "invalid-signal-value",
				fmt.Sprintf("signal %s expects a bool, got %s", s.def.Name, value.Kind))
		}
		if physical != 0 {
			return 1, nil
		}
		return 0, nil

	default:
		steps := (physical - s.def.Offset) / s.def.factor()
		if s.def.isSigned() {
			return s.signedRaw(steps, physical)
		}
		return s.unsignedRaw(steps, physical)
	}
}

// SetValue validates the physical value against the signal bounds and writes
// the matching raw bit field into buf. It never touches the signal state.
func (s *Signal) SetValue(value Value, buf []byte) error {
	raw, err := s.encode(value)
	if err != nil {
		return err
	}

	if uint(s.def.StartBit)+uint(s.def.Length) > uint(len(buf))*8 {
		return NewError(ErrInvalidLayout, ErrorKindValidation, "invalid-signal-buffer",
			fmt.Sprintf("signal %s needs %d bits, buffer has %d", s.def.Name, s.def.StartBit+s.def.Length, len(buf)*8))
	}

	insert(buf, s.def.StartBit, s.def.Length, s.def.ByteOrder, raw)
	return nil
}

// Enum returns the enumerated reading of the last raw value.
func (s *Signal) Enum() EnumValue {
	for _, enum := range s.def.Enums {
		if enum.Raw == s.raw {
			return EnumValue{Name: enum.Name, Raw: s.raw}
		}
	}
	return EnumValue{Raw: s.raw, Other: true}
}

// SetEnum writes the raw value of the named variant into buf.
// Read only variants are rejected.
func (s *Signal) SetEnum(name string, buf []byte) error {
	for _, enum := range s.def.Enums {
		if !strings.EqualFold(enum.Name, name) {
			continue
		}

		if enum.ReadOnly {
			return newOutOfRangeError("not-in-range",
				fmt.Sprintf("(%s) !!! %d not in [%v..%v] range", enum.Name, enum.Raw, s.def.Min, s.def.Max))
		}

		if uint(s.def.StartBit)+uint(s.def.Length) > uint(len(buf))*8 {
			return NewError(ErrInvalidLayout, ErrorKindValidation, "invalid-signal-buffer",
				fmt.Sprintf("signal %s does not fit the buffer", s.def.Name))
		}

		insert(buf, s.def.StartBit, s.def.Length, s.def.ByteOrder, enum.Raw&rawMask(s.def.Length))
		return nil
	}

	return NewError(ErrNotFound, ErrorKindLookup, "invalid-enum",
		fmt.Sprintf("signal %s has no variant %s", s.def.Name, name))
}

// Reset brings the signal back to its initial state.
func (s *Signal) Reset() {
	s.raw = 0
	s.value = zeroValue(s.def.Kind)
	s.status = StatusUnset
	s.stamp = 0
}

// SetCallback attaches the listener, replacing the previous one.
// It must not be called concurrently with Update.
func (s *Signal) SetCallback(listener SignalListener) {
	s.callback = listener
}

func (s *Signal) String() string {
	return fmt.Sprintf("%s:%s", s.def.Name, s.value)
}
