package dbc

import (
	"fmt"
	"math"
)

// EnumDef maps a raw value of a signal to a named variant.
// ReadOnly variants are decoded by name but rejected on write,
// they usually stand for reserved or "signal not available" codes.
type EnumDef struct {
	Name     string
	Raw      uint64
	ReadOnly bool
}

// SignalDef is the static layout of a signal inside its message.
type SignalDef struct {
	Name      string
	Unit      string
	StartBit  uint16
	Length    uint16
	ByteOrder ByteOrder
	Kind      Kind

	// Signed is only relevant for KindFloat, KindInt is always signed.
	Signed bool

	Factor float64
	Offset float64

	HasRange bool
	Min      float64
	Max      float64

	Enums []EnumDef

	// NotAvailable is the optional raw sentinel meaning that the producer has no value.
	NotAvailable *uint64
}

func (sd *SignalDef) factor() float64 {
	if sd.Factor == 0 {
		return 1
	}
	return sd.Factor
}

func (sd *SignalDef) isSigned() bool {
	return sd.Kind == KindInt || (sd.Kind == KindFloat && sd.Signed)
}

func (sd *SignalDef) validate(size uint8) error {
	if sd.Name == "" {
		return fmt.Errorf("%w: signal without name", ErrInvalidLayout)
	}

	if sd.Length == 0 || sd.Length > 64 {
		return fmt.Errorf("%w: signal %s has length %d", ErrInvalidLayout, sd.Name, sd.Length)
	}

	if uint(sd.StartBit)+uint(sd.Length) > uint(size)*8 {
		return fmt.Errorf("%w: signal %s [%d+%d] exceeds %d bytes",
			ErrInvalidLayout, sd.Name, sd.StartBit, sd.Length, size)
	}

	if sd.Kind == KindBool && sd.Length != 1 {
		return fmt.Errorf("%w: bool signal %s has length %d", ErrInvalidLayout, sd.Name, sd.Length)
	}

	if sd.HasRange && sd.Min > sd.Max {
		return fmt.Errorf("%w: signal %s has min %v > max %v", ErrInvalidLayout, sd.Name, sd.Min, sd.Max)
	}

	if math.IsNaN(sd.Factor) || math.IsInf(sd.Factor, 0) {
		return fmt.Errorf("%w: signal %s has invalid factor", ErrInvalidLayout, sd.Name)
	}

	// integer and bool values are raw, only floats are scaled
	if sd.Kind != KindFloat && (sd.factor() != 1 || sd.Offset != 0) {
		return fmt.Errorf("%w: %s signal %s has factor %v and offset %v, use a float signal",
			ErrInvalidLayout, sd.Kind, sd.Name, sd.Factor, sd.Offset)
	}

	return nil
}

// MessageDef is the static layout of a CAN message.
type MessageDef struct {
	ID      uint32
	Name    string
	Size    uint8
	Signals []SignalDef
}

func (md *MessageDef) validate() error {
	if md.Name == "" {
		return fmt.Errorf("%w: message %d without name", ErrInvalidLayout, md.ID)
	}

	if md.Size == 0 || md.Size > 64 {
		return fmt.Errorf("%w: message %s has size %d", ErrInvalidLayout, md.Name, md.Size)
	}

	names := make(map[string]struct{}, len(md.Signals))
	for idx := range md.Signals {
		sd := &md.Signals[idx]
		if err := sd.validate(md.Size); err != nil {
			return fmt.Errorf("message %s: %w", md.Name, err)
		}

		if _, ok := names[sd.Name]; ok {
			return fmt.Errorf("%w: message %s has duplicated signal %s", ErrInvalidLayout, md.Name, sd.Name)
		}
		names[sd.Name] = struct{}{}
	}

	return nil
}
