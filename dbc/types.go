package dbc

import (
	"fmt"
	"strings"
)

// Status is the state of a signal or a message after the last update.
type Status uint8

const (
	StatusUnset Status = iota
	StatusUpdated
	StatusUnchanged
	StatusTimeout
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusUnset:
		return "Unset"
	case StatusUpdated:
		return "Updated"
	case StatusUnchanged:
		return "Unchanged"
	case StatusTimeout:
		return "Timeout"
	case StatusError:
		return "Error"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Opcode is the transport opcode attached to a frame.
// Values follow the linux CAN broadcast manager (BCM) numbering.
type Opcode uint32

const (
	OpUnknown   Opcode = 0
	OpTxSetup   Opcode = 1
	OpTxDelete  Opcode = 2
	OpTxRead    Opcode = 3
	OpTxSend    Opcode = 4
	OpRxSetup   Opcode = 5
	OpRxDelete  Opcode = 6
	OpRxRead    Opcode = 7
	OpTxStatus  Opcode = 8
	OpTxExpired Opcode = 9
	OpRxStatus  Opcode = 10
	OpRxTimeout Opcode = 11
	OpRxChanged Opcode = 12
)

func (o Opcode) String() string {
	switch o {
	case OpUnknown:
		return "Unknown"
	case OpTxSetup:
		return "TxSetup"
	case OpTxDelete:
		return "TxDelete"
	case OpTxRead:
		return "TxRead"
	case OpTxSend:
		return "TxSend"
	case OpRxSetup:
		return "RxSetup"
	case OpRxDelete:
		return "RxDelete"
	case OpRxRead:
		return "RxRead"
	case OpTxStatus:
		return "TxStatus"
	case OpTxExpired:
		return "TxExpired"
	case OpRxStatus:
		return "RxStatus"
	case OpRxTimeout:
		return "RxTimeout"
	case OpRxChanged:
		return "RxChanged"
	default:
		return fmt.Sprintf("Opcode(%d)", uint32(o))
	}
}

func (o Opcode) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Frame is a raw CAN frame as delivered by the transport.
type Frame struct {
	CANID  uint32 `json:"canid"`
	Stamp  uint64 `json:"stamp"`
	Opcode Opcode `json:"opcode"`
	Len    uint8  `json:"len"`
	Data   []byte `json:"data"`
}

// ByteOrder is the byte order of a signal inside the frame payload.
type ByteOrder uint8

const (
	LittleEndian ByteOrder = iota
	BigEndian
)

func (bo ByteOrder) String() string {
	if bo == BigEndian {
		return "big_endian"
	}
	return "little_endian"
}

// Kind is the numeric domain of a signal value.
type Kind uint8

const (
	KindUint Kind = iota
	KindInt
	KindBool
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindUint:
		return "uint"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindFloat:
		return "float"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ParseKind parses the string form of a [Kind].
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "uint", "unsigned":
		return KindUint, nil
	case "int", "signed":
		return KindInt, nil
	case "bool", "flag":
		return KindBool, nil
	case "float", "double":
		return KindFloat, nil
	}
	return 0, fmt.Errorf("unknown signal kind %q", s)
}
