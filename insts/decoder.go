package insts

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Op is the kind of a trace record.
type Op uint8

// Trace record kinds, numbered by their label.
const (
	OpLoad Op = iota
	OpStore
	OpCompute
)

var opNames = [...]string{"Load", "Store", "Compute"}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "Unknown"
}

// Instruction is one decoded trace record.
type Instruction struct {
	Op Op
	// Value is the byte address of a load or store, or the cycle count of
	// a compute block.
	Value uint64
}

// IsMemory reports whether the instruction accesses memory.
func (i Instruction) IsMemory() bool {
	return i.Op == OpLoad || i.Op == OpStore
}

// IsWrite reports whether the instruction is a store.
func (i Instruction) IsWrite() bool {
	return i.Op == OpStore
}

func (i Instruction) String() string {
	if i.Op == OpCompute {
		return fmt.Sprintf("%s %d", i.Op, i.Value)
	}
	return fmt.Sprintf("%s %#x", i.Op, i.Value)
}

// Decoding errors.
var (
	ErrMalformed    = errors.New("malformed trace record")
	ErrUnknownLabel = errors.New("unknown instruction label")
	ErrBadValue     = errors.New("invalid hex value")
)

// ParseError locates a decoding error in a trace.
type ParseError struct {
	Source string
	Line   int
	Text   string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %v: %q", e.Source, e.Line, e.Err, e.Text)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Decoder decodes trace lines into instructions.
type Decoder struct{}

// NewDecoder creates a new trace decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes a single trace line.
func (d *Decoder) Decode(line string) (Instruction, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return Instruction{}, ErrMalformed
	}

	label, err := strconv.ParseUint(fields[0], 10, 8)
	if err != nil || label > uint64(OpCompute) {
		return Instruction{}, fmt.Errorf("%w %q", ErrUnknownLabel, fields[0])
	}

	hex := strings.TrimPrefix(strings.TrimPrefix(fields[1], "0x"), "0X")
	value, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return Instruction{}, fmt.Errorf("%w %q", ErrBadValue, fields[1])
	}

	return Instruction{Op: Op(label), Value: value}, nil
}
