package modbus

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/nerrad567/gray-logic-danfoss/internal/infrastructure/config"
)

// Register tables.
const (
	TableHolding = "holding"
	TableInput   = "input"
	TableCoil    = "coil"
)

// Value kinds.
const (
	KindNumber = "number"
	KindBool   = "bool"
)

// coilOn is the value Modbus uses to switch a coil on with function 05.
const coilOn = 0xFF00

// Register maps one raw unit parameter onto a Modbus table entry.
type Register struct {
	Name     string
	Table    string
	Address  uint16
	Kind     string
	Scale    float64
	Signed   bool
	Unit     string
	Writable bool
}

// RegisterMap is an ordered set of registers addressed by parameter name.
type RegisterMap struct {
	order  []Register
	byName map[string]Register
}

// NewRegisterMap builds a register map from configuration.
// A zero scale means 1.
func NewRegisterMap(entries []config.RegisterConfig) (RegisterMap, error) {
	m := RegisterMap{byName: make(map[string]Register, len(entries))}
	for _, e := range entries {
		r := Register{
			Name:     e.Name,
			Table:    e.Table,
			Address:  e.Address,
			Kind:     e.Kind,
			Scale:    e.Scale,
			Signed:   e.Signed,
			Unit:     e.Unit,
			Writable: e.Writable,
		}
		if r.Scale == 0 {
			r.Scale = 1
		}
		if err := r.validate(); err != nil {
			return RegisterMap{}, err
		}
		if _, dup := m.byName[r.Name]; dup {
			return RegisterMap{}, fmt.Errorf("%w: %q defined twice", ErrInvalidRegister, r.Name)
		}
		m.byName[r.Name] = r
		m.order = append(m.order, r)
	}
	return m, nil
}

// Lookup returns the register for a parameter name.
func (m RegisterMap) Lookup(name string) (Register, bool) {
	r, ok := m.byName[name]
	return r, ok
}

// All returns the registers in configuration order.
func (m RegisterMap) All() []Register {
	return m.order
}

// Len returns the number of registers.
func (m RegisterMap) Len() int {
	return len(m.order)
}

func (r Register) validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRegister)
	}
	switch r.Table {
	case TableHolding, TableInput:
	case TableCoil:
		if r.Kind != KindBool {
			return fmt.Errorf("%w: coil %q must be of kind bool", ErrInvalidRegister, r.Name)
		}
	default:
		return fmt.Errorf("%w: %q has unknown table %q", ErrInvalidRegister, r.Name, r.Table)
	}
	if r.Kind != KindNumber && r.Kind != KindBool {
		return fmt.Errorf("%w: %q has unknown kind %q", ErrInvalidRegister, r.Name, r.Kind)
	}
	if r.Writable && r.Table == TableInput {
		return fmt.Errorf("%w: input register %q cannot be writable", ErrInvalidRegister, r.Name)
	}
	return nil
}

// decode converts the raw bytes returned by a single-entry read.
// Coil reads return packed bits; register reads return one big-endian word.
func (r Register) decode(raw []byte) (any, error) {
	if r.Table == TableCoil {
		if len(raw) < 1 {
			return nil, fmt.Errorf("%w: empty coil response for %q", ErrShortResponse, r.Name)
		}
		return raw[0]&1 != 0, nil
	}

	if len(raw) < 2 {
		return nil, fmt.Errorf("%w: %d bytes for %q", ErrShortResponse, len(raw), r.Name)
	}
	word := binary.BigEndian.Uint16(raw[:2])
	if r.Kind == KindBool {
		return word != 0, nil
	}

	var v float64
	if r.Signed {
		v = float64(int16(word))
	} else {
		v = float64(word)
	}
	return v * r.Scale, nil
}

// encode converts a value to the 16-bit word written to the register.
// Coils are encoded as 0xFF00 or 0x0000.
func (r Register) encode(value any) (uint16, error) {
	if r.Kind == KindBool {
		b, ok := value.(bool)
		if !ok {
			return 0, fmt.Errorf("%w: %q expects a boolean, got %T", ErrInvalidValue, r.Name, value)
		}
		switch {
		case !b:
			return 0, nil
		case r.Table == TableCoil:
			return coilOn, nil
		default:
			return 1, nil
		}
	}

	f, ok := toFloat(value)
	if !ok {
		return 0, fmt.Errorf("%w: %q expects a number, got %T", ErrInvalidValue, r.Name, value)
	}
	raw := math.Round(f / r.Scale)
	if r.Signed {
		if raw < math.MinInt16 || raw > math.MaxInt16 {
			return 0, fmt.Errorf("%w: %v out of range for %q", ErrInvalidValue, value, r.Name)
		}
		return uint16(int16(raw)), nil
	}
	if raw < 0 || raw > math.MaxUint16 {
		return 0, fmt.Errorf("%w: %v out of range for %q", ErrInvalidValue, value, r.Name)
	}
	return uint16(raw), nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	default:
		return 0, false
	}
}
