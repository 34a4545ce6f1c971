package modbus

import (
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-danfoss/internal/infrastructure/config"
)

func TestNewRegisterMap(t *testing.T) {
	m, err := NewRegisterMap([]config.RegisterConfig{
		{Name: "fan_step", Table: TableHolding, Address: 20, Kind: KindNumber, Writable: true},
		{Name: "temperature_room", Table: TableInput, Address: 3, Kind: KindNumber, Scale: 0.01, Signed: true, Unit: "°C"},
		{Name: "boost", Table: TableCoil, Address: 1, Kind: KindBool, Writable: true},
	})
	if err != nil {
		t.Fatalf("NewRegisterMap() error = %v", err)
	}
	if m.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", m.Len())
	}
	if got := m.All()[1].Name; got != "temperature_room" {
		t.Errorf("All()[1] = %q, want configuration order", got)
	}

	r, ok := m.Lookup("fan_step")
	if !ok {
		t.Fatal("Lookup(fan_step) not found")
	}
	if r.Scale != 1 {
		t.Errorf("zero scale = %v, want 1", r.Scale)
	}
	if _, ok := m.Lookup("missing"); ok {
		t.Error("Lookup(missing) found")
	}
}

func TestNewRegisterMap_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		entries []config.RegisterConfig
	}{
		{"no name", []config.RegisterConfig{{Table: TableHolding, Kind: KindNumber}}},
		{"bad table", []config.RegisterConfig{{Name: "a", Table: "discrete", Kind: KindNumber}}},
		{"bad kind", []config.RegisterConfig{{Name: "a", Table: TableHolding, Kind: "string"}}},
		{"numeric coil", []config.RegisterConfig{{Name: "a", Table: TableCoil, Kind: KindNumber}}},
		{"writable input", []config.RegisterConfig{{Name: "a", Table: TableInput, Kind: KindNumber, Writable: true}}},
		{"duplicate", []config.RegisterConfig{
			{Name: "a", Table: TableHolding, Kind: KindNumber},
			{Name: "a", Table: TableInput, Address: 2, Kind: KindNumber},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegisterMap(tt.entries)
			if !errors.Is(err, ErrInvalidRegister) {
				t.Errorf("error = %v, want ErrInvalidRegister", err)
			}
		})
	}
}

func TestRegisterDecode(t *testing.T) {
	tests := []struct {
		name string
		reg  Register
		raw  []byte
		want any
	}{
		{"unsigned", Register{Name: "a", Table: TableHolding, Kind: KindNumber, Scale: 1}, []byte{0x01, 0x2C}, 300.0},
		{"signed negative", Register{Name: "a", Table: TableInput, Kind: KindNumber, Scale: 1, Signed: true}, []byte{0xFF, 0xFE}, -2.0},
		{"scaled", Register{Name: "a", Table: TableInput, Kind: KindNumber, Scale: 0.5, Signed: true}, []byte{0x00, 0x2B}, 21.5},
		{"unsigned high bit", Register{Name: "a", Table: TableHolding, Kind: KindNumber, Scale: 1}, []byte{0xFF, 0xFF}, 65535.0},
		{"bool register", Register{Name: "a", Table: TableHolding, Kind: KindBool, Scale: 1}, []byte{0x00, 0x01}, true},
		{"bool register off", Register{Name: "a", Table: TableHolding, Kind: KindBool, Scale: 1}, []byte{0x00, 0x00}, false},
		{"coil on", Register{Name: "a", Table: TableCoil, Kind: KindBool, Scale: 1}, []byte{0x01}, true},
		{"coil ignores upper bits", Register{Name: "a", Table: TableCoil, Kind: KindBool, Scale: 1}, []byte{0xFE}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.reg.decode(tt.raw)
			if err != nil {
				t.Fatalf("decode() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("decode() = %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestRegisterDecode_ShortResponse(t *testing.T) {
	word := Register{Name: "a", Table: TableHolding, Kind: KindNumber, Scale: 1}
	if _, err := word.decode([]byte{0x01}); !errors.Is(err, ErrShortResponse) {
		t.Errorf("register error = %v, want ErrShortResponse", err)
	}
	coil := Register{Name: "b", Table: TableCoil, Kind: KindBool, Scale: 1}
	if _, err := coil.decode(nil); !errors.Is(err, ErrShortResponse) {
		t.Errorf("coil error = %v, want ErrShortResponse", err)
	}
}

func TestRegisterEncode(t *testing.T) {
	tests := []struct {
		name  string
		reg   Register
		value any
		want  uint16
	}{
		{"int", Register{Name: "a", Table: TableHolding, Kind: KindNumber, Scale: 1}, 3, 3},
		{"float rounds", Register{Name: "a", Table: TableHolding, Kind: KindNumber, Scale: 1}, 2.6, 3},
		{"scaled", Register{Name: "a", Table: TableHolding, Kind: KindNumber, Scale: 0.1}, 21.5, 215},
		{"signed negative", Register{Name: "a", Table: TableHolding, Kind: KindNumber, Scale: 1, Signed: true}, -2, 0xFFFE},
		{"coil on", Register{Name: "a", Table: TableCoil, Kind: KindBool, Scale: 1}, true, coilOn},
		{"coil off", Register{Name: "a", Table: TableCoil, Kind: KindBool, Scale: 1}, false, 0},
		{"bool register on", Register{Name: "a", Table: TableHolding, Kind: KindBool, Scale: 1}, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.reg.encode(tt.value)
			if err != nil {
				t.Fatalf("encode() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("encode() = %#04x, want %#04x", got, tt.want)
			}
		})
	}
}

func TestRegisterEncode_Invalid(t *testing.T) {
	number := Register{Name: "a", Table: TableHolding, Kind: KindNumber, Scale: 1}
	signed := Register{Name: "a", Table: TableHolding, Kind: KindNumber, Scale: 1, Signed: true}
	flag := Register{Name: "a", Table: TableCoil, Kind: KindBool, Scale: 1}

	tests := []struct {
		name  string
		reg   Register
		value any
	}{
		{"string for number", number, "3"},
		{"negative unsigned", number, -1},
		{"unsigned overflow", number, 70000},
		{"signed overflow", signed, 40000},
		{"number for bool", flag, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.reg.encode(tt.value); !errors.Is(err, ErrInvalidValue) {
				t.Errorf("encode(%v) error = %v, want ErrInvalidValue", tt.value, err)
			}
		})
	}
}
