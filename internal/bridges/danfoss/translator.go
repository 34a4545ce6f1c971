package danfoss

import (
	"context"
	"fmt"
	"math"
)

// Parameter is one raw value reported by the unit.
type Parameter struct {
	ID    string `json:"id"`
	Value any    `json:"value"`
	Unit  string `json:"unit,omitempty"`
}

// UpdateKind classifies the result of translating an inbound parameter.
type UpdateKind int

const (
	// UpdateValue sets Capability to Value.
	UpdateValue UpdateKind = iota
	// UpdateMode sets the fan mode; Manual drives fan step presence.
	UpdateMode
	// UpdateStep sets the fan step capability if it is present.
	UpdateStep
	// UpdateIgnored is a known parameter that is not exposed.
	UpdateIgnored
	// UpdateUnknown is a parameter the translator does not recognise.
	UpdateUnknown
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateValue:
		return "value"
	case UpdateMode:
		return "mode"
	case UpdateStep:
		return "step"
	case UpdateIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// Update is a translated inbound parameter.
type Update struct {
	Kind       UpdateKind
	Capability string
	Value      any
	Manual     bool
}

// Translator maps raw parameters to capability updates and capability
// writes to unit commands. Its only state is the last observed fan step.
//
// A Translator is not safe for concurrent use; the controller owns it.
type Translator struct {
	lastStep int
	hasStep  bool
}

// NewTranslator creates a translator with no cached step.
func NewTranslator() *Translator {
	return &Translator{}
}

// Inbound translates one raw parameter.
func (t *Translator) Inbound(p Parameter) Update {
	switch p.ID {
	case ParamOperationMode:
		code, _ := toInt(p.Value)
		mode := ModeFromCode(code)
		return Update{Kind: UpdateMode, Capability: CapFanMode, Value: mode, Manual: code == ModeCodeManual}

	case ParamFanStep:
		step, ok := toInt(p.Value)
		if !ok {
			return Update{Kind: UpdateUnknown}
		}
		t.lastStep = step
		t.hasStep = true
		return Update{Kind: UpdateStep, Capability: CapFanStep, Value: step * stepScale}
	}

	if pt, ok := passthroughParams[p.ID]; ok {
		value := p.Value
		if pt.kind == kindBool {
			b, ok := toBool(p.Value)
			if !ok {
				return Update{Kind: UpdateUnknown}
			}
			value = b
		}
		return Update{Kind: UpdateValue, Capability: pt.capability, Value: value}
	}

	if ignoredParams[p.ID] {
		return Update{Kind: UpdateIgnored}
	}
	return Update{Kind: UpdateUnknown}
}

// LastStep returns the last fan step observed from the unit.
func (t *Translator) LastStep() (int, bool) {
	return t.lastStep, t.hasStep
}

// ModeFromCode maps a unit mode code to a fan mode. Unknown codes map to demand.
func ModeFromCode(code int) string {
	switch code {
	case ModeCodeProgram:
		return ModeProgram
	case ModeCodeManual:
		return ModeManual
	default:
		return ModeDemand
	}
}

// ModeCode maps a fan mode to a unit mode code. Unknown modes map to 0.
func ModeCode(mode string) int {
	switch mode {
	case ModeProgram:
		return ModeCodeProgram
	case ModeManual:
		return ModeCodeManual
	default:
		return ModeCodeDemand
	}
}

// StepFromPercent converts a fan step capability value to a unit step:
// clamp(floor(p/10), 1, 10).
// NaN maps to the lowest step.
func StepFromPercent(p float64) int {
	step := math.Floor(p / stepScale)
	switch {
	case math.IsNaN(step), step <= MinFanStep:
		return MinFanStep
	case step >= MaxFanStep:
		return MaxFanStep
	}
	return int(step)
}

// CommandKind identifies the transport operation behind a Command.
type CommandKind int

// Command kinds.
const (
	CommandSetMode CommandKind = iota
	CommandSetFanStep
	CommandBoost
	CommandWriteParameter
)

// Command is a capability write translated into a unit operation.
type Command struct {
	Kind       CommandKind
	Capability string
	// Value is the capability value the platform asked for.
	Value     any
	Mode      int
	Step      int
	On        bool
	Parameter string
}

// Apply forwards the command to the transport.
func (c Command) Apply(ctx context.Context, tr Transport) error {
	switch c.Kind {
	case CommandSetMode:
		return tr.SetMode(ctx, c.Mode)
	case CommandSetFanStep:
		return tr.SetFanStep(ctx, c.Step)
	case CommandBoost:
		if c.On {
			return tr.ActivateBoost(ctx)
		}
		return tr.DeactivateBoost(ctx)
	case CommandWriteParameter:
		return tr.WriteParameterValue(ctx, c.Parameter, c.On)
	default:
		return fmt.Errorf("unsupported command kind %d", c.Kind)
	}
}

// Outbound translates a capability write.
//
// Any fan mode value is accepted; unrecognised values map to demand.
func (t *Translator) Outbound(capability string, value any) (Command, error) {
	if !IsKnownCapability(capability) {
		return Command{}, fmt.Errorf("%w: %s", ErrUnknownCapability, capability)
	}
	if !IsWritable(capability) {
		return Command{}, fmt.Errorf("%w: %s", ErrCapabilityNotWritable, capability)
	}

	cmd := Command{Capability: capability, Value: value}
	switch capability {
	case CapFanMode:
		mode, _ := value.(string)
		cmd.Kind = CommandSetMode
		cmd.Mode = ModeCode(mode)

	case CapFanStep:
		p, ok := toFloat(value)
		if !ok || math.IsNaN(p) || math.IsInf(p, 0) {
			return Command{}, fmt.Errorf("%w: %s expects a number, got %T", ErrInvalidCapabilityValue, capability, value)
		}
		cmd.Kind = CommandSetFanStep
		cmd.Step = StepFromPercent(p)

	case CapBoost, CapBypass, CapAutomaticBypass:
		on, ok := value.(bool)
		if !ok {
			return Command{}, fmt.Errorf("%w: %s expects a boolean, got %T", ErrInvalidCapabilityValue, capability, value)
		}
		cmd.On = on
		if capability == CapBoost {
			cmd.Kind = CommandBoost
		} else {
			cmd.Kind = CommandWriteParameter
			cmd.Parameter = parameterForCapability(capability)
		}
	}
	return cmd, nil
}

func parameterForCapability(capability string) string {
	if capability == CapAutomaticBypass {
		return ParamAutomaticBypass
	}
	return ParamBypass
}

// ParameterReader reads the last known value of a raw parameter.
type ParameterReader interface {
	GetParameter(name string) (Parameter, bool)
}

// SerialNumber composes the unit serial from its two 16-bit words:
// (high << 16) | (low & 0xFFFF).
func SerialNumber(r ParameterReader) (uint32, error) {
	high, ok := r.GetParameter(ParamSerialHigh)
	if !ok {
		return 0, fmt.Errorf("%w: %s missing", ErrSerialNumberUnavailable, ParamSerialHigh)
	}
	low, ok := r.GetParameter(ParamSerialLow)
	if !ok {
		return 0, fmt.Errorf("%w: %s missing", ErrSerialNumberUnavailable, ParamSerialLow)
	}

	hi, ok := toInt(high.Value)
	if !ok {
		return 0, fmt.Errorf("%w: %s is %T", ErrSerialNumberUnavailable, ParamSerialHigh, high.Value)
	}
	lo, ok := toInt(low.Value)
	if !ok {
		return 0, fmt.Errorf("%w: %s is %T", ErrSerialNumberUnavailable, ParamSerialLow, low.Value)
	}

	return uint32(hi)<<16 | uint32(lo)&0xFFFF, nil
}

// toFloat converts any numeric value to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// toInt converts any numeric value to int, truncating fractions.
func toInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}

// toBool accepts a bool or a number (non-zero is true).
func toBool(v any) (bool, bool) {
	if b, ok := v.(bool); ok {
		return b, true
	}
	f, ok := toFloat(v)
	if !ok {
		return false, false
	}
	return f != 0, true
}
