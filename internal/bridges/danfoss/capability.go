package danfoss

// Capability identifiers exposed to the platform.
const (
	CapFanMode         = "fan_mode"
	CapFanStep         = "fan_speed.step"
	CapBoost           = "onoff.boost"
	CapBypass          = "onoff.bypass"
	CapAutomaticBypass = "onoff.automatic_bypass"
	CapHumidity        = "measure_humidity"
	CapSupplyRPM       = "measure_rpm.supply"
	CapExtractRPM      = "measure_rpm.extract"
	CapBattery         = "measure_battery"
	CapFilter          = "measure_hepa_filter"
	CapTempInside      = "measure_temperature.inside"
	CapTempInsideCalc  = "measure_temperature.inside_calculated"
	CapTempOutdoor     = "measure_temperature.outdoor"
	CapTempSupply      = "measure_temperature.supply"
	CapTempExtract     = "measure_temperature.extract"
	CapTempExhaust     = "measure_temperature.exhaust"
	CapDefrostAlarm    = "alarm_generic.defrosting"
)

// Raw parameter identifiers reported by the unit.
const (
	ParamHumidity        = "humidity_measured_relative"
	ParamOperationMode   = "operation_mode"
	ParamBypass          = "bypass"
	ParamAutomaticBypass = "automatic_bypass"
	ParamBoost           = "boost"
	ParamFanStep         = "fan_step"
	ParamSupplyRPM       = "fanspeed_supply_actual"
	ParamExtractRPM      = "fanspeed_extract_actual"
	ParamBattery         = "battery_indication_percent"
	ParamFilter          = "filter_remaining"
	ParamTempRoom        = "temperature_room"
	ParamTempRoomCalc    = "temperature_room_calc"
	ParamTempOutdoor     = "temperature_outdoor"
	ParamTempSupply      = "temperature_supply"
	ParamTempExtract     = "temperature_extract"
	ParamTempExhaust     = "temperature_exhaust"
	ParamDefrost         = "defrost_status"
	ParamRunningMinutes  = "total_running_minutes"
	ParamHardwareRev     = "unit_hardware_revision"
	ParamSoftwareRev     = "unit_software_revision"
	ParamSerialHigh      = "unit_serialnumber_high_word"
	ParamSerialLow       = "unit_serialnumber_low_word"
)

// Fan mode values.
const (
	ModeDemand  = "demand"
	ModeProgram = "program"
	ModeManual  = "manual"
)

// Unit operation mode codes.
const (
	ModeCodeDemand  = 0
	ModeCodeProgram = 1
	ModeCodeManual  = 2
)

// Fan step bounds. The capability value is the step scaled by stepScale.
const (
	MinFanStep = 1
	MaxFanStep = 10
	stepScale  = 10
)

// valueKind describes how a passthrough parameter is coerced.
type valueKind int

const (
	kindNumber valueKind = iota
	kindBool
)

type passthrough struct {
	capability string
	kind       valueKind
}

// passthroughParams maps raw parameters that translate one-to-one onto a capability.
var passthroughParams = map[string]passthrough{
	ParamHumidity:        {CapHumidity, kindNumber},
	ParamBypass:          {CapBypass, kindBool},
	ParamAutomaticBypass: {CapAutomaticBypass, kindBool},
	ParamBoost:           {CapBoost, kindBool},
	ParamSupplyRPM:       {CapSupplyRPM, kindNumber},
	ParamExtractRPM:      {CapExtractRPM, kindNumber},
	ParamBattery:         {CapBattery, kindNumber},
	ParamFilter:          {CapFilter, kindNumber},
	ParamTempRoom:        {CapTempInside, kindNumber},
	ParamTempRoomCalc:    {CapTempInsideCalc, kindNumber},
	ParamTempOutdoor:     {CapTempOutdoor, kindNumber},
	ParamTempSupply:      {CapTempSupply, kindNumber},
	ParamTempExtract:     {CapTempExtract, kindNumber},
	ParamTempExhaust:     {CapTempExhaust, kindNumber},
	ParamDefrost:         {CapDefrostAlarm, kindBool},
}

// ignoredParams are known to the unit but not exposed.
var ignoredParams = map[string]bool{
	ParamRunningMinutes: true,
	ParamHardwareRev:    true,
	ParamSoftwareRev:    true,
	ParamSerialHigh:     true,
	ParamSerialLow:      true,
}

// writableCapabilities lists the capabilities accepted by Translator.Outbound.
var writableCapabilities = map[string]bool{
	CapFanMode:         true,
	CapFanStep:         true,
	CapBoost:           true,
	CapBypass:          true,
	CapAutomaticBypass: true,
}

// DefaultCapabilities returns the capabilities present from the start.
// The fan step capability is absent: it is only present in manual mode.
func DefaultCapabilities() []string {
	return []string{
		CapFanMode,
		CapBoost,
		CapBypass,
		CapAutomaticBypass,
		CapHumidity,
		CapSupplyRPM,
		CapExtractRPM,
		CapBattery,
		CapFilter,
		CapTempInside,
		CapTempInsideCalc,
		CapTempOutdoor,
		CapTempSupply,
		CapTempExtract,
		CapTempExhaust,
		CapDefrostAlarm,
	}
}

// IsKnownCapability reports whether id is exposed by the device.
func IsKnownCapability(id string) bool {
	if id == CapFanStep {
		return true
	}
	for _, c := range DefaultCapabilities() {
		if c == id {
			return true
		}
	}
	return false
}

// IsWritable reports whether a capability accepts writes.
func IsWritable(id string) bool {
	return writableCapabilities[id]
}
