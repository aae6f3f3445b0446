package odrive

import (
	"fmt"
	"strings"
)

// Command ids of the controller CAN protocol. A command id occupies the low 5
// bits of the frame identifier, offset by the axis slot.
const (
	CmdHeartbeat            uint8 = 0x01
	CmdEstop                uint8 = 0x02
	CmdGetError             uint8 = 0x03
	CmdRxSdo                uint8 = 0x04
	CmdTxSdo                uint8 = 0x05
	CmdAddress              uint8 = 0x06
	CmdSetAxisState         uint8 = 0x07
	CmdGetEncoderEstimates  uint8 = 0x09
	CmdSetControllerMode    uint8 = 0x0B
	CmdSetInputPos          uint8 = 0x0C
	CmdSetInputVel          uint8 = 0x0D
	CmdSetInputTorque       uint8 = 0x0E
	CmdSetLimits            uint8 = 0x0F
	CmdSetTrajVelLimit      uint8 = 0x11
	CmdSetTrajAccelLimits   uint8 = 0x12
	CmdSetTrajInertia       uint8 = 0x13
	CmdGetIq                uint8 = 0x14
	CmdGetTemperature       uint8 = 0x15
	CmdReboot               uint8 = 0x16
	CmdGetBusVoltageCurrent uint8 = 0x17
	CmdClearErrors          uint8 = 0x18
	CmdSetAbsolutePosition  uint8 = 0x19
	CmdSetPosGain           uint8 = 0x1A
	CmdSetVelGains          uint8 = 0x1B
	CmdGetTorques           uint8 = 0x1C
	CmdGetPowers            uint8 = 0x1D
)

// MaxNodeID defines the highest node id that fits the 11-bit identifier.
const MaxNodeID uint8 = 0x3F

const (
	// ShiftNodeID is the position of the node id inside the identifier.
	ShiftNodeID = 5
	// MaskSlot is used to extract the 5-bit command slot from the identifier.
	MaskSlot = 0x1F
	// MaskNodeID is used to extract the 6-bit node id after shifting.
	MaskNodeID = 0x3F

	// MaskIDSff is used to extract the valid 11-bit CAN identifier bits from the frame ID of a standard frame format.
	MaskIDSff = 0x000007FF
	// MaskIDEff is used to extract the valid 29-bit CAN identifier bits from the frame ID of an extended frame format.
	MaskIDEff = 0x1FFFFFFF
	// MaskErr is used to extract the the error flag (0 = data frame, 1 = error message) from the frame ID.
	MaskErr = 0x20000000
	// MaskRtr is used to extract the rtr flag (1 = rtr frame) from the frame ID
	MaskRtr = 0x40000000
	// MaskEff is used to extract the eff flag (0 = standard frame, 1 = extended frame) from the frame ID
	MaskEff = 0x80000000
)

type AxisState uint32

const (
	AxisStateUndefined                      AxisState = 0
	AxisStateIdle                           AxisState = 1
	AxisStateStartupSequence                AxisState = 2
	AxisStateFullCalibrationSequence        AxisState = 3
	AxisStateMotorCalibration               AxisState = 4
	AxisStateSensorlessControl              AxisState = 5
	AxisStateEncoderIndexSearch             AxisState = 6
	AxisStateEncoderOffsetCalibration       AxisState = 7
	AxisStateClosedLoopControl              AxisState = 8
	AxisStateLockinSpin                     AxisState = 9
	AxisStateEncoderDirFind                 AxisState = 10
	AxisStateHoming                         AxisState = 11
	AxisStateEncoderHallPolarityCalibration AxisState = 12
	AxisStateEncoderHallPhaseCalibration    AxisState = 13
	AxisStateAnticoggingCalibration         AxisState = 14
)

var axisStateNames = map[uint64]string{
	0:  "UNDEFINED",
	1:  "IDLE",
	2:  "STARTUP_SEQUENCE",
	3:  "FULL_CALIBRATION_SEQUENCE",
	4:  "MOTOR_CALIBRATION",
	5:  "SENSORLESS_CONTROL",
	6:  "ENCODER_INDEX_SEARCH",
	7:  "ENCODER_OFFSET_CALIBRATION",
	8:  "CLOSED_LOOP_CONTROL",
	9:  "LOCKIN_SPIN",
	10: "ENCODER_DIR_FIND",
	11: "HOMING",
	12: "ENCODER_HALL_POLARITY_CALIBRATION",
	13: "ENCODER_HALL_PHASE_CALIBRATION",
	14: "ANTICOGGING_CALIBRATION",
}

func (state AxisState) String() string {
	return nameOr(axisStateNames, uint64(state))
}

type ProcedureResult uint8

const (
	ProcedureResultSuccess                   ProcedureResult = 0
	ProcedureResultBusy                      ProcedureResult = 1
	ProcedureResultCancelled                 ProcedureResult = 2
	ProcedureResultDisarmed                  ProcedureResult = 3
	ProcedureResultNoResponse                ProcedureResult = 4
	ProcedureResultPolePairCPRMismatch       ProcedureResult = 5
	ProcedureResultPhaseResistanceOutOfRange ProcedureResult = 6
	ProcedureResultPhaseInductanceOutOfRange ProcedureResult = 7
	ProcedureResultUnbalancedPhases          ProcedureResult = 8
	ProcedureResultInvalidMotorType          ProcedureResult = 9
	ProcedureResultIllegalHallState          ProcedureResult = 10
	ProcedureResultTimeout                   ProcedureResult = 11
	ProcedureResultHomingWithoutEndstop      ProcedureResult = 12
	ProcedureResultInvalidState              ProcedureResult = 13
	ProcedureResultNotCalibrated             ProcedureResult = 14
	ProcedureResultNotConverged              ProcedureResult = 15
)

var procedureResultNames = map[uint64]string{
	0:  "SUCCESS",
	1:  "BUSY",
	2:  "CANCELLED",
	3:  "DISARMED",
	4:  "NO_RESPONSE",
	5:  "POLE_PAIR_CPR_MISMATCH",
	6:  "PHASE_RESISTANCE_OUT_OF_RANGE",
	7:  "PHASE_INDUCTANCE_OUT_OF_RANGE",
	8:  "UNBALANCED_PHASES",
	9:  "INVALID_MOTOR_TYPE",
	10: "ILLEGAL_HALL_STATE",
	11: "TIMEOUT",
	12: "HOMING_WITHOUT_ENDSTOP",
	13: "INVALID_STATE",
	14: "NOT_CALIBRATED",
	15: "NOT_CONVERGED",
}

func (result ProcedureResult) String() string {
	return nameOr(procedureResultNames, uint64(result))
}

type ControlMode uint32

const (
	ControlModeVoltage  ControlMode = 0
	ControlModeTorque   ControlMode = 1
	ControlModeVelocity ControlMode = 2
	ControlModePosition ControlMode = 3
)

var controlModeNames = map[uint64]string{
	0: "VOLTAGE_CONTROL",
	1: "TORQUE_CONTROL",
	2: "VELOCITY_CONTROL",
	3: "POSITION_CONTROL",
}

func (mode ControlMode) String() string {
	return nameOr(controlModeNames, uint64(mode))
}

type InputMode uint32

const (
	InputModeInactive    InputMode = 0
	InputModePassthrough InputMode = 1
	InputModeVelRamp     InputMode = 2
	InputModePosFilter   InputMode = 3
	InputModeMixChannels InputMode = 4
	InputModeTrapTraj    InputMode = 5
	InputModeTorqueRamp  InputMode = 6
	InputModeMirror      InputMode = 7
	InputModeTuning      InputMode = 8
)

var inputModeNames = map[uint64]string{
	0: "INACTIVE",
	1: "PASSTHROUGH",
	2: "VEL_RAMP",
	3: "POS_FILTER",
	4: "MIX_CHANNELS",
	5: "TRAP_TRAJ",
	6: "TORQUE_RAMP",
	7: "MIRROR",
	8: "TUNING",
}

func (mode InputMode) String() string {
	return nameOr(inputModeNames, uint64(mode))
}

// AxisError is a bit set of active axis errors.
type AxisError uint32

const (
	AxisErrorNone                   AxisError = 0x00000000
	AxisErrorInitializing           AxisError = 0x00000001
	AxisErrorSystemLevel            AxisError = 0x00000002
	AxisErrorTimingError            AxisError = 0x00000004
	AxisErrorMissingEstimate        AxisError = 0x00000008
	AxisErrorBadConfig              AxisError = 0x00000010
	AxisErrorDrvFault               AxisError = 0x00000020
	AxisErrorMissingInput           AxisError = 0x00000040
	AxisErrorDcBusOverVoltage       AxisError = 0x00000100
	AxisErrorDcBusUnderVoltage      AxisError = 0x00000200
	AxisErrorDcBusOverCurrent       AxisError = 0x00000400
	AxisErrorDcBusOverRegenCurrent  AxisError = 0x00000800
	AxisErrorCurrentLimitViolation  AxisError = 0x00001000
	AxisErrorMotorOverTemp          AxisError = 0x00002000
	AxisErrorInverterOverTemp       AxisError = 0x00004000
	AxisErrorVelocityLimitViolation AxisError = 0x00008000
	AxisErrorPositionLimitViolation AxisError = 0x00010000
	AxisErrorWatchdogTimerExpired   AxisError = 0x01000000
	AxisErrorEstopRequested         AxisError = 0x02000000
	AxisErrorSpinoutDetected        AxisError = 0x04000000
	AxisErrorBrakeResistorDisarmed  AxisError = 0x08000000
	AxisErrorThermistorDisconnected AxisError = 0x10000000
	AxisErrorCalibrationError       AxisError = 0x40000000
)

var axisErrorNames = map[uint64]string{
	0x00000000: "NONE",
	0x00000001: "INITIALIZING",
	0x00000002: "SYSTEM_LEVEL",
	0x00000004: "TIMING_ERROR",
	0x00000008: "MISSING_ESTIMATE",
	0x00000010: "BAD_CONFIG",
	0x00000020: "DRV_FAULT",
	0x00000040: "MISSING_INPUT",
	0x00000100: "DC_BUS_OVER_VOLTAGE",
	0x00000200: "DC_BUS_UNDER_VOLTAGE",
	0x00000400: "DC_BUS_OVER_CURRENT",
	0x00000800: "DC_BUS_OVER_REGEN_CURRENT",
	0x00001000: "CURRENT_LIMIT_VIOLATION",
	0x00002000: "MOTOR_OVER_TEMP",
	0x00004000: "INVERTER_OVER_TEMP",
	0x00008000: "VELOCITY_LIMIT_VIOLATION",
	0x00010000: "POSITION_LIMIT_VIOLATION",
	0x01000000: "WATCHDOG_TIMER_EXPIRED",
	0x02000000: "ESTOP_REQUESTED",
	0x04000000: "SPINOUT_DETECTED",
	0x08000000: "BRAKE_RESISTOR_DISARMED",
	0x10000000: "THERMISTOR_DISCONNECTED",
	0x40000000: "CALIBRATION_ERROR",
}

// String joins the names of every set flag with "|".
func (axisError AxisError) String() string {
	return GetAxisErrorText(uint32(axisError))
}

func GetAxisErrorText(code uint32) string {
	if name, ok := axisErrorNames[uint64(code)]; ok {
		return name
	}

	var names []string
	for bit := uint32(1); bit != 0; bit <<= 1 {
		if code&bit == 0 {
			continue
		}
		if name, ok := axisErrorNames[uint64(bit)]; ok {
			names = append(names, name)
		} else {
			names = append(names, fmt.Sprintf("0x%08X", bit))
		}
	}
	return strings.Join(names, "|")
}

func nameOr(names map[uint64]string, value uint64) string {
	if name, ok := names[value]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", value)
}
