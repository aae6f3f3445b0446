package odrive

import (
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/signal"
)

// Opcodes of the endpoint request message.
const (
	OpcodeRead  uint8 = 0
	OpcodeWrite uint8 = 1
)

// Signal names shared by the runtime and the simulator.
const (
	SignalAxisError          = "axisError"
	SignalAxisState          = "axisState"
	SignalProcedureResult    = "procedureResult"
	SignalTrajectoryDoneFlag = "trajectoryDoneFlag"
	SignalRequestedState     = "axisRequestedState"
	SignalControlMode        = "controlMode"
	SignalInputMode          = "inputMode"
	SignalInputPos           = "inputPos"
	SignalVelFF              = "velFF"
	SignalTorqueFF           = "torqueFF"
	SignalPosEstimate        = "posEstimate"
	SignalVelEstimate        = "velEstimate"
	SignalOpcode             = "opcode"
	SignalEndpointID         = "endpointId"
	SignalValue              = "value"
	SignalIdentify           = "identify"
)

var (
	axisStateEnum       = signal.NewEnum(axisStateNames)
	procedureResultEnum = signal.NewEnum(procedureResultNames)
	axisErrorEnum       = signal.NewEnum(axisErrorNames)
	controlModeEnum     = signal.NewEnum(controlModeNames)
	inputModeEnum       = signal.NewEnum(inputModeNames)
	opcodeEnum          = signal.NewEnum(map[uint64]string{0: "READ", 1: "WRITE"})
)

func uintSignal(name string, start uint, length uint) signal.Spec {
	return signal.Spec{Name: name, StartBit: start, Length: length}
}

func intSignal(name string, start uint, length uint, factor float64) signal.Spec {
	return signal.Spec{Name: name, StartBit: start, Length: length, Signed: true, Factor: factor}
}

func floatSignal(name string, start uint) signal.Spec {
	return signal.Spec{Name: name, StartBit: start, Length: 32, Kind: signal.Float}
}

func enumSignal(name string, start uint, length uint, enum *signal.Enum) signal.Spec {
	return signal.Spec{Name: name, StartBit: start, Length: length, Enum: enum}
}

func outbound(id uint8, name string, length uint, signals ...signal.Spec) *signal.MessageSpec {
	return &signal.MessageSpec{CommandID: id, Name: name, Length: length, Direction: signal.ControllerOutbound, Signals: signals}
}

func inbound(id uint8, name string, length uint, signals ...signal.Spec) *signal.MessageSpec {
	return &signal.MessageSpec{CommandID: id, Name: name, Length: length, Direction: signal.DeviceOutbound, Signals: signals}
}

// Messages returns the message descriptions of the controller CAN protocol.
// All signals are little endian.
func Messages() []*signal.MessageSpec {
	return []*signal.MessageSpec{
		inbound(CmdHeartbeat, "Heartbeat", 8,
			enumSignal(SignalAxisError, 0, 32, axisErrorEnum),
			enumSignal(SignalAxisState, 32, 8, axisStateEnum),
			enumSignal(SignalProcedureResult, 40, 8, procedureResultEnum),
			uintSignal(SignalTrajectoryDoneFlag, 48, 1),
		),
		outbound(CmdEstop, "Estop", 0),
		inbound(CmdGetError, "Get_Error", 8,
			uintSignal("activeErrors", 0, 32),
			uintSignal("disarmReason", 32, 32),
		),
		outbound(CmdRxSdo, "RxSdo", 8,
			enumSignal(SignalOpcode, 0, 8, opcodeEnum),
			uintSignal(SignalEndpointID, 8, 16),
			uintSignal("reserved", 24, 8),
			uintSignal(SignalValue, 32, 32),
		),
		inbound(CmdTxSdo, "TxSdo", 8,
			uintSignal("reserved0", 0, 8),
			uintSignal(SignalEndpointID, 8, 16),
			uintSignal("reserved1", 24, 8),
			uintSignal(SignalValue, 32, 32),
		),
		inbound(CmdAddress, "Address", 8,
			uintSignal("nodeId", 0, 8),
			uintSignal("serialNumber", 8, 48),
		),
		outbound(CmdSetAxisState, "Set_Axis_State", 4,
			enumSignal(SignalRequestedState, 0, 32, axisStateEnum),
		),
		inbound(CmdGetEncoderEstimates, "Get_Encoder_Estimates", 8,
			floatSignal(SignalPosEstimate, 0),
			floatSignal(SignalVelEstimate, 32),
		),
		outbound(CmdSetControllerMode, "Set_Controller_Mode", 8,
			enumSignal(SignalControlMode, 0, 32, controlModeEnum),
			enumSignal(SignalInputMode, 32, 32, inputModeEnum),
		),
		outbound(CmdSetInputPos, "Set_Input_Pos", 8,
			floatSignal(SignalInputPos, 0),
			intSignal(SignalVelFF, 32, 16, 0.001),
			intSignal(SignalTorqueFF, 48, 16, 0.001),
		),
		outbound(CmdSetInputVel, "Set_Input_Vel", 8,
			floatSignal("inputVel", 0),
			floatSignal("inputTorqueFF", 32),
		),
		outbound(CmdSetInputTorque, "Set_Input_Torque", 4,
			floatSignal("inputTorque", 0),
		),
		outbound(CmdSetLimits, "Set_Limits", 8,
			floatSignal("velocityLimit", 0),
			floatSignal("currentLimit", 32),
		),
		outbound(CmdSetTrajVelLimit, "Set_Traj_Vel_Limit", 4,
			floatSignal("trajVelLimit", 0),
		),
		outbound(CmdSetTrajAccelLimits, "Set_Traj_Accel_Limits", 8,
			floatSignal("trajAccelLimit", 0),
			floatSignal("trajDecelLimit", 32),
		),
		outbound(CmdSetTrajInertia, "Set_Traj_Inertia", 4,
			floatSignal("trajInertia", 0),
		),
		inbound(CmdGetIq, "Get_Iq", 8,
			floatSignal("iqSetpoint", 0),
			floatSignal("iqMeasured", 32),
		),
		inbound(CmdGetTemperature, "Get_Temperature", 8,
			floatSignal("fetTemperature", 0),
			floatSignal("motorTemperature", 32),
		),
		outbound(CmdReboot, "Reboot", 1,
			uintSignal("action", 0, 8),
		),
		inbound(CmdGetBusVoltageCurrent, "Get_Bus_Voltage_Current", 8,
			floatSignal("busVoltage", 0),
			floatSignal("busCurrent", 32),
		),
		outbound(CmdClearErrors, "Clear_Errors", 1,
			uintSignal(SignalIdentify, 0, 8),
		),
		outbound(CmdSetAbsolutePosition, "Set_Absolute_Position", 4,
			floatSignal("position", 0),
		),
		outbound(CmdSetPosGain, "Set_Pos_Gain", 4,
			floatSignal("posGain", 0),
		),
		outbound(CmdSetVelGains, "Set_Vel_Gains", 8,
			floatSignal("velGain", 0),
			floatSignal("velIntegratorGain", 32),
		),
		inbound(CmdGetTorques, "Get_Torques", 8,
			floatSignal("torqueTarget", 0),
			floatSignal("torqueEstimate", 32),
		),
		inbound(CmdGetPowers, "Get_Powers", 8,
			floatSignal("electricalPower", 0),
			floatSignal("mechanicalPower", 32),
		),
	}
}

// DefaultCatalog returns the protocol catalog with one axis per node.
func DefaultCatalog() *signal.Catalog {
	catalog, err := signal.NewCatalog(signal.MaxCommandSlots, 1, Messages()...)
	if err != nil {
		panic(err)
	}
	return catalog
}
