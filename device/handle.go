package device

import (
	odrive "github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/signal"
)

func (d *Device) handle(frame odrive.Frame) {
	if frame.Extended {
		return
	}

	catalog := d.client.Catalog
	address, commandID := odrive.AddressOf(frame.ID, catalog)
	if address != d.Address {
		return
	}

	msg, ok := catalog.Message(commandID)
	if !ok {
		return
	}

	if frame.Rtr {
		switch commandID {
		case odrive.CmdHeartbeat:
			d.sendHeartbeat()
		case odrive.CmdGetEncoderEstimates:
			d.sendEstimate()
		}
		return
	}

	// Frames sent by this device share the address.
	if msg.Direction != signal.ControllerOutbound {
		return
	}

	raw, err := signal.DecodeRaw(msg, frame.Data)
	if err != nil {
		d.Logger.WithError(err).Warn("invalid command")
		return
	}

	switch commandID {
	case odrive.CmdSetAxisState:
		d.setAxisState(odrive.AxisState(raw[odrive.SignalRequestedState]))

	case odrive.CmdSetControllerMode:
		d.mu.Lock()
		d.state.ControlMode = odrive.ControlMode(raw[odrive.SignalControlMode])
		d.state.InputMode = odrive.InputMode(raw[odrive.SignalInputMode])
		d.mu.Unlock()

	case odrive.CmdClearErrors:
		d.mu.Lock()
		d.state.AxisError = odrive.AxisErrorNone
		d.mu.Unlock()
		d.sendHeartbeat()

	case odrive.CmdEstop:
		d.InjectFault(odrive.AxisErrorEstopRequested)

	case odrive.CmdSetInputPos:
		record, err := signal.Decode(msg, frame.Data)
		if err != nil {
			return
		}
		d.setInputPos(record.Float(odrive.SignalInputPos))
	}
}

func (d *Device) setAxisState(requested odrive.AxisState) {
	d.Logger.WithField("state", requested.String()).Debug("axis state requested")

	switch requested {
	case odrive.AxisStateEncoderIndexSearch:
		d.mu.Lock()
		d.state.AxisState = odrive.AxisStateEncoderIndexSearch
		d.state.ProcedureResult = odrive.ProcedureResultBusy
		d.mu.Unlock()
		d.sendHeartbeat()

		d.after(d.IndexSearchDelay, func() {
			d.mu.Lock()
			d.state.AxisState = odrive.AxisStateIdle
			d.state.ProcedureResult = odrive.ProcedureResultSuccess
			d.mu.Unlock()
			d.sendHeartbeat()
		})

	case odrive.AxisStateClosedLoopControl:
		d.mu.Lock()
		fail := d.closedLoopFail
		d.closedLoopFail = odrive.AxisErrorNone
		d.mu.Unlock()

		d.after(d.ClosedLoopDelay, func() {
			if fail != odrive.AxisErrorNone {
				d.InjectFault(fail)
				return
			}
			d.mu.Lock()
			d.state.AxisState = odrive.AxisStateClosedLoopControl
			d.state.TrajectoryDone = true
			d.mu.Unlock()
			d.sendHeartbeat()
		})

	default:
		d.mu.Lock()
		d.state.AxisState = requested
		d.mu.Unlock()
		d.sendHeartbeat()
	}
}

func (d *Device) setInputPos(target float64) {
	d.mu.Lock()
	moved := d.state.AxisState == odrive.AxisStateClosedLoopControl
	if moved {
		d.state.Position = target
		d.state.TrajectoryDone = true
	}
	d.mu.Unlock()

	if moved {
		d.sendEstimate()
	}
}
