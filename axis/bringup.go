package axis

import (
	"context"
	"fmt"
	"time"

	odrive "github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/signal"
	"github.com/sirupsen/logrus"
)

// DefaultStepTimeout bounds every await of the bring-up sequence.
const DefaultStepTimeout = 10 * time.Second

// BringUp calibrates one axis and enters closed-loop position control:
//
//  1. clear errors
//  2. request ENCODER_INDEX_SEARCH
//  3. await a heartbeat with procedureResult SUCCESS
//  4. set POSITION_CONTROL with TRAP_TRAJ input
//  5. request CLOSED_LOOP_CONTROL
//  6. await a heartbeat with axisState CLOSED_LOOP_CONTROL
//
// An await that times out aborts the sequence with odrive.ExpectationFailed.
// A heartbeat reporting an axis error while awaiting calls EmergencyStop and
// aborts with a DeviceFault. Nothing is retried: calibration moves the motor.
type BringUp struct {
	Client      *odrive.Client
	Address     odrive.Address
	StepTimeout time.Duration

	// EmergencyStop stops every axis of the rig. When nil only this axis is
	// stopped.
	EmergencyStop func() error
	// OnState is called on every state change.
	OnState func(State)
	// OnFault is called with the fault aborting the sequence.
	OnFault func(DeviceFault)
	Logger  logrus.FieldLogger
}

func (b BringUp) Run(ctx context.Context) error {
	logger := b.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("axis", b.Address.String())

	err := b.run(ctx, logger)
	if err != nil {
		b.setState(StateFaulted)
		logger.WithError(err).Error("bring-up failed")
	}
	return err
}

func (b BringUp) run(ctx context.Context, logger logrus.FieldLogger) error {
	if err := b.Client.Send(b.Address, odrive.CmdClearErrors, signal.Record{odrive.SignalIdentify: 0}); err != nil {
		return fmt.Errorf("clear errors: %w", err)
	}
	b.setState(StateErrorCleared)

	logger.Info("searching encoder index")
	b.setState(StateIndexSearching)
	err := b.request(ctx, odrive.AxisStateEncoderIndexSearch, "encoder index search succeeded", func(record signal.Record) bool {
		return record.Label(odrive.SignalProcedureResult) == odrive.ProcedureResultSuccess.String()
	})
	if err != nil {
		return err
	}

	err = b.Client.Send(b.Address, odrive.CmdSetControllerMode, signal.Record{
		odrive.SignalControlMode: odrive.ControlModePosition.String(),
		odrive.SignalInputMode:   odrive.InputModeTrapTraj.String(),
	})
	if err != nil {
		return fmt.Errorf("set controller mode: %w", err)
	}
	b.setState(StateModeConfigured)

	logger.Info("entering closed loop control")
	err = b.request(ctx, odrive.AxisStateClosedLoopControl, "axis in closed loop control", func(record signal.Record) bool {
		return record.Label(odrive.SignalAxisState) == odrive.AxisStateClosedLoopControl.String()
	})
	if err != nil {
		return err
	}
	b.setState(StateClosedLoop)

	logger.Info("axis ready")
	return nil
}

// request sets the axis state and awaits the heartbeat satisfying done.
func (b BringUp) request(ctx context.Context, state odrive.AxisState, message string, done func(signal.Record) bool) error {
	timeout := b.StepTimeout
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Await before sending so that a fast heartbeat is not missed.
	rch := b.Client.WaitCondition(ctx, b.Address, odrive.CmdHeartbeat, func(record signal.Record) bool {
		return record.Label(odrive.SignalAxisError) != odrive.AxisErrorNone.String() || done(record)
	}, timeout)

	if err := b.Client.Send(b.Address, odrive.CmdSetAxisState, signal.Record{odrive.SignalRequestedState: state.String()}); err != nil {
		return fmt.Errorf("set axis state %s: %w", state, err)
	}

	resp, err := odrive.Expect(rch, fmt.Sprintf("%s: %s", b.Address, message))
	if resp.Raw != nil && resp.Raw[odrive.SignalAxisError] != 0 {
		return b.fault(odrive.AxisError(resp.Raw[odrive.SignalAxisError]))
	}
	return err
}

func (b BringUp) fault(axisError odrive.AxisError) error {
	stop := b.EmergencyStop
	if stop == nil {
		stop = func() error { return EmergencyStop(b.Client, b.Address) }
	}
	fault := DeviceFault{NodeID: b.Address.NodeID, Axis: b.Address.Axis, AxisError: axisError}
	if b.OnFault != nil {
		b.OnFault(fault)
	}
	if err := stop(); err != nil {
		return fmt.Errorf("%w (emergency stop: %v)", fault, err)
	}
	return fault
}

func (b BringUp) setState(state State) {
	if b.OnState != nil {
		b.OnState(state)
	}
}
