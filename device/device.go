// Package device simulates a motor controller axis on a bus.
package device

import (
	"sync"
	"time"

	odrive "github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/endpoint"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/endpoint/endpointServer"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/signal"
	"github.com/sirupsen/logrus"
)

// State is the observable state of a simulated axis.
type State struct {
	AxisState       odrive.AxisState
	AxisError       odrive.AxisError
	ProcedureResult odrive.ProcedureResult
	TrajectoryDone  bool
	ControlMode     odrive.ControlMode
	InputMode       odrive.InputMode
	Position        float64
	Velocity        float64
}

// Device answers the controller protocol for one address:
//
//   - Set_Axis_State ENCODER_INDEX_SEARCH reports procedureResult BUSY, then
//     SUCCESS after IndexSearchDelay
//   - Set_Axis_State CLOSED_LOOP_CONTROL enters closed loop after
//     ClosedLoopDelay, or reports the error set with FailClosedLoop
//   - Clear_Errors clears the axis error, Estop sets ESTOP_REQUESTED and idles
//   - Set_Input_Pos moves the position estimate to the target in closed loop
//   - remote requests for the heartbeat or encoder estimates are answered
//   - endpoint requests are served from an in-memory store
//
// Heartbeats and encoder estimates are also sent periodically.
type Device struct {
	Address   odrive.Address
	Endpoints *endpoint.Catalog
	Logger    logrus.FieldLogger

	HeartbeatInterval time.Duration
	EstimateInterval  time.Duration
	IndexSearchDelay  time.Duration
	ClosedLoopDelay   time.Duration

	client      *odrive.Client
	server      *endpointServer.Server
	unsubscribe func()
	done        chan struct{}
	wg          sync.WaitGroup

	mu             sync.Mutex
	state          State
	closedLoopFail odrive.AxisError
	values         map[uint16]endpoint.Value
	timers         []*time.Timer
	closed         bool
}

// New returns a device in IDLE with an uncalibrated encoder.
func New(address odrive.Address) *Device {
	return &Device{
		Address:           address,
		Endpoints:         endpoint.DefaultCatalog(),
		HeartbeatInterval: 100 * time.Millisecond,
		EstimateInterval:  50 * time.Millisecond,
		IndexSearchDelay:  50 * time.Millisecond,
		ClosedLoopDelay:   10 * time.Millisecond,
		state: State{
			AxisState:       odrive.AxisStateIdle,
			ProcedureResult: odrive.ProcedureResultNotCalibrated,
		},
		values: make(map[uint16]endpoint.Value),
	}
}

// Start attaches the device to the bus of client.
func (d *Device) Start(client *odrive.Client) {
	if d.Logger == nil {
		d.Logger = logrus.StandardLogger()
	}
	d.Logger = d.Logger.WithField("device", d.Address.String())
	d.client = client
	d.done = make(chan struct{})

	d.server = &endpointServer.Server{
		Address: d.Address,
		Catalog: d.Endpoints,
		Read:    d.readEndpoint,
		Write:   d.writeEndpoint,
		Logger:  d.Logger,
	}
	d.server.Listen(client)

	d.unsubscribe = client.Bus.Subscribe(d.handle)

	if d.HeartbeatInterval > 0 {
		d.wg.Add(1)
		go d.every(d.HeartbeatInterval, d.sendHeartbeat)
	}
	if d.EstimateInterval > 0 {
		d.wg.Add(1)
		go d.every(d.EstimateInterval, d.sendEstimate)
	}
}

// Close detaches the device and stops its timers.
func (d *Device) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, timer := range d.timers {
		timer.Stop()
	}
	d.mu.Unlock()

	if d.client == nil {
		return
	}
	d.unsubscribe()
	d.server.Close()
	close(d.done)
	d.wg.Wait()
}

// State returns a copy of the simulated state.
func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// InjectFault sets an axis error, idles the axis and reports it at once.
func (d *Device) InjectFault(axisError odrive.AxisError) {
	d.mu.Lock()
	d.state.AxisError |= axisError
	d.state.AxisState = odrive.AxisStateIdle
	d.mu.Unlock()
	d.sendHeartbeat()
}

// FailClosedLoop makes the next closed loop request report axisError instead.
func (d *Device) FailClosedLoop(axisError odrive.AxisError) {
	d.mu.Lock()
	d.closedLoopFail = axisError
	d.mu.Unlock()
}

// SetEndpoint stores an endpoint value.
func (d *Device) SetEndpoint(key endpoint.Key, value endpoint.Value) {
	d.writeEndpoint(key, value)
}

func (d *Device) readEndpoint(key endpoint.Key) (endpoint.Value, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch key.Name() {
	case "axis0.pos_estimate":
		return endpoint.FloatValue(d.state.Position), true
	case "axis0.vel_estimate":
		return endpoint.FloatValue(d.state.Velocity), true
	case "axis0.current_state":
		return endpoint.UintValue(uint32(d.state.AxisState)), true
	case "axis0.active_errors":
		return endpoint.UintValue(uint32(d.state.AxisError)), true
	case "axis0.config.can.node_id":
		return endpoint.UintValue(uint32(d.Address.NodeID)), true
	}

	value, ok := d.values[key.ID()]
	return value, ok
}

func (d *Device) writeEndpoint(key endpoint.Key, value endpoint.Value) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.values[key.ID()] = value
}

func (d *Device) every(interval time.Duration, fn func()) {
	defer d.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.done:
			return
		case <-ticker.C:
			fn()
		}
	}
}

// after runs fn once after delay unless the device is closed first.
func (d *Device) after(delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.timers = append(d.timers, time.AfterFunc(delay, fn))
}

func (d *Device) send(commandID uint8, record signal.Record) {
	if err := d.client.Send(d.Address, commandID, record); err != nil {
		d.Logger.WithError(err).Warn("send failed")
	}
}

func (d *Device) sendHeartbeat() {
	state := d.State()
	d.send(odrive.CmdHeartbeat, signal.Record{
		odrive.SignalAxisError:          uint64(state.AxisError),
		odrive.SignalAxisState:          uint64(state.AxisState),
		odrive.SignalProcedureResult:    uint64(state.ProcedureResult),
		odrive.SignalTrajectoryDoneFlag: state.TrajectoryDone,
	})
}

func (d *Device) sendEstimate() {
	state := d.State()
	d.send(odrive.CmdGetEncoderEstimates, signal.Record{
		odrive.SignalPosEstimate: state.Position,
		odrive.SignalVelEstimate: state.Velocity,
	})
}
