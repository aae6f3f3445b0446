package axis

import (
	"sync"
	"time"

	odrive "github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/signal"
	"github.com/sirupsen/logrus"
)

// An Event is a decoded inbound message of a registered axis.
type Event interface {
	AxisID() ID
}

type HeartbeatEvent struct {
	Axis      ID
	Address   odrive.Address
	Heartbeat Heartbeat
}

type EstimateEvent struct {
	Axis     ID
	Address  odrive.Address
	Position float64
	Velocity float64
}

func (e HeartbeatEvent) AxisID() ID { return e.Axis }
func (e EstimateEvent) AxisID() ID  { return e.Axis }

// Dispatcher is the receive path: it decodes the telemetry of registered axes,
// writes it to the registry and forwards an Event to every consumer channel.
// A consumer that falls behind loses events.
type Dispatcher struct {
	registry *Registry
	catalog  *signal.Catalog
	logger   logrus.FieldLogger

	mu          sync.Mutex
	consumers   []chan Event
	unsubscribe func()
	now         func() time.Time
}

func NewDispatcher(registry *Registry, catalog *signal.Catalog, logger logrus.FieldLogger) *Dispatcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Dispatcher{
		registry: registry,
		catalog:  catalog,
		logger:   logger,
		now:      time.Now,
	}
}

// Events returns a new consumer channel with the given buffer size.
func (d *Dispatcher) Events(buffer int) <-chan Event {
	ch := make(chan Event, buffer)
	d.mu.Lock()
	d.consumers = append(d.consumers, ch)
	d.mu.Unlock()
	return ch
}

// Start subscribes to the transport.
func (d *Dispatcher) Start(bus odrive.Transport) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.unsubscribe == nil {
		d.unsubscribe = bus.Subscribe(d.handle)
	}
}

// Stop unsubscribes from the transport.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.unsubscribe != nil {
		d.unsubscribe()
		d.unsubscribe = nil
	}
}

func (d *Dispatcher) handle(frame odrive.Frame) {
	if frame.Rtr || frame.Extended {
		return
	}

	address, commandID := odrive.AddressOf(frame.ID, d.catalog)
	id, ok := d.registry.Lookup(address)
	if !ok {
		return
	}

	var event Event
	switch commandID {
	case odrive.CmdHeartbeat:
		event = d.handleHeartbeat(id, address, frame)
	case odrive.CmdGetEncoderEstimates:
		event = d.handleEstimate(id, address, frame)
	}
	if event == nil {
		return
	}

	d.mu.Lock()
	consumers := d.consumers
	d.mu.Unlock()

	for _, ch := range consumers {
		select {
		case ch <- event:
		default:
			d.logger.WithField("axis", address.String()).Debug("event consumer behind, dropping event")
		}
	}
}

func (d *Dispatcher) handleHeartbeat(id ID, address odrive.Address, frame odrive.Frame) Event {
	msg, _ := d.catalog.Message(odrive.CmdHeartbeat)

	// The axis error is a bit set; combined flags have no enum label.
	raw, err := signal.DecodeRaw(msg, frame.Data)
	if err != nil {
		d.logger.WithField("axis", address.String()).WithError(err).Warn("invalid heartbeat")
		return nil
	}

	heartbeat := Heartbeat{
		AxisError:       odrive.AxisError(raw[odrive.SignalAxisError]),
		AxisState:       odrive.AxisState(raw[odrive.SignalAxisState]),
		ProcedureResult: odrive.ProcedureResult(raw[odrive.SignalProcedureResult]),
		TrajectoryDone:  raw[odrive.SignalTrajectoryDoneFlag] == 1,
		Received:        d.now(),
	}

	d.registry.update(id, func(runtime *Runtime) {
		runtime.Heartbeat = heartbeat
		runtime.HasHeartbeat = true
	})
	return HeartbeatEvent{Axis: id, Address: address, Heartbeat: heartbeat}
}

func (d *Dispatcher) handleEstimate(id ID, address odrive.Address, frame odrive.Frame) Event {
	msg, _ := d.catalog.Message(odrive.CmdGetEncoderEstimates)
	record, err := signal.Decode(msg, frame.Data)
	if err != nil {
		d.logger.WithField("axis", address.String()).WithError(err).Warn("invalid encoder estimate")
		return nil
	}

	position := record.Float(odrive.SignalPosEstimate)
	velocity := record.Float(odrive.SignalVelEstimate)
	d.registry.update(id, func(runtime *Runtime) {
		runtime.PositionEstimate = position
		runtime.VelocityEstimate = velocity
		runtime.HasEstimate = true
	})
	return EstimateEvent{Axis: id, Address: address, Position: position, Velocity: velocity}
}
