package axis

import (
	"errors"
	"fmt"
	"sync"

	odrive "github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/signal"
	"github.com/sirupsen/logrus"
)

// DeviceFault is raised when a heartbeat reports an axis error.
type DeviceFault struct {
	NodeID    uint8
	Axis      uint8
	AxisError odrive.AxisError
}

func (e DeviceFault) Error() string {
	return fmt.Sprintf("node %d axis %d reported %s", e.NodeID, e.Axis, e.AxisError)
}

// EmergencyStop sends the emergency stop command to every address and returns
// the joined send errors. A failed send does not skip the remaining axes.
func EmergencyStop(client *odrive.Client, addresses ...odrive.Address) error {
	var errs []error
	for _, address := range addresses {
		if err := client.Send(address, odrive.CmdEstop, signal.Record{}); err != nil {
			errs = append(errs, fmt.Errorf("estop %s: %w", address, err))
		}
	}
	return errors.Join(errs...)
}

// FaultWatcher consumes heartbeat events. When an armed axis goes from no error
// to an error it stops every axis of the registry and raises a DeviceFault.
// An axis armed while its last heartbeat reports an error raises at once.
type FaultWatcher struct {
	client   *odrive.Client
	registry *Registry
	logger   logrus.FieldLogger

	mu     sync.Mutex
	armed  map[ID]bool
	errors map[ID]odrive.AxisError
	faults chan DeviceFault
}

func NewFaultWatcher(client *odrive.Client, registry *Registry, logger logrus.FieldLogger) *FaultWatcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &FaultWatcher{
		client:   client,
		registry: registry,
		logger:   logger,
		armed:    make(map[ID]bool),
		errors:   make(map[ID]odrive.AxisError),
		faults:   make(chan DeviceFault, 16),
	}
}

// Arm arms every axis of the registry.
func (w *FaultWatcher) Arm() {
	for i := 0; i < w.registry.Len(); i++ {
		w.ArmAxis(ID(i))
	}
}

// ArmAxis enables emergency stops and fault reports for one axis. The error of
// its last heartbeat in the registry is raised at once.
func (w *FaultWatcher) ArmAxis(id ID) {
	var axisError odrive.AxisError
	if runtime := w.registry.Snapshot(id); runtime.HasHeartbeat {
		axisError = runtime.Heartbeat.AxisError
	}

	w.mu.Lock()
	if w.armed[id] {
		w.mu.Unlock()
		return
	}
	w.armed[id] = true
	w.errors[id] = axisError
	w.mu.Unlock()

	if axisError != odrive.AxisErrorNone {
		w.Raise(w.fault(id, axisError))
	}
}

// Disarm disarms every axis.
func (w *FaultWatcher) Disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	clear(w.armed)
}

// Faults receives the raised faults. Faults are dropped while nobody receives
// and the buffer is full.
func (w *FaultWatcher) Faults() <-chan DeviceFault {
	return w.faults
}

// Run consumes events until the channel is closed.
func (w *FaultWatcher) Run(events <-chan Event) {
	for event := range events {
		if heartbeat, ok := event.(HeartbeatEvent); ok {
			w.observe(heartbeat)
		}
	}
}

func (w *FaultWatcher) observe(event HeartbeatEvent) {
	axisError := event.Heartbeat.AxisError

	w.mu.Lock()
	wasFaulted := w.errors[event.Axis] != odrive.AxisErrorNone
	w.errors[event.Axis] = axisError
	armed := w.armed[event.Axis]
	w.mu.Unlock()

	if axisError == odrive.AxisErrorNone || wasFaulted || !armed {
		return
	}
	w.Raise(w.fault(event.Axis, axisError))
}

func (w *FaultWatcher) fault(id ID, axisError odrive.AxisError) DeviceFault {
	address := w.registry.Address(id)
	return DeviceFault{NodeID: address.NodeID, Axis: address.Axis, AxisError: axisError}
}

// Raise stops every axis, marks the faulting axis and reports the fault.
func (w *FaultWatcher) Raise(fault DeviceFault) {
	w.logger.WithFields(logrus.Fields{
		"node":  fault.NodeID,
		"axis":  fault.Axis,
		"error": fault.AxisError.String(),
	}).Error("axis fault, stopping all axes")

	if err := EmergencyStop(w.client, w.registry.Addresses()...); err != nil {
		w.logger.WithError(err).Error("emergency stop failed")
	}

	if id, ok := w.registry.Lookup(odrive.Address{NodeID: fault.NodeID, Axis: fault.Axis}); ok {
		w.registry.update(id, markFaulted(fault))
	}

	select {
	case w.faults <- fault:
	default:
	}
}

func markFaulted(fault DeviceFault) func(*Runtime) {
	return func(runtime *Runtime) {
		runtime.State = StateFaulted
		runtime.Health = Health{Faulted: true, Reason: fault.AxisError.String()}
	}
}
