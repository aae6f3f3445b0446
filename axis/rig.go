package axis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	odrive "github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000"
	"github.com/sirupsen/logrus"
)

// Source delivers target angles, one per axis in registry order.
type Source interface {
	// Next blocks until a value newer than version is available and returns
	// it with its version. Intermediate values are skipped.
	Next(ctx context.Context, version uint64) ([]float64, uint64, error)
}

// Sink receives the commanded angles after every move.
type Sink interface {
	Publish(angles []float64)
}

type AxisConfig struct {
	Name    string
	Address odrive.Address
}

type Config struct {
	Axes            []AxisConfig
	StepTimeout     time.Duration
	MoveTimeout     time.Duration
	Tolerance       float64
	SymmetricUnwrap bool
	Logger          logrus.FieldLogger
}

// Rig owns the axes of the gimbal: their registry, the receive dispatcher,
// the fault watcher and one tracker per axis.
type Rig struct {
	client     *odrive.Client
	config     Config
	logger     logrus.FieldLogger
	registry   *Registry
	dispatcher *Dispatcher
	watcher    *FaultWatcher
	trackers   []*Tracker
	stopOnce   sync.Once
}

func NewRig(client *odrive.Client, config Config) (*Rig, error) {
	if len(config.Axes) == 0 {
		return nil, errors.New("rig without axes")
	}

	logger := config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	names := make([]string, len(config.Axes))
	addresses := make([]odrive.Address, len(config.Axes))
	for i, axis := range config.Axes {
		if _, err := axis.Address.ID(odrive.CmdHeartbeat, client.Catalog); err != nil {
			return nil, err
		}
		names[i] = axis.Name
		addresses[i] = axis.Address
	}

	registry, err := NewRegistry(names, addresses...)
	if err != nil {
		return nil, err
	}

	rig := &Rig{
		client:     client,
		config:     config,
		logger:     logger,
		registry:   registry,
		dispatcher: NewDispatcher(registry, client.Catalog, logger),
		watcher:    NewFaultWatcher(client, registry, logger),
	}

	for i := range config.Axes {
		rig.trackers = append(rig.trackers, &Tracker{
			Client:          client,
			Registry:        registry,
			Axis:            ID(i),
			SymmetricUnwrap: config.SymmetricUnwrap,
			MoveTimeout:     config.MoveTimeout,
			Tolerance:       config.Tolerance,
		})
	}
	return rig, nil
}

func (rig *Rig) Registry() *Registry     { return rig.registry }
func (rig *Rig) Dispatcher() *Dispatcher { return rig.dispatcher }

// Faults receives the faults raised by the armed fault watcher.
func (rig *Rig) Faults() <-chan DeviceFault {
	return rig.watcher.Faults()
}

// Start begins receiving telemetry. The fault watcher stays disarmed until
// the axes are brought up.
func (rig *Rig) Start() {
	events := rig.dispatcher.Events(64)
	go rig.watcher.Run(events)
	rig.dispatcher.Start(rig.client.Bus)
}

// Stop stops receiving telemetry.
func (rig *Rig) Stop() {
	rig.stopOnce.Do(func() {
		rig.watcher.Disarm()
		rig.dispatcher.Stop()
	})
}

// EmergencyStopAll sends the emergency stop to every axis.
func (rig *Rig) EmergencyStopAll() error {
	return EmergencyStop(rig.client, rig.registry.Addresses()...)
}

// BringUpAll brings every axis up concurrently. The first failure cancels the
// other sequences and is returned once all of them stopped. Each axis is armed
// in the fault watcher as soon as it reaches closed loop, so a fault of a ready
// axis stops the rig while the others are still calibrating.
func (rig *Rig) BringUpAll(ctx context.Context) error {
	rig.watcher.Disarm()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for i := 0; i < rig.registry.Len(); i++ {
		id := ID(i)
		bringUp := BringUp{
			Client:        rig.client,
			Address:       rig.registry.Address(id),
			StepTimeout:   rig.config.StepTimeout,
			EmergencyStop: rig.EmergencyStopAll,
			Logger:        rig.logger,
			OnState: func(state State) {
				rig.registry.update(id, func(runtime *Runtime) {
					runtime.State = state
					if state == StateErrorCleared {
						runtime.Health = Health{}
					}
				})
				if state == StateClosedLoop {
					rig.watcher.ArmAxis(id)
				}
			},
			OnFault: func(fault DeviceFault) {
				rig.registry.update(id, markFaulted(fault))
			},
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bringUp.Run(ctx); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	rig.watcher.Arm()
	return nil
}

// MoveTo commands one angle per axis, concurrently, and returns the commanded
// revolution-domain targets.
func (rig *Rig) MoveTo(ctx context.Context, angles []float64) ([]float64, error) {
	if len(angles) != len(rig.trackers) {
		return nil, fmt.Errorf("%d angles for %d axes", len(angles), len(rig.trackers))
	}

	targets := make([]float64, len(angles))
	errs := make([]error, len(angles))

	var wg sync.WaitGroup
	for i, tracker := range rig.trackers {
		wg.Add(1)
		go func(i int, tracker *Tracker) {
			defer wg.Done()
			targets[i], errs[i] = tracker.MoveTo(ctx, angles[i])
		}(i, tracker)
	}
	wg.Wait()

	return targets, errors.Join(errs...)
}

// Track follows the source until the context ends or a fault is raised.
// Moves that do not settle in time are logged and tracking continues.
func (rig *Rig) Track(ctx context.Context, source Source, sink Sink) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	faults := make(chan DeviceFault, 1)
	go func() {
		select {
		case fault := <-rig.Faults():
			faults <- fault
			cancel()
		case <-ctx.Done():
		}
	}()

	var version uint64
	for {
		angles, next, err := source.Next(ctx, version)
		if err != nil {
			select {
			case fault := <-faults:
				return fault
			default:
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		version = next

		if _, err := rig.MoveTo(ctx, angles); err != nil {
			rig.logger.WithError(err).Warn("move did not complete")
		}
		if sink != nil {
			sink.Publish(angles)
		}
	}
}
