package axis

import (
	"context"
	"math"
	"time"

	odrive "github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/signal"
)

func wrap(x float64) float64 {
	return x - math.Trunc(x)
}

// Unwrap returns the revolution-domain target for a bounded angle in [0, 2π)
// that is closest to last in the forward direction.
//
// Only diff < -0.5 is folded back by default, so a target half a turn or more
// ahead keeps the long way round. symmetric also folds diff > 0.5.
func Unwrap(last float64, angle float64, symmetric bool) float64 {
	circularPosition := angle / (2 * math.Pi)
	diff := circularPosition - wrap(last)
	if diff < -0.5 {
		diff += 1
	}
	if symmetric && diff > 0.5 {
		diff -= 1
	}
	return last + diff
}

// Tracker commands continuous positions for one axis of a registry.
type Tracker struct {
	Client   *odrive.Client
	Registry *Registry
	Axis     ID

	SymmetricUnwrap bool
	// MoveTimeout > 0 makes MoveTo wait for the position estimate to come
	// within Tolerance revolutions of the target.
	MoveTimeout time.Duration
	Tolerance   float64
}

// MoveTo commands the axis to a bounded angle in radians and returns the
// commanded revolution-domain target. A move that does not settle in time
// returns the target with an odrive.TimeoutError.
func (t *Tracker) MoveTo(ctx context.Context, angle float64) (float64, error) {
	runtime := t.Registry.Snapshot(t.Axis)
	target := Unwrap(runtime.LastCommandedRevolution, angle, t.SymmetricUnwrap)

	var rch <-chan odrive.ConditionResponse
	if t.MoveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()

		rch = t.Client.WaitCondition(ctx, runtime.Address, odrive.CmdGetEncoderEstimates, func(record signal.Record) bool {
			return t.settled(record.Float(odrive.SignalPosEstimate), target)
		}, t.MoveTimeout)
	}

	err := t.Client.Send(runtime.Address, odrive.CmdSetInputPos, signal.Record{
		odrive.SignalInputPos: target,
		odrive.SignalVelFF:    0,
		odrive.SignalTorqueFF: 0,
	})
	if err != nil {
		return target, err
	}

	t.Registry.update(t.Axis, func(runtime *Runtime) {
		runtime.LastCommandedRevolution = target
	})

	if rch == nil {
		return target, nil
	}

	// The estimate may already be there.
	if snapshot := t.Registry.Snapshot(t.Axis); snapshot.HasEstimate && t.settled(snapshot.PositionEstimate, target) {
		return target, nil
	}
	resp := <-rch
	return target, resp.Err
}

func (t *Tracker) settled(position float64, target float64) bool {
	return math.Abs(position-target) <= t.Tolerance
}
