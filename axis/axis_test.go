package axis

import (
	"context"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	odrive "github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/device"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type testRig struct {
	bus     *odrive.Loopback
	client  *odrive.Client
	rig     *Rig
	devices []*device.Device
}

func newTestRig(t *testing.T, config Config, nodes ...uint8) *testRig {
	bus := odrive.NewLoopback()
	client := &odrive.Client{Bus: bus, Catalog: odrive.DefaultCatalog()}

	tr := &testRig{bus: bus, client: client}
	for i, node := range nodes {
		address := odrive.Address{NodeID: node}
		config.Axes = append(config.Axes, AxisConfig{Name: []string{"x", "y", "z"}[i%3], Address: address})

		dev := device.New(address)
		dev.Logger = quietLogger()
		dev.Start(client)
		tr.devices = append(tr.devices, dev)
	}

	if config.StepTimeout == 0 {
		config.StepTimeout = time.Second
	}
	config.Logger = quietLogger()

	rig, err := NewRig(client, config)
	require.NoError(t, err)
	rig.Start()
	tr.rig = rig

	t.Cleanup(func() {
		rig.Stop()
		for _, dev := range tr.devices {
			dev.Close()
		}
		bus.Close()
	})
	return tr
}

// estops records the nodes that received an emergency stop.
func (tr *testRig) estops() func() map[uint8]bool {
	var mu sync.Mutex
	seen := map[uint8]bool{}
	tr.bus.Subscribe(func(frame odrive.Frame) {
		address, command := odrive.AddressOf(frame.ID, tr.client.Catalog)
		if command == odrive.CmdEstop && !frame.Rtr {
			mu.Lock()
			seen[address.NodeID] = true
			mu.Unlock()
		}
	})
	return func() map[uint8]bool {
		mu.Lock()
		defer mu.Unlock()
		result := make(map[uint8]bool, len(seen))
		for k, v := range seen {
			result[k] = v
		}
		return result
	}
}

func TestUnwrap(t *testing.T) {
	tests := []struct {
		name      string
		last      float64
		angle     float64
		symmetric bool
		want      float64
	}{
		{"half turn", 0, math.Pi, false, 0.5},
		{"forward across zero", 0.9, 0.2 * math.Pi, false, 1.1},
		{"backward stays long way", 0.1, 1.8 * math.Pi, false, 0.9},
		{"backward symmetric", 0.1, 1.8 * math.Pi, true, -0.1},
		{"multi turn", 2.25, 0.5 * math.Pi, false, 2.25},
		{"negative revolution", -0.3, 0, false, 0},
		{"negative revolution keeps forward diff", -1.75, 1.5 * math.Pi, false, -0.25},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.InDelta(t, test.want, Unwrap(test.last, test.angle, test.symmetric), 1e-9)
		})
	}
}

func TestBringUpAll(t *testing.T) {
	tr := newTestRig(t, Config{}, 0, 1, 2)

	require.NoError(t, tr.rig.BringUpAll(context.Background()))

	for i, snapshot := range tr.rig.Registry().Snapshots() {
		assert.Equal(t, StateClosedLoop, snapshot.State, snapshot.Name)
		assert.False(t, snapshot.Health.Faulted)

		state := tr.devices[i].State()
		assert.Equal(t, odrive.AxisStateClosedLoopControl, state.AxisState)
		assert.Equal(t, odrive.ControlModePosition, state.ControlMode)
		assert.Equal(t, odrive.InputModeTrapTraj, state.InputMode)
	}
}

func TestBringUpFaultStopsEveryAxis(t *testing.T) {
	tr := newTestRig(t, Config{}, 0, 1, 2)
	estops := tr.estops()

	tr.devices[1].FailClosedLoop(odrive.AxisErrorDrvFault)

	err := tr.rig.BringUpAll(context.Background())
	var fault DeviceFault
	require.ErrorAs(t, err, &fault)
	assert.NotEqual(t, odrive.AxisErrorNone, fault.AxisError)

	assert.Eventually(t, func() bool {
		seen := estops()
		return seen[0] && seen[1] && seen[2]
	}, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		return tr.rig.Registry().Snapshot(1).State == StateFaulted
	}, time.Second, 5*time.Millisecond)

	health := tr.rig.Registry().Snapshot(1).Health
	assert.True(t, health.Faulted)
	assert.NotEmpty(t, health.Reason)
}

func TestFaultWhileOtherAxisCalibrates(t *testing.T) {
	tr := newTestRig(t, Config{}, 0, 1)
	tr.devices[1].IndexSearchDelay = 400 * time.Millisecond
	estops := tr.estops()

	go func() {
		deadline := time.Now().Add(time.Second)
		for tr.rig.Registry().Snapshot(0).State != StateClosedLoop {
			if time.Now().After(deadline) {
				return
			}
			time.Sleep(time.Millisecond)
		}
		tr.devices[0].InjectFault(odrive.AxisErrorMotorOverTemp)
	}()

	err := tr.rig.BringUpAll(context.Background())
	require.Error(t, err)

	select {
	case fault := <-tr.rig.Faults():
		assert.Equal(t, DeviceFault{NodeID: 0, AxisError: odrive.AxisErrorMotorOverTemp}, fault)
	case <-time.After(time.Second):
		t.Fatal("no fault raised")
	}

	assert.Eventually(t, func() bool {
		seen := estops()
		return seen[0] && seen[1]
	}, time.Second, 5*time.Millisecond)

	snapshot := tr.rig.Registry().Snapshot(0)
	assert.True(t, snapshot.Health.Faulted)
	assert.Equal(t, StateFaulted, snapshot.State)
}

func TestArmRaisesStandingFault(t *testing.T) {
	tr := newTestRig(t, Config{}, 0, 1)
	estops := tr.estops()

	tr.devices[1].InjectFault(odrive.AxisErrorDrvFault)
	assert.Eventually(t, func() bool {
		return tr.rig.Registry().Snapshot(1).Heartbeat.AxisError == odrive.AxisErrorDrvFault
	}, time.Second, 5*time.Millisecond)

	watcher := NewFaultWatcher(tr.client, tr.rig.Registry(), quietLogger())
	watcher.Arm()

	select {
	case fault := <-watcher.Faults():
		assert.Equal(t, DeviceFault{NodeID: 1, AxisError: odrive.AxisErrorDrvFault}, fault)
	case <-time.After(time.Second):
		t.Fatal("no fault raised")
	}

	assert.Eventually(t, func() bool {
		seen := estops()
		return seen[0] && seen[1]
	}, time.Second, 5*time.Millisecond)

	// Arming again does not raise the same fault twice.
	watcher.ArmAxis(1)
	select {
	case fault := <-watcher.Faults():
		t.Fatalf("fault raised twice: %+v", fault)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBringUpTimeout(t *testing.T) {
	tr := newTestRig(t, Config{StepTimeout: 30 * time.Millisecond}, 0)
	tr.devices[0].IndexSearchDelay = time.Second

	err := tr.rig.BringUpAll(context.Background())
	var failed odrive.ExpectationFailed
	require.ErrorAs(t, err, &failed)
	assert.Contains(t, failed.Message, "encoder index search")
	assert.True(t, odrive.IsTimeout(err))
}

func TestFaultWatcher(t *testing.T) {
	tr := newTestRig(t, Config{}, 0, 1, 2)
	require.NoError(t, tr.rig.BringUpAll(context.Background()))
	estops := tr.estops()

	tr.devices[2].InjectFault(odrive.AxisErrorMotorOverTemp)

	select {
	case fault := <-tr.rig.Faults():
		assert.Equal(t, DeviceFault{NodeID: 2, AxisError: odrive.AxisErrorMotorOverTemp}, fault)
	case <-time.After(time.Second):
		t.Fatal("no fault raised")
	}

	assert.Eventually(t, func() bool {
		seen := estops()
		return seen[0] && seen[1] && seen[2]
	}, time.Second, 5*time.Millisecond)

	snapshot := tr.rig.Registry().Snapshot(2)
	assert.True(t, snapshot.Health.Faulted)
	assert.Equal(t, StateFaulted, snapshot.State)
}

func TestDispatcherCombinedErrors(t *testing.T) {
	bus := odrive.NewLoopback()
	defer bus.Close()
	catalog := odrive.DefaultCatalog()

	registry, err := NewRegistry(nil, odrive.Address{NodeID: 5})
	require.NoError(t, err)
	dispatcher := NewDispatcher(registry, catalog, quietLogger())
	events := dispatcher.Events(4)
	dispatcher.Start(bus)
	defer dispatcher.Stop()

	id := odrive.ComposeID(5, 0, odrive.CmdHeartbeat, 32)
	require.NoError(t, bus.Publish(odrive.NewFrame(id, []uint8{0x21, 0, 0, 0, 8, 3, 1, 0})))

	// Frames of unknown nodes are ignored.
	require.NoError(t, bus.Publish(odrive.NewFrame(odrive.ComposeID(6, 0, odrive.CmdHeartbeat, 32), make([]uint8, 8))))

	select {
	case event := <-events:
		heartbeat, ok := event.(HeartbeatEvent)
		require.True(t, ok)
		assert.Equal(t, odrive.AxisErrorInitializing|odrive.AxisErrorDrvFault, heartbeat.Heartbeat.AxisError)
		assert.Equal(t, odrive.AxisStateClosedLoopControl, heartbeat.Heartbeat.AxisState)
		assert.Equal(t, odrive.ProcedureResultDisarmed, heartbeat.Heartbeat.ProcedureResult)
		assert.True(t, heartbeat.Heartbeat.TrajectoryDone)
	case <-time.After(time.Second):
		t.Fatal("no event")
	}

	snapshot := registry.Snapshot(0)
	assert.True(t, snapshot.HasHeartbeat)
	assert.Equal(t, "node 5 axis 0", snapshot.Name)

	select {
	case event := <-events:
		t.Fatalf("unexpected event %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMoveTo(t *testing.T) {
	tr := newTestRig(t, Config{MoveTimeout: time.Second, Tolerance: 1e-4}, 0, 1, 2)
	require.NoError(t, tr.rig.BringUpAll(context.Background()))

	targets, err := tr.rig.MoveTo(context.Background(), []float64{math.Pi, 0.5 * math.Pi, 0})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 0.25, 0}, targets, 1e-6)

	targets, err = tr.rig.MoveTo(context.Background(), []float64{0.2 * math.Pi, 0.5 * math.Pi, 1.9 * math.Pi})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.1, 0.25, 0.95}, targets, 1e-6)

	for i, snapshot := range tr.rig.Registry().Snapshots() {
		assert.InDelta(t, targets[i], snapshot.LastCommandedRevolution, 1e-9)
		assert.InDelta(t, targets[i], tr.devices[i].State().Position, 1e-6)
	}

	_, err = tr.rig.MoveTo(context.Background(), []float64{0})
	assert.Error(t, err)
}

func TestMoveToSymmetric(t *testing.T) {
	tr := newTestRig(t, Config{SymmetricUnwrap: true}, 0)
	require.NoError(t, tr.rig.BringUpAll(context.Background()))

	targets, err := tr.rig.MoveTo(context.Background(), []float64{1.5 * math.Pi})
	require.NoError(t, err)
	assert.InDelta(t, -0.25, targets[0], 1e-9)
}

type fakeSource struct {
	values [][]float64
}

func (s *fakeSource) Next(ctx context.Context, version uint64) ([]float64, uint64, error) {
	if int(version) < len(s.values) {
		return s.values[version], version + 1, nil
	}
	<-ctx.Done()
	return nil, version, ctx.Err()
}

type fakeSink struct {
	mu        sync.Mutex
	published [][]float64
}

func (s *fakeSink) Publish(angles []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, angles)
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.published)
}

func TestTrack(t *testing.T) {
	tr := newTestRig(t, Config{MoveTimeout: time.Second, Tolerance: 1e-4}, 0, 1, 2)
	require.NoError(t, tr.rig.BringUpAll(context.Background()))

	source := &fakeSource{values: [][]float64{{0, 0, 0}, {math.Pi, 0, 0}}}
	sink := &fakeSink{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.rig.Track(ctx, source, sink) }()

	assert.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.InDelta(t, 0.5, tr.devices[0].State().Position, 1e-6)

	cancel()
	assert.NoError(t, <-done)
}

func TestTrackStopsOnFault(t *testing.T) {
	tr := newTestRig(t, Config{}, 0, 1)
	require.NoError(t, tr.rig.BringUpAll(context.Background()))

	source := &fakeSource{}
	done := make(chan error, 1)
	go func() { done <- tr.rig.Track(context.Background(), source, nil) }()

	tr.devices[0].InjectFault(odrive.AxisErrorDcBusUnderVoltage)

	select {
	case err := <-done:
		var fault DeviceFault
		require.ErrorAs(t, err, &fault)
		assert.Equal(t, uint8(0), fault.NodeID)
	case <-time.After(time.Second):
		t.Fatal("tracking did not stop")
	}
}

func TestRegistryDuplicate(t *testing.T) {
	_, err := NewRegistry(nil, odrive.Address{NodeID: 1}, odrive.Address{NodeID: 1})
	assert.Error(t, err)

	_, err = NewRig(&odrive.Client{Catalog: odrive.DefaultCatalog()}, Config{Axes: []AxisConfig{{Address: odrive.Address{NodeID: 64}}}})
	var addressErr odrive.AddressError
	assert.ErrorAs(t, err, &addressErr)
}
