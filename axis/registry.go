// Package axis implements the per-axis runtime: telemetry registry, receive
// dispatch, fault handling, bring-up and revolution-unwrapped motion.
package axis

import (
	"fmt"
	"sync"
	"time"

	odrive "github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000"
)

// ID indexes an axis in a Registry.
type ID int

// State is the bring-up state of an axis.
type State uint8

const (
	StateFaulted State = iota
	StateErrorCleared
	StateIndexSearching
	StateModeConfigured
	StateClosedLoop
)

var stateNames = map[State]string{
	StateFaulted:        "Faulted",
	StateErrorCleared:   "ErrorCleared",
	StateIndexSearching: "IndexSearching",
	StateModeConfigured: "ModeConfigured",
	StateClosedLoop:     "ClosedLoop",
}

func (state State) String() string {
	if name, ok := stateNames[state]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", uint8(state))
}

// Heartbeat is the last heartbeat telemetry of an axis.
type Heartbeat struct {
	AxisError       odrive.AxisError
	AxisState       odrive.AxisState
	ProcedureResult odrive.ProcedureResult
	TrajectoryDone  bool
	Received        time.Time
}

// Health is ok unless Faulted is set.
type Health struct {
	Faulted bool
	Reason  string
}

// Runtime is the state kept for one physical axis. Registry hands out copies.
type Runtime struct {
	Name    string
	Address odrive.Address
	State   State

	Heartbeat    Heartbeat
	HasHeartbeat bool

	PositionEstimate float64
	VelocityEstimate float64
	HasEstimate      bool

	LastCommandedRevolution float64
	Health                  Health
}

// Registry is the arena of axis runtimes, indexed by ID.
// Telemetry is written by the receive dispatch path only; readers get snapshots.
type Registry struct {
	mu    sync.RWMutex
	axes  []Runtime
	index map[odrive.Address]ID
}

// NewRegistry creates one runtime per named address. Names default to the
// address text.
func NewRegistry(names []string, addresses ...odrive.Address) (*Registry, error) {
	registry := &Registry{
		axes:  make([]Runtime, 0, len(addresses)),
		index: make(map[odrive.Address]ID, len(addresses)),
	}

	for i, address := range addresses {
		if _, ok := registry.index[address]; ok {
			return nil, fmt.Errorf("duplicate axis %s", address)
		}
		name := address.String()
		if i < len(names) && names[i] != "" {
			name = names[i]
		}
		registry.index[address] = ID(len(registry.axes))
		registry.axes = append(registry.axes, Runtime{Name: name, Address: address})
	}
	return registry, nil
}

func (registry *Registry) Len() int {
	return len(registry.axes)
}

// Lookup returns the id of an address.
func (registry *Registry) Lookup(address odrive.Address) (ID, bool) {
	id, ok := registry.index[address]
	return id, ok
}

// Address returns the address of an axis.
func (registry *Registry) Address(id ID) odrive.Address {
	return registry.axes[id].Address
}

// Addresses returns every address in id order.
func (registry *Registry) Addresses() []odrive.Address {
	addresses := make([]odrive.Address, len(registry.axes))
	for i := range registry.axes {
		addresses[i] = registry.axes[i].Address
	}
	return addresses
}

// Snapshot returns a copy of one runtime.
func (registry *Registry) Snapshot(id ID) Runtime {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	return registry.axes[id]
}

// Snapshots returns a copy of every runtime in id order.
func (registry *Registry) Snapshots() []Runtime {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	snapshots := make([]Runtime, len(registry.axes))
	copy(snapshots, registry.axes)
	return snapshots
}

func (registry *Registry) update(id ID, fn func(*Runtime)) Runtime {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	fn(&registry.axes[id])
	return registry.axes[id]
}
