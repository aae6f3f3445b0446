// Package endpoint implements the catalog and value model of named controller
// parameters read and written through the generic endpoint request/reply pair.
package endpoint

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/exp/slices"
)

// Spec describes one endpoint of a device.
type Spec struct {
	Name string
	ID   uint16
	Type PrimitiveType
}

// A Key is an endpoint validated against a catalog. The zero Key is invalid.
type Key struct {
	spec Spec
}

func (key Key) Name() string        { return key.spec.Name }
func (key Key) ID() uint16          { return key.spec.ID }
func (key Key) Type() PrimitiveType { return key.spec.Type }
func (key Key) Valid() bool         { return key.spec.Name != "" }

func (key Key) String() string {
	return fmt.Sprintf("%s (id %d, %s)", key.spec.Name, key.spec.ID, key.spec.Type)
}

// UnknownEndpoint is returned when a name is absent from the catalog.
type UnknownEndpoint struct {
	Name string
}

func (e UnknownEndpoint) Error() string {
	return fmt.Sprintf("unknown endpoint %q", e.Name)
}

// Catalog is the flat endpoint namespace of one device.
type Catalog struct {
	byName map[string]Spec
	byID   map[uint16]Spec
}

func NewCatalog(specs ...Spec) (*Catalog, error) {
	catalog := &Catalog{
		byName: make(map[string]Spec, len(specs)),
		byID:   make(map[uint16]Spec, len(specs)),
	}

	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("endpoint id %d has no name", spec.ID)
		}
		if _, ok := catalog.byName[spec.Name]; ok {
			return nil, fmt.Errorf("duplicate endpoint %q", spec.Name)
		}
		if other, ok := catalog.byID[spec.ID]; ok {
			return nil, fmt.Errorf("endpoints %q and %q share id %d", other.Name, spec.Name, spec.ID)
		}
		catalog.byName[spec.Name] = spec
		catalog.byID[spec.ID] = spec
	}

	return catalog, nil
}

// Lookup returns the key of a named endpoint.
func (catalog *Catalog) Lookup(name string) (Key, error) {
	spec, ok := catalog.byName[name]
	if !ok {
		return Key{}, UnknownEndpoint{Name: name}
	}
	return Key{spec}, nil
}

// LookupAll resolves a set of names at once, e.g. to validate them at startup.
func (catalog *Catalog) LookupAll(names ...string) ([]Key, error) {
	keys := make([]Key, 0, len(names))
	for _, name := range names {
		key, err := catalog.Lookup(name)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// ByID returns the key of an endpoint id.
func (catalog *Catalog) ByID(id uint16) (Key, bool) {
	spec, ok := catalog.byID[id]
	return Key{spec}, ok
}

// Keys returns every endpoint ordered by id.
func (catalog *Catalog) Keys() []Key {
	keys := make([]Key, 0, len(catalog.byID))
	for _, spec := range catalog.byID {
		keys = append(keys, Key{spec})
	}
	slices.SortFunc(keys, func(a, b Key) int {
		return int(a.spec.ID) - int(b.spec.ID)
	})
	return keys
}

func (catalog *Catalog) Len() int {
	return len(catalog.byID)
}

type flatEndpoint struct {
	ID     *uint16 `json:"id"`
	Type   string  `json:"type"`
	Access string  `json:"access"`
}

type flatEndpoints struct {
	FirmwareVersion string                  `json:"fw_version"`
	HardwareVersion string                  `json:"hw_version"`
	Endpoints       map[string]flatEndpoint `json:"endpoints"`
}

// LoadEndpoints reads a flat_endpoints.json export:
//
//	{"endpoints": {"axis0.pos_estimate": {"id": 383, "type": "float"}, ...}}
//
// Endpoints without an id or of a non-primitive type are skipped.
func LoadEndpoints(r io.Reader) (*Catalog, error) {
	var flat flatEndpoints
	if err := json.NewDecoder(r).Decode(&flat); err != nil {
		return nil, fmt.Errorf("decode endpoints: %w", err)
	}

	specs := make([]Spec, 0, len(flat.Endpoints))
	for name, endpoint := range flat.Endpoints {
		if endpoint.ID == nil {
			continue
		}
		datatype, err := ParseType(endpoint.Type)
		if err != nil {
			continue
		}
		specs = append(specs, Spec{Name: name, ID: *endpoint.ID, Type: datatype})
	}

	return NewCatalog(specs...)
}

// LoadEndpointsFile reads a flat_endpoints.json file.
func LoadEndpointsFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return LoadEndpoints(f)
}

// Builtin returns the endpoints used by the rig. Other firmware versions
// should load their own export with LoadEndpointsFile.
func Builtin() []Spec {
	return []Spec{
		{"vbus_voltage", 1, TypeFloat},
		{"ibus", 2, TypeFloat},
		{"serial_number", 3, TypeUint},
		{"axis0.active_errors", 100, TypeUint},
		{"axis0.disarm_reason", 101, TypeUint},
		{"axis0.current_state", 102, TypeUint},
		{"axis0.requested_state", 103, TypeUint},
		{"axis0.pos_estimate", 104, TypeFloat},
		{"axis0.vel_estimate", 105, TypeFloat},
		{"axis0.is_homed", 106, TypeBoolean},
		{"axis0.config.can.node_id", 120, TypeUint},
		{"axis0.config.can.heartbeat_msg_rate_ms", 121, TypeUint},
		{"axis0.config.can.encoder_msg_rate_ms", 122, TypeUint},
		{"axis0.controller.config.control_mode", 140, TypeUint},
		{"axis0.controller.config.input_mode", 141, TypeUint},
		{"axis0.controller.config.pos_gain", 142, TypeFloat},
		{"axis0.controller.config.vel_gain", 143, TypeFloat},
		{"axis0.controller.config.vel_integrator_gain", 144, TypeFloat},
		{"axis0.controller.config.vel_limit", 145, TypeFloat},
		{"axis0.controller.config.enable_overspeed_error", 146, TypeBoolean},
		{"axis0.controller.input_pos", 147, TypeFloat},
		{"axis0.trap_traj.config.vel_limit", 160, TypeFloat},
		{"axis0.trap_traj.config.accel_limit", 161, TypeFloat},
		{"axis0.trap_traj.config.decel_limit", 162, TypeFloat},
		{"axis0.motor.config.current_soft_max", 180, TypeFloat},
		{"axis0.motor.fet_thermistor.temperature", 181, TypeFloat},
		{"axis0.pos_vel_mapper.config.offset", 190, TypeFloat},
		{"axis0.commutation_mapper.config.offset", 191, TypeInt},
	}
}

// DefaultCatalog returns the catalog of the built-in endpoints.
func DefaultCatalog() *Catalog {
	catalog, err := NewCatalog(Builtin()...)
	if err != nil {
		panic(err)
	}
	return catalog
}
