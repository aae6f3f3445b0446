// Package signal describes fixed-size bus payloads as ordered lists of bit fields
// and encodes/decodes them generically against that description.
package signal

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// MaxPayloadLength is the largest classical CAN payload in bytes.
const MaxPayloadLength = 8

// MaxCommandSlots is the size of the per-node command id space (5 bits).
const MaxCommandSlots = 32

type ByteOrder uint8

const (
	LittleEndian ByteOrder = iota
	BigEndian
)

func (order ByteOrder) String() string {
	if order == BigEndian {
		return "big_endian"
	}
	return "little_endian"
}

type Kind uint8

const (
	Integer Kind = iota
	Float
)

type Direction uint8

const (
	// ControllerOutbound messages are sent by this host to a device.
	ControllerOutbound Direction = iota
	// DeviceOutbound messages are sent by a device to the host.
	DeviceOutbound
)

// Enum is a bidirectional raw value <-> label map.
type Enum struct {
	labels map[uint64]string
	values map[string]uint64
}

func NewEnum(labels map[uint64]string) *Enum {
	enum := &Enum{
		labels: make(map[uint64]string, len(labels)),
		values: make(map[string]uint64, len(labels)),
	}
	for value, label := range labels {
		enum.labels[value] = label
		enum.values[label] = value
	}
	return enum
}

// Label returns the label of a raw value.
func (enum *Enum) Label(value uint64) (string, bool) {
	label, ok := enum.labels[value]
	return label, ok
}

// Value returns the raw value of a label.
func (enum *Enum) Value(label string) (uint64, bool) {
	value, ok := enum.values[label]
	return value, ok
}

// Len returns the number of labels.
func (enum *Enum) Len() int {
	return len(enum.labels)
}

// Values returns every raw value in ascending order.
func (enum *Enum) Values() []uint64 {
	values := make([]uint64, 0, len(enum.labels))
	for value := range enum.labels {
		values = append(values, value)
	}
	slices.Sort(values)
	return values
}

// A Spec describes one bit field of a payload.
//
// Little-endian fields start at the least significant bit StartBit and grow
// upwards across bytes. Big-endian fields use the Motorola numbering: StartBit
// names the most significant bit and the field continues towards the least
// significant bit of the following bytes.
type Spec struct {
	Name      string
	StartBit  uint
	Length    uint
	ByteOrder ByteOrder
	Signed    bool
	Kind      Kind
	Enum      *Enum

	// Factor and Offset are carried from the schema but are not applied.
	Factor float64
	Offset float64
	Unit   string
}

// MessageSpec describes the payload of one command id.
type MessageSpec struct {
	CommandID uint8
	Name      string
	Length    uint
	Direction Direction
	Signals   []Spec
}

// Signal returns the signal with the given name.
func (msg *MessageSpec) Signal(name string) (*Spec, bool) {
	for i := range msg.Signals {
		if msg.Signals[i].Name == name {
			return &msg.Signals[i], true
		}
	}
	return nil, false
}

// Validate checks the bit-range invariants of every signal.
func (msg *MessageSpec) Validate() error {
	if msg.Length > MaxPayloadLength {
		return fmt.Errorf("message %s: payload length %d exceeds %d bytes", msg.Name, msg.Length, MaxPayloadLength)
	}
	if msg.CommandID >= MaxCommandSlots {
		return fmt.Errorf("message %s: command id %d exceeds 5 bits", msg.Name, msg.CommandID)
	}

	names := make([]string, 0, len(msg.Signals))
	for _, sig := range msg.Signals {
		if slices.Contains(names, sig.Name) {
			return fmt.Errorf("message %s: duplicate signal %s", msg.Name, sig.Name)
		}
		names = append(names, sig.Name)

		if sig.Length == 0 || sig.Length > 64 {
			return fmt.Errorf("message %s: signal %s has invalid length %d", msg.Name, sig.Name, sig.Length)
		}
		if sig.Kind == Float && sig.Length != 32 {
			return fmt.Errorf("message %s: float signal %s must be 32 bits wide", msg.Name, sig.Name)
		}

		first, _ := sig.bitRange()
		if first+sig.Length > msg.Length*8 {
			return fmt.Errorf("message %s: signal %s (bits %d+%d) exceeds %d byte payload", msg.Name, sig.Name, sig.StartBit, sig.Length, msg.Length)
		}
	}

	return nil
}

// bitRange returns the position of the field in its byte-order specific linear
// numbering: for little endian the LSB position, for big endian the MSB position
// counted from the most significant bit of byte 0.
func (sig *Spec) bitRange() (uint, uint) {
	if sig.ByteOrder == BigEndian {
		return motorolaPosition(sig.StartBit), sig.Length
	}
	return sig.StartBit, sig.Length
}

func motorolaPosition(startBit uint) uint {
	return (startBit/8)*8 + (7 - startBit%8)
}

// Catalog maps command ids to message descriptions together with the axis
// multiplexing layout of the command id space.
type Catalog struct {
	AxisSlotCount uint8
	AxisCount     uint8

	byID   map[uint8]*MessageSpec
	byName map[string]*MessageSpec
}

// NewCatalog builds and validates a catalog.
func NewCatalog(axisSlotCount uint8, axisCount uint8, messages ...*MessageSpec) (*Catalog, error) {
	catalog := &Catalog{
		AxisSlotCount: axisSlotCount,
		AxisCount:     axisCount,
		byID:          make(map[uint8]*MessageSpec, len(messages)),
		byName:        make(map[string]*MessageSpec, len(messages)),
	}

	for _, msg := range messages {
		if _, ok := catalog.byID[msg.CommandID]; ok {
			return nil, fmt.Errorf("duplicate command id 0x%02X (%s)", msg.CommandID, msg.Name)
		}
		catalog.byID[msg.CommandID] = msg
		catalog.byName[msg.Name] = msg
	}

	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return catalog, nil
}

// Validate checks the catalog layout and every message.
func (catalog *Catalog) Validate() error {
	if catalog.AxisSlotCount == 0 || catalog.AxisCount == 0 {
		return fmt.Errorf("axis slot count and axis count must be positive")
	}
	if int(catalog.AxisSlotCount)*int(catalog.AxisCount) > MaxCommandSlots {
		return fmt.Errorf("axis slot count %d x axis count %d exceeds %d command slots", catalog.AxisSlotCount, catalog.AxisCount, MaxCommandSlots)
	}

	for _, msg := range catalog.Messages() {
		if msg.CommandID >= catalog.AxisSlotCount {
			return fmt.Errorf("message %s: command id %d does not fit %d axis slots", msg.Name, msg.CommandID, catalog.AxisSlotCount)
		}
		if err := msg.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Message returns the message registered for a command id.
func (catalog *Catalog) Message(commandID uint8) (*MessageSpec, bool) {
	msg, ok := catalog.byID[commandID]
	return msg, ok
}

// MessageByName returns the message with the given name.
func (catalog *Catalog) MessageByName(name string) (*MessageSpec, bool) {
	msg, ok := catalog.byName[name]
	return msg, ok
}

// Messages returns every message ordered by command id.
func (catalog *Catalog) Messages() []*MessageSpec {
	messages := make([]*MessageSpec, 0, len(catalog.byID))
	for _, msg := range catalog.byID {
		messages = append(messages, msg)
	}
	slices.SortFunc(messages, func(a, b *MessageSpec) int {
		return int(a.CommandID) - int(b.CommandID)
	})
	return messages
}
