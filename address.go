package odrive

import (
	"fmt"

	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/signal"
)

// Address represents one control loop on the bus: a node and an axis of that node.
type Address struct {
	NodeID uint8
	Axis   uint8
}

func (address Address) String() string {
	return fmt.Sprintf("node %d axis %d", address.NodeID, address.Axis)
}

// AddressError is returned when an address does not fit the identifier layout.
type AddressError struct {
	Address   Address
	CommandID uint8
	Reason    string
}

func (e AddressError) Error() string {
	return fmt.Sprintf("%s command 0x%02X: %s", e.Address, e.CommandID, e.Reason)
}

// ComposeID returns the frame identifier of a command for a node and axis.
// It does not validate its arguments; use Address.ID for that.
func ComposeID(nodeID uint8, axis uint8, commandID uint8, axisSlotCount uint8) uint32 {
	return uint32(nodeID)<<ShiftNodeID | uint32(commandID+axis*axisSlotCount)
}

// DecomposeID splits a frame identifier into node id and command slot.
func DecomposeID(id uint32) (nodeID uint8, slot uint8) {
	return uint8((id >> ShiftNodeID) & MaskNodeID), uint8(id & MaskSlot)
}

// SplitSlot recovers axis index and command id from a command slot.
func SplitSlot(slot uint8, axisSlotCount uint8) (axis uint8, commandID uint8) {
	return slot / axisSlotCount, slot % axisSlotCount
}

// ID returns the validated frame identifier of a command for this address.
func (address Address) ID(commandID uint8, catalog *signal.Catalog) (uint32, error) {
	switch {
	case address.NodeID > MaxNodeID:
		return 0, AddressError{address, commandID, fmt.Sprintf("node id exceeds %d", MaxNodeID)}
	case address.Axis >= catalog.AxisCount:
		return 0, AddressError{address, commandID, fmt.Sprintf("axis exceeds %d axes per node", catalog.AxisCount)}
	case commandID >= catalog.AxisSlotCount:
		return 0, AddressError{address, commandID, fmt.Sprintf("command id exceeds %d slots per axis", catalog.AxisSlotCount)}
	}

	return ComposeID(address.NodeID, address.Axis, commandID, catalog.AxisSlotCount), nil
}

// Matches reports whether id carries commandID for this address.
func (address Address) Matches(id uint32, commandID uint8, catalog *signal.Catalog) bool {
	nodeID, slot := DecomposeID(id)
	if nodeID != address.NodeID || id > MaskIDSff {
		return false
	}
	axis, command := SplitSlot(slot, catalog.AxisSlotCount)
	return axis == address.Axis && command == commandID
}

// AddressOf returns the address and command id carried by a frame identifier.
func AddressOf(id uint32, catalog *signal.Catalog) (Address, uint8) {
	nodeID, slot := DecomposeID(id)
	axis, command := SplitSlot(slot, catalog.AxisSlotCount)
	return Address{NodeID: nodeID, Axis: axis}, command
}
