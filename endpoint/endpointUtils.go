package endpoint

import (
	"fmt"
	"time"

	odrive "github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/signal"
)

// DefaultTimeout bounds a read when the caller sets none.
const DefaultTimeout = 2 * time.Second

const (
	OpcodeRead  = "READ"
	OpcodeWrite = "WRITE"
)

// ReadTimeout is returned when a device did not answer a read in time.
type ReadTimeout struct {
	Address odrive.Address
	Key     Key
	Err     error
}

func (e ReadTimeout) Error() string {
	return fmt.Sprintf("read %s from %s: %v", e.Key.Name(), e.Address, e.Err)
}

func (e ReadTimeout) Unwrap() error {
	return e.Err
}

// RequestRecord returns the request message fields for an endpoint.
func RequestRecord(opcode string, key Key, word uint32) signal.Record {
	return signal.Record{
		odrive.SignalOpcode:     opcode,
		odrive.SignalEndpointID: uint64(key.ID()),
		odrive.SignalValue:      uint64(word),
	}
}

// ReplyRecord returns the reply message fields for an endpoint.
func ReplyRecord(key Key, word uint32) signal.Record {
	return signal.Record{
		odrive.SignalEndpointID: uint64(key.ID()),
		odrive.SignalValue:      uint64(word),
	}
}

// LockKey names the request lock of a node and axis. Replies carry no request
// identity, so only one read may be pending per address.
func LockKey(address odrive.Address) string {
	return fmt.Sprintf("endpoint/%d/%d", address.NodeID, address.Axis)
}
