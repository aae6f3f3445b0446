package endpointClient

import (
	"fmt"

	odrive "github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/endpoint"
)

// Write represents an endpoint write. The device does not acknowledge writes;
// a caller needing confirmation reads the endpoint back.
type Write struct {
	Address odrive.Address
	Key     endpoint.Key
	Value   endpoint.Value
}

func (write Write) Do(client *odrive.Client) error {
	if !write.Key.Valid() {
		return endpoint.UnknownEndpoint{}
	}
	if write.Value.Type != write.Key.Type() {
		return fmt.Errorf("write %s: %s value for %s endpoint", write.Key.Name(), write.Value.Type, write.Key.Type())
	}

	// Keep writes ordered with pending reads of the same axis
	key := endpoint.LockKey(write.Address)
	odrive.Lock.Lock(key)
	defer odrive.Lock.Unlock(key)

	return client.Send(write.Address, odrive.CmdRxSdo, endpoint.RequestRecord(endpoint.OpcodeWrite, write.Key, write.Value.Word()))
}
