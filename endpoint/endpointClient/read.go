package endpointClient

import (
	"context"
	"time"

	odrive "github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/endpoint"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/signal"
)

// Read represents an endpoint read: a READ request followed by the reply
// carrying the same endpoint id from the addressed axis.
type Read struct {
	Address odrive.Address
	Key     endpoint.Key
	Timeout time.Duration
}

func (read Read) Do(client *odrive.Client) (endpoint.Value, error) {
	return read.DoContext(context.Background(), client)
}

func (read Read) DoContext(ctx context.Context, client *odrive.Client) (endpoint.Value, error) {
	if !read.Key.Valid() {
		return endpoint.Value{}, endpoint.UnknownEndpoint{}
	}

	// Do not allow multiple reads for the same axis
	key := endpoint.LockKey(read.Address)
	odrive.Lock.Lock(key)
	defer odrive.Lock.Unlock(key)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	timeout := read.Timeout
	if timeout <= 0 {
		timeout = endpoint.DefaultTimeout
	}

	id := uint64(read.Key.ID())
	rch := client.WaitCondition(ctx, read.Address, odrive.CmdTxSdo, func(record signal.Record) bool {
		return record.Uint(odrive.SignalEndpointID) == id
	}, timeout)

	if err := client.Send(read.Address, odrive.CmdRxSdo, endpoint.RequestRecord(endpoint.OpcodeRead, read.Key, 0)); err != nil {
		return endpoint.Value{}, err
	}

	resp := <-rch
	if resp.Err != nil {
		if odrive.IsTimeout(resp.Err) {
			return endpoint.Value{}, endpoint.ReadTimeout{Address: read.Address, Key: read.Key, Err: resp.Err}
		}
		return endpoint.Value{}, resp.Err
	}

	return endpoint.FromWord(read.Key.Type(), uint32(resp.Record.Uint(odrive.SignalValue))), nil
}
