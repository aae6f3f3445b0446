package endpoint_test

import (
	"sync"
	"testing"
	"time"

	odrive "github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/endpoint"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/endpoint/endpointClient"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/endpoint/endpointServer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type store struct {
	mu     sync.Mutex
	values map[uint16]endpoint.Value
}

func (s *store) read(key endpoint.Key) (endpoint.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key.ID()]
	return value, ok
}

func (s *store) write(key endpoint.Key, value endpoint.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key.ID()] = value
}

func setup(t *testing.T, address odrive.Address) (*odrive.Client, *endpoint.Catalog, *store) {
	bus := odrive.NewLoopback()
	client := &odrive.Client{Bus: bus, Catalog: odrive.DefaultCatalog()}
	catalog := endpoint.DefaultCatalog()
	values := &store{values: map[uint16]endpoint.Value{}}

	server := &endpointServer.Server{
		Address: address,
		Catalog: catalog,
		Read:    values.read,
		Write:   values.write,
	}
	server.Listen(client)

	t.Cleanup(func() {
		server.Close()
		bus.Close()
	})
	return client, catalog, values
}

func lookup(t *testing.T, catalog *endpoint.Catalog, name string) endpoint.Key {
	key, err := catalog.Lookup(name)
	require.NoError(t, err)
	return key
}

func TestRead(t *testing.T) {
	address := odrive.Address{NodeID: 1}
	client, catalog, values := setup(t, address)

	vbus := lookup(t, catalog, "vbus_voltage")
	values.write(vbus, endpoint.FloatValue(24.5))

	value, err := endpointClient.Read{Address: address, Key: vbus}.Do(client)
	require.NoError(t, err)
	assert.Equal(t, endpoint.FloatValue(24.5), value)
}

func TestWriteThenRead(t *testing.T) {
	address := odrive.Address{NodeID: 4}
	client, catalog, _ := setup(t, address)

	overspeed := lookup(t, catalog, "axis0.controller.config.enable_overspeed_error")
	offset := lookup(t, catalog, "axis0.commutation_mapper.config.offset")

	require.NoError(t, endpointClient.Write{Address: address, Key: overspeed, Value: endpoint.BoolValue(true)}.Do(client))
	require.NoError(t, endpointClient.Write{Address: address, Key: offset, Value: endpoint.IntValue(-1200)}.Do(client))

	value, err := endpointClient.Read{Address: address, Key: overspeed}.Do(client)
	require.NoError(t, err)
	assert.True(t, value.Bool)

	value, err = endpointClient.Read{Address: address, Key: offset}.Do(client)
	require.NoError(t, err)
	assert.Equal(t, int32(-1200), value.Int)
}

func TestWriteTypeMismatch(t *testing.T) {
	address := odrive.Address{NodeID: 4}
	client, catalog, _ := setup(t, address)

	err := endpointClient.Write{
		Address: address,
		Key:     lookup(t, catalog, "vbus_voltage"),
		Value:   endpoint.UintValue(3),
	}.Do(client)
	assert.Error(t, err)
}

func TestReadTimeout(t *testing.T) {
	address := odrive.Address{NodeID: 1}
	client, catalog, _ := setup(t, address)

	// No value stored: the server does not answer.
	key := lookup(t, catalog, "ibus")
	_, err := endpointClient.Read{Address: address, Key: key, Timeout: 30 * time.Millisecond}.Do(client)

	var timeout endpoint.ReadTimeout
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "ibus", timeout.Key.Name())
	assert.True(t, odrive.IsTimeout(err))
}

func TestReadOtherNodeTimesOut(t *testing.T) {
	client, catalog, values := setup(t, odrive.Address{NodeID: 1})

	key := lookup(t, catalog, "vbus_voltage")
	values.write(key, endpoint.FloatValue(24))

	_, err := endpointClient.Read{Address: odrive.Address{NodeID: 2}, Key: key, Timeout: 30 * time.Millisecond}.Do(client)
	assert.True(t, odrive.IsTimeout(err))
}

func TestConcurrentReads(t *testing.T) {
	address := odrive.Address{NodeID: 3}
	client, catalog, values := setup(t, address)

	keys := []endpoint.Key{
		lookup(t, catalog, "axis0.config.can.node_id"),
		lookup(t, catalog, "axis0.config.can.heartbeat_msg_rate_ms"),
		lookup(t, catalog, "axis0.config.can.encoder_msg_rate_ms"),
	}
	for i, key := range keys {
		values.write(key, endpoint.UintValue(uint32(10*(i+1))))
	}

	var wg sync.WaitGroup
	results := make([]endpoint.Value, len(keys))
	errs := make([]error, len(keys))
	for i, key := range keys {
		wg.Add(1)
		go func(i int, key endpoint.Key) {
			defer wg.Done()
			results[i], errs[i] = endpointClient.Read{Address: address, Key: key}.Do(client)
		}(i, key)
	}
	wg.Wait()

	for i := range keys {
		require.NoError(t, errs[i])
		assert.Equal(t, uint32(10*(i+1)), results[i].Uint)
	}
}

func TestUnknownEndpoint(t *testing.T) {
	_, err := endpoint.DefaultCatalog().Lookup("axis9.foo")
	var unknown endpoint.UnknownEndpoint
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "axis9.foo", unknown.Name)

	client, _, _ := setup(t, odrive.Address{NodeID: 1})
	_, err = endpointClient.Read{Address: odrive.Address{NodeID: 1}}.Do(client)
	assert.ErrorAs(t, err, &unknown)
}
