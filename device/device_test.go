package device

import (
	"context"
	"io"
	"testing"
	"time"

	odrive "github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/endpoint"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/endpoint/endpointClient"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/signal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func start(t *testing.T, address odrive.Address) (*Device, *odrive.Client) {
	bus := odrive.NewLoopback()
	client := &odrive.Client{Bus: bus, Catalog: odrive.DefaultCatalog()}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	dev := New(address)
	dev.Logger = logger
	dev.HeartbeatInterval = 0
	dev.EstimateInterval = 0
	dev.Start(client)

	t.Cleanup(func() {
		dev.Close()
		bus.Close()
	})
	return dev, client
}

func TestPollHeartbeat(t *testing.T) {
	address := odrive.Address{NodeID: 7}
	_, client := start(t, address)

	rch := client.WaitCondition(context.Background(), address, odrive.CmdHeartbeat, nil, time.Second)
	require.NoError(t, client.Poll(address, odrive.CmdHeartbeat))

	resp := <-rch
	require.NoError(t, resp.Err)
	assert.Equal(t, "IDLE", resp.Record.Label(odrive.SignalAxisState))
	assert.Equal(t, "NOT_CALIBRATED", resp.Record.Label(odrive.SignalProcedureResult))
	assert.Equal(t, "NONE", resp.Record.Label(odrive.SignalAxisError))
}

func TestIndexSearch(t *testing.T) {
	address := odrive.Address{NodeID: 7}
	dev, client := start(t, address)

	rch := client.WaitCondition(context.Background(), address, odrive.CmdHeartbeat, func(record signal.Record) bool {
		return record.Label(odrive.SignalProcedureResult) == "SUCCESS"
	}, time.Second)
	require.NoError(t, client.Send(address, odrive.CmdSetAxisState, signal.Record{odrive.SignalRequestedState: "ENCODER_INDEX_SEARCH"}))

	resp := <-rch
	require.NoError(t, resp.Err)
	assert.Equal(t, odrive.ProcedureResultSuccess, dev.State().ProcedureResult)
}

func TestEstopAndClearErrors(t *testing.T) {
	address := odrive.Address{NodeID: 7}
	dev, client := start(t, address)

	rch := client.WaitCondition(context.Background(), address, odrive.CmdHeartbeat, nil, time.Second)
	require.NoError(t, client.Send(address, odrive.CmdEstop, signal.Record{}))
	resp := <-rch
	require.NoError(t, resp.Err)
	assert.Equal(t, "ESTOP_REQUESTED", resp.Record.Label(odrive.SignalAxisError))

	// Combined flags still reach the bus.
	dev.InjectFault(odrive.AxisErrorDrvFault)
	assert.Equal(t, odrive.AxisErrorEstopRequested|odrive.AxisErrorDrvFault, dev.State().AxisError)

	rch = client.WaitCondition(context.Background(), address, odrive.CmdHeartbeat, nil, time.Second)
	require.NoError(t, client.Send(address, odrive.CmdClearErrors, signal.Record{odrive.SignalIdentify: 0}))
	resp = <-rch
	require.NoError(t, resp.Err)
	assert.Equal(t, "NONE", resp.Record.Label(odrive.SignalAxisError))
}

func TestInputPosRequiresClosedLoop(t *testing.T) {
	address := odrive.Address{NodeID: 7}
	dev, client := start(t, address)

	require.NoError(t, client.Send(address, odrive.CmdSetInputPos, signal.Record{odrive.SignalInputPos: 2.5}))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0.0, dev.State().Position)

	rch := client.WaitCondition(context.Background(), address, odrive.CmdHeartbeat, func(record signal.Record) bool {
		return record.Label(odrive.SignalAxisState) == "CLOSED_LOOP_CONTROL"
	}, time.Second)
	require.NoError(t, client.Send(address, odrive.CmdSetAxisState, signal.Record{odrive.SignalRequestedState: "CLOSED_LOOP_CONTROL"}))
	require.NoError(t, (<-rch).Err)

	estimate := client.WaitCondition(context.Background(), address, odrive.CmdGetEncoderEstimates, nil, time.Second)
	require.NoError(t, client.Send(address, odrive.CmdSetInputPos, signal.Record{odrive.SignalInputPos: 2.5}))
	resp := <-estimate
	require.NoError(t, resp.Err)
	assert.Equal(t, 2.5, resp.Record.Float(odrive.SignalPosEstimate))
}

func TestEndpoints(t *testing.T) {
	address := odrive.Address{NodeID: 7}
	dev, client := start(t, address)
	catalog := dev.Endpoints

	nodeID, err := catalog.Lookup("axis0.config.can.node_id")
	require.NoError(t, err)
	value, err := endpointClient.Read{Address: address, Key: nodeID}.Do(client)
	require.NoError(t, err)
	assert.Equal(t, endpoint.UintValue(7), value)

	gain, err := catalog.Lookup("axis0.controller.config.pos_gain")
	require.NoError(t, err)
	require.NoError(t, endpointClient.Write{Address: address, Key: gain, Value: endpoint.FloatValue(20)}.Do(client))

	value, err = endpointClient.Read{Address: address, Key: gain}.Do(client)
	require.NoError(t, err)
	assert.Equal(t, 20.0, value.Float)
}
