package orientation

import (
	"context"
	"io"
	"math"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const delta = 1e-6

func axisAngle(x, y, z, angle float64) Quaternion {
	s := math.Sin(angle / 2)
	return Quaternion{X: x * s, Y: y * s, Z: z * s, W: math.Cos(angle / 2)}
}

func TestAngles(t *testing.T) {
	tests := []struct {
		name     string
		rotation Quaternion
		angles   []float64
	}{
		{"identity", Quaternion{W: 1}, []float64{0, 0, 0}},
		{"zero quaternion", Quaternion{}, []float64{0, 0, 0}},
		{"yaw quarter turn", axisAngle(0, 0, 1, math.Pi/2), []float64{0, 0, math.Pi / 2}},
		{"negative roll wraps", axisAngle(1, 0, 0, -math.Pi/2), []float64{3 * math.Pi / 2, 0, 0}},
		{"pitch", axisAngle(0, 1, 0, 0.5), []float64{0, 0.5, 0}},
		{"not normalised", Quaternion{Z: 2 * math.Sin(math.Pi/4), W: 2 * math.Cos(math.Pi/4)}, []float64{0, 0, math.Pi / 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			angles := tt.rotation.Angles()
			require.Len(t, angles, 3)
			for i := range angles {
				assert.InDelta(t, tt.angles[i], angles[i], delta, "angle %d", i)
				assert.GreaterOrEqual(t, angles[i], 0.0)
				assert.Less(t, angles[i], 2*math.Pi)
			}
		})
	}
}

func TestWrapAngle(t *testing.T) {
	assert.InDelta(t, 2*math.Pi-0.1, WrapAngle(-0.1), delta)
	assert.Equal(t, 0.0, WrapAngle(2*math.Pi))
	assert.InDelta(t, 7-2*math.Pi, WrapAngle(7), delta)
	assert.InDelta(t, 1.0, WrapAngle(1), delta)
}

func TestParsePacket(t *testing.T) {
	sent := Packet{
		Type:     PacketTypeRotation,
		Number:   0x0102030405060708,
		SensorID: 3,
		DataType: 1,
		Rotation: Quaternion{X: 0.5, Y: -0.5, Z: 0.25, W: 1},
		Accuracy: 2,
	}
	data := sent.Marshal()
	require.Len(t, data, PacketSize)
	assert.Equal(t, []byte{0, 0, 0, 17}, data[:4])
	assert.Equal(t, []byte{0x3F, 0x00, 0x00, 0x00}, data[14:18])

	received, err := ParsePacket(data)
	require.NoError(t, err)
	assert.Equal(t, sent, received)
}

func TestParsePacketErrors(t *testing.T) {
	_, err := ParsePacket(make([]byte, PacketSize-1))
	assert.Error(t, err)

	packet := Packet{Type: 1, Rotation: Quaternion{W: 1}}
	_, err = ParsePacket(packet.Marshal())
	assert.Error(t, err)
}

func TestLatestNext(t *testing.T) {
	latest := NewLatest()

	_, version := latest.Get()
	assert.Equal(t, uint64(0), version)

	done := make(chan []float64)
	go func() {
		angles, _, err := latest.Next(context.Background(), 0)
		if err == nil {
			done <- angles
		}
	}()

	time.Sleep(10 * time.Millisecond)
	latest.Set([]float64{1, 2, 3})

	select {
	case angles := <-done:
		assert.Equal(t, []float64{1, 2, 3}, angles)
	case <-time.After(time.Second):
		t.Fatal("Next did not return")
	}
}

func TestLatestSkipsIntermediate(t *testing.T) {
	latest := NewLatest()
	latest.Set([]float64{1})
	latest.Set([]float64{2})
	latest.Set([]float64{3})

	angles, version, err := latest.Next(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{3}, angles)
	assert.Equal(t, uint64(3), version)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err = latest.Next(ctx, version)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestListener(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	latest := NewLatest()
	listener, err := Listen("127.0.0.1:0", latest, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- listener.Serve(ctx) }()

	conn, err := net.Dial("udp", listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("garbage"))
	require.NoError(t, err)

	packet := Packet{Type: PacketTypeRotation, Number: 1, Rotation: axisAngle(0, 0, 1, math.Pi/2)}
	_, err = conn.Write(packet.Marshal())
	require.NoError(t, err)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	angles, version, err := latest.Next(waitCtx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), version)
	assert.InDelta(t, math.Pi/2, angles[2], delta)

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not stop")
	}
}
