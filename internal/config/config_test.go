package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigurationDefaults(t *testing.T) {
	for _, key := range []string{
		"GIMBAL_CAN_INTERFACE", "GIMBAL_SLCAN_PORT", "GIMBAL_NODES", "GIMBAL_STEP_TIMEOUT_MS",
		"GIMBAL_MOVE_TIMEOUT_MS", "GIMBAL_POSITION_TOLERANCE", "GIMBAL_SYMMETRIC_UNWRAP",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("GIMBAL_NODES", "0,1,2")

	config, err := LoadConfiguration()
	require.NoError(t, err)

	assert.Equal(t, []uint8{0, 1, 2}, config.Nodes)
	assert.Equal(t, 10*time.Second, config.Motion.StepTimeout)
	assert.Equal(t, time.Duration(0), config.Motion.MoveTimeout)
	assert.Equal(t, 0.01, config.Motion.Tolerance)
	assert.False(t, config.Motion.SymmetricUnwrap)
	assert.Equal(t, 2*time.Second, config.Endpoints.Timeout)
}

func TestLoadConfigurationEnvironment(t *testing.T) {
	t.Setenv("GIMBAL_CAN_INTERFACE", "vcan0")
	t.Setenv("GIMBAL_SLCAN_PORT", "/dev/ttyACM0")
	t.Setenv("GIMBAL_SLCAN_BITRATE", "500000")
	t.Setenv("GIMBAL_NODES", "4, 5 ,6")
	t.Setenv("GIMBAL_STEP_TIMEOUT_MS", "2500")
	t.Setenv("GIMBAL_MOVE_TIMEOUT_MS", "300")
	t.Setenv("GIMBAL_POSITION_TOLERANCE", "0.05")
	t.Setenv("GIMBAL_SYMMETRIC_UNWRAP", "true")
	t.Setenv("GIMBAL_LOG_LEVEL", "debug")

	config, err := LoadConfiguration()
	require.NoError(t, err)

	assert.Equal(t, CANConfig{Interface: "vcan0", SLCANPort: "/dev/ttyACM0", SLCANBitrate: 500000, SLCANBaud: 115200}, config.CAN)
	assert.Equal(t, []uint8{4, 5, 6}, config.Nodes)
	assert.Equal(t, MotionConfig{
		StepTimeout:     2500 * time.Millisecond,
		MoveTimeout:     300 * time.Millisecond,
		Tolerance:       0.05,
		SymmetricUnwrap: true,
	}, config.Motion)
	assert.Equal(t, "debug", config.LogLevel)
}

func TestParseNodes(t *testing.T) {
	nodes, err := ParseNodes("0x10,3")
	require.NoError(t, err)
	assert.Equal(t, []uint8{0x10, 3}, nodes)

	_, err = ParseNodes("")
	assert.Error(t, err)
	_, err = ParseNodes("1,300")
	assert.Error(t, err)
	_, err = ParseNodes("x")
	assert.Error(t, err)
}
