package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds the settings of the gimbal controller.
type AppConfig struct {
	CAN       CANConfig
	Nodes     []uint8
	UDPAddr   string
	WSAddr    string
	Motion    MotionConfig
	Endpoints EndpointConfig
	LogLevel  string
}

// CANConfig selects the bus. A non-empty SLCANPort takes precedence over the
// SocketCAN interface.
type CANConfig struct {
	Interface    string
	SLCANPort    string
	SLCANBitrate int
	SLCANBaud    int
}

type MotionConfig struct {
	StepTimeout     time.Duration
	MoveTimeout     time.Duration
	Tolerance       float64
	SymmetricUnwrap bool
}

type EndpointConfig struct {
	File    string
	Timeout time.Duration
}

// LoadConfiguration reads an optional .env file and the environment.
func LoadConfiguration() (*AppConfig, error) {
	_ = godotenv.Load()

	nodes, err := ParseNodes(getEnv("GIMBAL_NODES", "0,1,2"))
	if err != nil {
		return nil, fmt.Errorf("GIMBAL_NODES: %w", err)
	}

	config := &AppConfig{
		CAN: CANConfig{
			Interface:    getEnv("GIMBAL_CAN_INTERFACE", "can0"),
			SLCANPort:    getEnv("GIMBAL_SLCAN_PORT", ""),
			SLCANBitrate: getEnvAsInt("GIMBAL_SLCAN_BITRATE", 1000000),
			SLCANBaud:    getEnvAsInt("GIMBAL_SLCAN_BAUD", 115200),
		},
		Nodes:   nodes,
		UDPAddr: getEnv("GIMBAL_UDP_ADDR", ":6969"),
		WSAddr:  getEnv("GIMBAL_WS_ADDR", ":8080"),
		Motion: MotionConfig{
			StepTimeout:     getEnvAsMillis("GIMBAL_STEP_TIMEOUT_MS", 10*time.Second),
			MoveTimeout:     getEnvAsMillis("GIMBAL_MOVE_TIMEOUT_MS", 0),
			Tolerance:       getEnvAsFloat("GIMBAL_POSITION_TOLERANCE", 0.01),
			SymmetricUnwrap: getEnvAsBool("GIMBAL_SYMMETRIC_UNWRAP", false),
		},
		Endpoints: EndpointConfig{
			File:    getEnv("GIMBAL_ENDPOINTS_FILE", ""),
			Timeout: getEnvAsMillis("GIMBAL_ENDPOINT_TIMEOUT_MS", 2*time.Second),
		},
		LogLevel: getEnv("GIMBAL_LOG_LEVEL", "info"),
	}

	return config, nil
}

// ParseNodes parses a comma separated list of node ids, e.g. "0,1,2".
func ParseNodes(text string) ([]uint8, error) {
	var nodes []uint8
	for _, field := range strings.Split(text, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		node, err := strconv.ParseUint(field, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid node id %q", field)
		}
		nodes = append(nodes, uint8(node))
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("no node ids in %q", text)
	}
	return nodes, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(name string, defaultValue int) int {
	valueStr := getEnv(name, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(name string, defaultValue float64) float64 {
	valueStr := getEnv(name, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsMillis(name string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(name, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(value) * time.Millisecond
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	val, _ := strconv.ParseBool(value)
	return val
}
