package main

import (
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/internal/config"
	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	appConfig *config.AppConfig
	logger    *logrus.Logger

	// Bus flags
	canInterface string
	slcanPort    string
	slcanBitrate int
	slcanBaud    int

	nodeList      string
	endpointsFile string
	logLevel      string
)

var rootCmd = &cobra.Command{
	Use:   "gimbal",
	Short: "Three-axis gimbal rig controller",
	Long: `Gimbal drives three motor controllers over CAN so that the rig follows the
orientation of a tracker.

Bus selection:
  SocketCAN: --interface can0
  SLCAN:     --slcan-port /dev/ttyACM0 [--slcan-bitrate 1000000] [--slcan-baud 115200]

Settings are read from .env and GIMBAL_* environment variables first; flags
override them.`,
	Version:           "0.3.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfiguration,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&canInterface, "interface", "i", "can0", "SocketCAN interface")
	flags.StringVar(&slcanPort, "slcan-port", "", "Serial port of an SLCAN adapter (overrides --interface)")
	flags.IntVar(&slcanBitrate, "slcan-bitrate", 1000000, "CAN bit rate of the SLCAN adapter")
	flags.IntVar(&slcanBaud, "slcan-baud", 115200, "Baud rate of the SLCAN serial port")
	flags.StringVarP(&nodeList, "nodes", "n", "0,1,2", "Node ids of the x, y and z axes")
	flags.StringVar(&endpointsFile, "endpoints", "", "flat_endpoints.json of the controller firmware")
	flags.StringVarP(&logLevel, "log-level", "l", "info", "Log level (trace, debug, info, warn, error, off)")
}

func loadConfiguration(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfiguration()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("interface") {
		cfg.CAN.Interface = canInterface
	}
	if flags.Changed("slcan-port") {
		cfg.CAN.SLCANPort = slcanPort
	}
	if flags.Changed("slcan-bitrate") {
		cfg.CAN.SLCANBitrate = slcanBitrate
	}
	if flags.Changed("slcan-baud") {
		cfg.CAN.SLCANBaud = slcanBaud
	}
	if flags.Changed("nodes") {
		nodes, err := config.ParseNodes(nodeList)
		if err != nil {
			return err
		}
		cfg.Nodes = nodes
	}
	if flags.Changed("endpoints") {
		cfg.Endpoints.File = endpointsFile
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}

	appConfig = cfg
	logger = logging.New(cfg.LogLevel)
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
